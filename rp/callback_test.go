// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbroyer/oidc-servlets-sub000/dpop"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/session"
)

func TestNewCallback(t *testing.T) {
	t.Parallel()
	_, err := NewCallback(nil)
	assert.ErrorIs(t, err, ErrNilParameter)
}

func TestCallback_success(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	var tokens []*oidc.Token
	e := newTestEnv(t, testEnvConfig{
		callback: []Option{WithTokensHandler(tokensFunc(func(_ context.Context, _ *session.Session, tk *oidc.Token) {
			tokens = append(tokens, tk)
		}))},
	})
	jar := newTestJar()
	authURL := e.start(t, jar, "/private?x=1")
	before := jar.clone()
	preAuth, err := e.sessions.Get(jar.request(navigate(http.MethodGet, "/", nil)))
	require.NoError(err)
	oldID := preAuth.ID()

	rec := e.callback(t, jar, authURL)
	require.Equal(http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal("/private?x=1", rec.Header().Get("Location"))
	assert.Equal(1, e.tp.TokenRequests())

	s, err := e.sessions.Get(jar.request(navigate(http.MethodGet, "/", nil)))
	require.NoError(err)
	require.Same(preAuth, s)
	assert.NotEqual(oldID, s.ID(), "session id must change on authentication")
	old, err := e.sessions.Get(before.request(navigate(http.MethodGet, "/", nil)))
	require.NoError(err)
	assert.Nil(old)

	info := s.Info()
	require.NotNil(info)
	assert.Equal(oidc.TestSubject, info.IdTokenClaims.Subject)
	assert.Equal(oidc.TestSessionId, info.SessionId())
	assert.Equal(oidc.TestSubject, info.UserInfo.Subject)
	assert.Equal("alice@example.com", info.UserInfo.Email)
	assert.NotEmpty(info.Token.AccessToken)
	require.Len(tokens, 1)
	assert.Same(info.Token, tokens[0])
	assert.Nil(s.TakePendingAuth())
}

func TestCallback_defaultReturnURI(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, testEnvConfig{})
	jar := newTestJar()
	rec := httptest.NewRecorder()
	require.NoError(t, e.rd.RedirectRequest(rec, navigate(http.MethodGet, "/", nil), ""))
	jar.update(rec)
	rec = e.callback(t, jar, rec.Header().Get("Location"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestCallback_formPost(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	e := newTestEnv(t, testEnvConfig{})
	jar := newTestJar()
	loc := e.tp.Authorize(t, e.start(t, jar, "/private"))

	r := jar.request(navigate(http.MethodPost, testCallbackPath, loc.Query()))
	r.Header.Set("Sec-Fetch-Site", "cross-site")
	rec := httptest.NewRecorder()
	e.cb.ServeHTTP(rec, r)
	assert.Equal(http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal("/private", rec.Header().Get("Location"))
}

func TestCallback_errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		provider  func(tp *oidc.TestProvider)
		query     func(q url.Values)
		request   func(r *http.Request)
		noSession bool
		status    int
		kind      Kind
		message   string
		exchanged bool
	}{
		{
			name:    "not-navigation",
			request: func(r *http.Request) { r.Header.Set("Sec-Fetch-Mode", "cors") },
			status:  http.StatusBadRequest, kind: KindClient, message: "Not a navigation request",
		},
		{
			name:   "no-code-nor-error",
			query:  func(q url.Values) { q.Del("code") },
			status: http.StatusBadRequest, kind: KindClient, message: "Error parsing parameters",
		},
		{
			name:      "no-session",
			noSession: true,
			status:    http.StatusBadRequest, kind: KindClient, message: "Missing saved state from authorization request initiation",
		},
		{
			name:   "state-mismatch",
			query:  func(q url.Values) { q.Set("state", "forged") },
			status: http.StatusBadRequest, kind: KindClient, message: "State mismatch",
		},
		{
			name:   "missing-state",
			query:  func(q url.Values) { q.Del("state") },
			status: http.StatusBadRequest, kind: KindClient, message: "State mismatch",
		},
		{
			name:   "issuer-mismatch",
			query:  func(q url.Values) { q.Set("iss", "https://evil.example.com") },
			status: http.StatusBadRequest, kind: KindClient, message: "Issuer mismatch",
		},
		{
			name:   "missing-issuer",
			query:  func(q url.Values) { q.Del("iss") },
			status: http.StatusBadRequest, kind: KindClient, message: "Issuer mismatch",
		},
		{
			name:     "provider-error",
			provider: func(tp *oidc.TestProvider) { tp.SetAuthError("access_denied") },
			status:   http.StatusBadRequest, kind: KindClient, message: "access_denied",
		},
		{
			name:      "token-error",
			provider:  func(tp *oidc.TestProvider) { tp.SetTokenError("invalid_grant") },
			status:    http.StatusInternalServerError, kind: KindProvider, message: "Token request returned error: invalid_grant",
			exchanged: true,
		},
		{
			name:      "missing-id-token",
			provider:  func(tp *oidc.TestProvider) { tp.OmitIdToken(true) },
			status:    http.StatusInternalServerError, kind: KindProvider, message: "Error in token request",
			exchanged: true,
		},
		{
			name:      "invalid-id-token",
			provider:  func(tp *oidc.TestProvider) { tp.SetCustomClaims(map[string]interface{}{"nonce": "other"}) },
			status:    http.StatusInternalServerError, kind: KindProvider, message: "Error validating ID Token",
			exchanged: true,
		},
		{
			name:      "userinfo-subject-mismatch",
			provider:  func(tp *oidc.TestProvider) { tp.SetUserInfoSubject("bob") },
			status:    http.StatusInternalServerError, kind: KindProvider, message: "User Info subject mismatch",
			exchanged: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			errs := &errorRecorder{}
			e := newTestEnv(t, testEnvConfig{callback: []Option{errs.option()}})
			jar := newTestJar()
			authURL := e.start(t, jar, "/private")
			if tt.provider != nil {
				tt.provider(e.tp)
			}
			loc := e.tp.Authorize(t, authURL)
			q := loc.Query()
			if tt.query != nil {
				tt.query(q)
			}
			loc.RawQuery = q.Encode()
			if tt.noSession {
				jar = newTestJar()
			}
			r := jar.request(navigate(http.MethodGet, loc.String(), nil))
			if tt.request != nil {
				tt.request(r)
			}
			rec := httptest.NewRecorder()
			e.cb.ServeHTTP(rec, r)

			assert.Equal(tt.status, rec.Code)
			assert.Equal(tt.message, strings.TrimSpace(rec.Body.String()))
			got := errs.last()
			require.NotNil(got)
			assert.Equal(tt.kind, got.Kind)
			assert.Equal(tt.message, got.Message)
			assert.Empty(rec.Header().Get("Location"))
			if tt.exchanged {
				assert.Equal(1, e.tp.TokenRequests())
			} else {
				assert.Zero(e.tp.TokenRequests(), "code must not be exchanged")
			}

			s, err := e.sessions.Get(jar.request(navigate(http.MethodGet, "/", nil)))
			require.NoError(err)
			if s != nil {
				assert.Nil(s.Info())
			}
		})
	}
}

func TestCallback_replay(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	errs := &errorRecorder{}
	e := newTestEnv(t, testEnvConfig{callback: []Option{errs.option()}})
	jar := newTestJar()
	loc := e.tp.Authorize(t, e.start(t, jar, "/private"))

	forged := *loc
	q := forged.Query()
	q.Set("state", "forged")
	forged.RawQuery = q.Encode()
	rec := httptest.NewRecorder()
	e.cb.ServeHTTP(rec, jar.request(navigate(http.MethodGet, forged.String(), nil)))
	assert.Equal(http.StatusBadRequest, rec.Code)

	// the pending state is gone, even for the genuine response
	rec = httptest.NewRecorder()
	e.cb.ServeHTTP(rec, jar.request(navigate(http.MethodGet, loc.String(), nil)))
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Equal("Missing saved state from authorization request initiation", errs.last().Message)
	assert.Zero(e.tp.TokenRequests())
}

func TestCallback_methodNotAllowed(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, testEnvConfig{})
	rec := httptest.NewRecorder()
	e.cb.ServeHTTP(rec, navigate(http.MethodPut, testCallbackPath+"?code=c&state=s", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestCallback_dpop(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	support := dpop.NewPerSession(nil)
	e := newTestEnv(t, testEnvConfig{
		provider:   func(tp *oidc.TestProvider) { tp.SetDPoPNonce("server-nonce") },
		redirector: []Option{WithDPoP(support)},
	})
	jar := newTestJar()
	s := e.login(t, jar, "/private")

	key, err := support.Key(s)
	require.NoError(err)
	tk := s.Info().Token
	assert.Equal("DPoP", tk.TokenType)
	jkt, ok := e.tp.AccessTokenJKT(string(tk.AccessToken))
	require.True(ok)
	assert.Equal(key.Thumbprint(), jkt)
	assert.Equal(2, e.tp.TokenRequests(), "first token request is answered with use_dpop_nonce")
	assert.Equal(oidc.TestSubject, s.Info().UserInfo.Subject)
}

func TestCallback_authenticationListener(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	var calls []*session.Info
	l := authenticatedFunc(func(_ *http.Request, s *session.Session, previous *session.Info) error {
		assert.NotNil(s.Info())
		calls = append(calls, previous)
		return nil
	})
	e := newTestEnv(t, testEnvConfig{callback: []Option{WithAuthenticationListener(l)}})
	jar := newTestJar()
	s := e.login(t, jar, "/")
	first := s.Info()
	e.login(t, jar, "/")
	require.Len(calls, 2)
	assert.Nil(calls[0])
	assert.Same(first, calls[1])
}

func TestCallback_authenticationListenerError(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	boom := errors.New("boom")
	var destroyed []string
	l := authenticatedFunc(func(*http.Request, *session.Session, *session.Info) error { return boom })
	errs := &errorRecorder{}
	e := newTestEnv(t, testEnvConfig{
		store: []session.Option{session.WithListener(session.ListenerFuncs{
			Destroyed: func(s *session.Session) { destroyed = append(destroyed, s.Info().SessionId()) },
		})},
		callback: []Option{WithAuthenticationListener(l), errs.option()},
	})
	jar := newTestJar()
	rec := e.callback(t, jar, e.start(t, jar, "/private"))
	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.Empty(rec.Header().Get("Location"))
	require.NotNil(errs.last())
	assert.ErrorIs(errs.last(), boom)
	assert.Equal([]string{oidc.TestSessionId}, destroyed)

	s, err := e.sessions.Get(jar.request(navigate(http.MethodGet, "/", nil)))
	require.NoError(err)
	assert.Nil(s)

	binder, err := NewBinder(e.sessions)
	require.NoError(err)
	rec = httptest.NewRecorder()
	binder.Handler(whoami).ServeHTTP(rec, jar.request(navigate(http.MethodGet, "/", nil)))
	assert.Equal("hello ", rec.Body.String())
}

func TestCallback_metrics(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	reg := prometheus.NewPedanticRegistry()
	m, err := NewMetrics(reg)
	require.NoError(err)
	e := newTestEnv(t, testEnvConfig{
		store:    []session.Option{session.WithListener(m.SessionListener())},
		callback: []Option{WithMetrics(m)},
	})
	e.login(t, newTestJar(), "/")
	rec := httptest.NewRecorder()
	e.cb.ServeHTTP(rec, navigate(http.MethodGet, testCallbackPath+"?code=c&state=s", nil))
	require.Equal(http.StatusBadRequest, rec.Code)

	expected := `
# HELP oidc_rp_callbacks_total Authentication callbacks handled, by outcome.
# TYPE oidc_rp_callbacks_total counter
oidc_rp_callbacks_total{outcome="client_error"} 1
oidc_rp_callbacks_total{outcome="success"} 1
# HELP oidc_rp_sessions Live sessions.
# TYPE oidc_rp_sessions gauge
oidc_rp_sessions 1
`
	assert.NoError(testutil.GatherAndCompare(reg, strings.NewReader(expected), "oidc_rp_callbacks_total", "oidc_rp_sessions"))
}

type tokensFunc func(ctx context.Context, s *session.Session, t *oidc.Token)

func (f tokensFunc) TokensAcquired(ctx context.Context, s *session.Session, t *oidc.Token) {
	f(ctx, s, t)
}

type authenticatedFunc func(r *http.Request, s *session.Session, previous *session.Info) error

func (f authenticatedFunc) Authenticated(r *http.Request, s *session.Session, previous *session.Info) error {
	return f(r, s, previous)
}
