// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbroyer/oidc-servlets-sub000/loggedout"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/session"
)

func backchannelRequest(token string) *http.Request {
	form := url.Values{}
	if token != "" {
		form.Set("logout_token", token)
	}
	r := httptest.NewRequest(http.MethodPost, testOrigin+"/backchannel-logout", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestNewBackchannelLogout(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	e := newTestEnv(t, testEnvConfig{})
	_, err := NewBackchannelLogout(nil, loggedout.NewInMemory())
	assert.ErrorIs(err, ErrNilParameter)
	_, err = NewBackchannelLogout(e.p, nil)
	assert.ErrorIs(err, ErrNilParameter)
	_, err = NewBackchannelLogoutListener(nil)
	assert.ErrorIs(err, ErrNilParameter)
}

func TestBackchannelLogout(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, testEnvConfig{})
	tp := e.tp
	otherKey := oidc.TestGenerateKey(t)
	withNonce := tp.LogoutTokenClaims("", oidc.TestSessionId)
	withNonce["nonce"] = "n"
	otherKeyToken := oidc.TestSignJWT(t, otherKey, oidc.ES256, oidc.TestKeyId, oidc.LogoutTokenType,
		tp.LogoutTokenClaims("", oidc.TestSessionId))
	nonceToken := tp.SignLogoutToken(t, withNonce)
	sidToken := tp.SignLogoutToken(t, tp.LogoutTokenClaims(oidc.TestSubject, oidc.TestSessionId))
	subToken := tp.SignLogoutToken(t, tp.LogoutTokenClaims(oidc.TestSubject, ""))
	sidOnlyToken := tp.SignLogoutToken(t, tp.LogoutTokenClaims("", oidc.TestSessionId))

	tests := []struct {
		name    string
		request func() *http.Request
		store   loggedout.Store
		status  int
		message string
		out     bool
	}{
		{
			name:    "get",
			request: func() *http.Request { return httptest.NewRequest(http.MethodGet, testOrigin+"/backchannel-logout", nil) },
			status:  http.StatusMethodNotAllowed,
		},
		{
			name:    "missing-token",
			request: func() *http.Request { return backchannelRequest("") },
			status:  http.StatusBadRequest, message: "Missing logout token",
		},
		{
			name:    "garbage",
			request: func() *http.Request { return backchannelRequest("not.a.jwt") },
			status:  http.StatusBadRequest, message: "Error validating logout token",
		},
		{
			name: "other-key",
			request: func() *http.Request { return backchannelRequest(otherKeyToken) },
			status: http.StatusBadRequest, message: "Error validating logout token",
		},
		{
			name:    "nonce",
			request: func() *http.Request { return backchannelRequest(nonceToken) },
			status:  http.StatusBadRequest, message: "Error validating logout token",
		},
		{
			name: "sid",
			request: func() *http.Request { return backchannelRequest(sidToken) },
			status: http.StatusOK, out: true,
		},
		{
			name: "sub-only",
			request: func() *http.Request { return backchannelRequest(subToken) },
			store:  failingStore{},
			status: http.StatusOK,
		},
		{
			name: "store-error",
			request: func() *http.Request { return backchannelRequest(sidOnlyToken) },
			store:  failingStore{},
			status: http.StatusInternalServerError, message: "Error logging out session",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			mem := loggedout.NewInMemory()
			require.NoError(mem.Acquire(context.Background(), oidc.TestSessionId, "local"))
			store := tt.store
			if store == nil {
				store = mem
			}
			h, err := NewBackchannelLogout(e.p, store)
			require.NoError(err)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.request())
			assert.Equal(tt.status, rec.Code)
			if tt.status != http.StatusMethodNotAllowed {
				assert.Equal("no-store", rec.Header().Get("Cache-Control"))
			}
			if tt.message != "" {
				assert.Equal(tt.message, strings.TrimSpace(rec.Body.String()))
			}
			out, err := mem.IsLoggedOut(context.Background(), oidc.TestSessionId)
			require.NoError(err)
			assert.Equal(tt.out, out)
		})
	}
}

func TestBackchannelLogout_metrics(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	reg := prometheus.NewPedanticRegistry()
	m, err := NewMetrics(reg)
	require.NoError(err)
	e := newTestEnv(t, testEnvConfig{})
	h, err := NewBackchannelLogout(e.p, loggedout.NewInMemory(), WithMetrics(m))
	require.NoError(err)

	h.ServeHTTP(httptest.NewRecorder(), backchannelRequest(""))
	h.ServeHTTP(httptest.NewRecorder(), backchannelRequest(e.tp.SignLogoutToken(t, e.tp.LogoutTokenClaims("", "sid-1"))))

	expected := `
# HELP oidc_rp_backchannel_logouts_total Back-channel logout requests handled, by outcome.
# TYPE oidc_rp_backchannel_logouts_total counter
oidc_rp_backchannel_logouts_total{outcome="client_error"} 1
oidc_rp_backchannel_logouts_total{outcome="success"} 1
`
	assert.NoError(testutil.GatherAndCompare(reg, strings.NewReader(expected), "oidc_rp_backchannel_logouts_total"))
}

func TestBackchannelLogoutListener(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	store := loggedout.NewInMemory()
	l, err := NewBackchannelLogoutListener(store)
	require.NoError(err)
	e := newTestEnv(t, testEnvConfig{
		store:    []session.Option{session.WithListener(l)},
		callback: []Option{WithAuthenticationListener(l)},
	})
	isLoggedOut := func(sid string) bool {
		out, err := store.IsLoggedOut(ctx, sid)
		require.NoError(err)
		return out
	}

	jar := newTestJar()
	e.tp.SetSessionId("op-1")
	s := e.login(t, jar, "/")
	assert.False(isLoggedOut("op-1"))
	assert.Equal(1, store.Len())

	// re-authentication in the same provider session
	e.login(t, jar, "/")
	assert.False(isLoggedOut("op-1"))
	require.NoError(store.Release(ctx, "op-1", s.ID()))
	assert.True(isLoggedOut("op-1"), "the session must be bound with its current id only")
	require.NoError(store.Acquire(ctx, "op-1", s.ID()))

	// re-authentication in another provider session
	e.tp.SetSessionId("op-2")
	e.login(t, jar, "/")
	assert.True(isLoggedOut("op-1"))
	assert.False(isLoggedOut("op-2"))

	// destruction releases the binding
	require.NoError(e.sessions.Invalidate(nil, nil, s))
	assert.True(isLoggedOut("op-2"))
	assert.Zero(store.Len())
}

func TestBackchannelLogout_endToEnd(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	store := loggedout.NewInMemory()
	l, err := NewBackchannelLogoutListener(store)
	require.NoError(err)
	e := newTestEnv(t, testEnvConfig{
		store:    []session.Option{session.WithListener(l)},
		callback: []Option{WithAuthenticationListener(l)},
	})
	h, err := NewBackchannelLogout(e.p, store)
	require.NoError(err)
	binder, err := NewBinder(e.sessions, WithLoggedOutStore(store))
	require.NoError(err)
	app := binder.Handler(Gate(NewIsAuthenticated(e.rd))(whoami))

	jar := newTestJar()
	s := e.login(t, jar, "/")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, backchannelRequest(e.tp.SignLogoutToken(t, e.tp.LogoutTokenClaims("", oidc.TestSessionId))))
	require.Equal(http.StatusOK, rec.Code)
	assert.True(s.Valid(), "local sessions are invalidated on their next request")

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, jar.request(navigate(http.MethodGet, "/private", nil)))
	assert.Equal(http.StatusSeeOther, rec.Code)
	assert.True(strings.HasPrefix(rec.Header().Get("Location"), e.p.Metadata().AuthorizationEndpoint+"?"))
	assert.False(s.Valid())
}
