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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/session"
)

const (
	testOrigin       = "https://rp.example.com"
	testCallbackPath = "/callback"
)

type testEnvConfig struct {
	provider   func(tp *oidc.TestProvider)
	store      []session.Option
	redirector []Option
	callback   []Option
}

// testEnv is a relying party at testOrigin, authenticating with a
// TestProvider.
type testEnv struct {
	tp       *oidc.TestProvider
	p        *oidc.Provider
	sessions *session.MemoryStore
	rd       *Redirector
	cb       *Callback
}

func newTestEnv(t *testing.T, cfg testEnvConfig) *testEnv {
	t.Helper()
	require := require.New(t)
	tp := oidc.StartTestProvider(t, 0)
	if cfg.provider != nil {
		cfg.provider(tp)
	}
	p, err := oidc.NewProvider(tp.NewConfig(t))
	require.NoError(err)
	t.Cleanup(p.Done)

	sessions, err := session.NewMemoryStore(cfg.store...)
	require.NoError(err)
	rd, err := NewRedirector(p, sessions, testCallbackPath, cfg.redirector...)
	require.NoError(err)
	cb, err := NewCallback(rd, cfg.callback...)
	require.NoError(err)
	return &testEnv{tp: tp, p: p, sessions: sessions, rd: rd, cb: cb}
}

// start starts a flow coming back to returnURI and returns the
// authorization URL.
func (e *testEnv) start(t *testing.T, jar *testJar, returnURI string) string {
	t.Helper()
	require := require.New(t)
	rec := httptest.NewRecorder()
	require.NoError(e.rd.RedirectRequest(rec, jar.request(navigate(http.MethodGet, returnURI, nil)), returnURI))
	require.Equal(http.StatusSeeOther, rec.Code)
	jar.update(rec)
	return rec.Header().Get("Location")
}

// callback sends the provider's response for authURL to the callback.
func (e *testEnv) callback(t *testing.T, jar *testJar, authURL string) *httptest.ResponseRecorder {
	t.Helper()
	loc := e.tp.Authorize(t, authURL)
	rec := httptest.NewRecorder()
	e.cb.ServeHTTP(rec, jar.request(navigate(http.MethodGet, loc.String(), nil)))
	jar.update(rec)
	return rec
}

// login runs a successful flow and returns the authenticated session.
func (e *testEnv) login(t *testing.T, jar *testJar, returnURI string) *session.Session {
	t.Helper()
	require := require.New(t)
	rec := e.callback(t, jar, e.start(t, jar, returnURI))
	require.Equal(http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(returnURI, rec.Header().Get("Location"))
	s, err := e.sessions.Get(jar.request(navigate(http.MethodGet, "/", nil)))
	require.NoError(err)
	require.NotNil(s)
	require.NotNil(s.Info())
	return s
}

// navigate returns a same-origin navigation request for target, resolved
// against testOrigin. A non nil form is sent as the body.
func navigate(method, target string, form url.Values) *http.Request {
	if !strings.HasPrefix(target, "https://") {
		target = testOrigin + target
	}
	var r *http.Request
	if form != nil {
		r = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Sec-Fetch-Mode", "navigate")
	r.Header.Set("Sec-Fetch-Site", "same-origin")
	return r
}

// testJar is a minimal cookie jar for a single origin.
type testJar struct {
	cookies map[string]*http.Cookie
}

func newTestJar() *testJar {
	return &testJar{cookies: map[string]*http.Cookie{}}
}

func (j *testJar) update(rec *httptest.ResponseRecorder) {
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(j.cookies, c.Name)
			continue
		}
		j.cookies[c.Name] = c
	}
}

func (j *testJar) request(r *http.Request) *http.Request {
	for _, c := range j.cookies {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

func (j *testJar) clone() *testJar {
	c := newTestJar()
	for k, v := range j.cookies {
		c.cookies[k] = v
	}
	return c
}

var errSenderFailed = errors.New("sender failed")

type failingSender struct{}

func (failingSender) AuthURL(context.Context, *oidc.AuthRequest) (string, error) {
	return "", errSenderFailed
}

// errorRecorder records the errors handlers answer with.
type errorRecorder struct {
	mu     sync.Mutex
	errors []*Error
}

func (er *errorRecorder) option() Option {
	return WithErrorResponse(func(w http.ResponseWriter, r *http.Request, status int, e *Error) {
		er.mu.Lock()
		er.errors = append(er.errors, e)
		er.mu.Unlock()
		DefaultErrorResponse(w, r, status, e)
	})
}

func (er *errorRecorder) last() *Error {
	er.mu.Lock()
	defer er.mu.Unlock()
	if len(er.errors) == 0 {
		return nil
	}
	return er.errors[len(er.errors)-1]
}
