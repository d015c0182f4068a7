// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
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

func TestBinder(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	_, err := NewBinder(nil)
	assert.ErrorIs(err, ErrNilParameter)

	e := newTestEnv(t, testEnvConfig{})
	binder, err := NewBinder(e.sessions)
	require.NoError(err)
	h := binder.Handler(whoami)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, navigate(http.MethodGet, "/", nil))
	assert.Equal("hello ", rec.Body.String())

	jar := newTestJar()
	s := e.login(t, jar, "/")
	var got Principal
	binder.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), jar.request(navigate(http.MethodGet, "/", nil)))
	require.NotNil(got)
	assert.Equal(oidc.TestSubject, got.Name())
	assert.Same(s.Info(), got.SessionInfo())
	assert.False(got.HasRole("admin"))
}

func TestBinder_backchannelLogout(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	store := loggedout.NewInMemory()
	l, err := NewBackchannelLogoutListener(store)
	require.NoError(err)
	reg := prometheus.NewPedanticRegistry()
	m, err := NewMetrics(reg)
	require.NoError(err)
	e := newTestEnv(t, testEnvConfig{
		store:    []session.Option{session.WithListener(l)},
		callback: []Option{WithAuthenticationListener(l)},
	})
	binder, err := NewBinder(e.sessions, WithLoggedOutStore(store), WithMetrics(m))
	require.NoError(err)
	h := binder.Handler(whoami)

	jar := newTestJar()
	s := e.login(t, jar, "/")
	out, err := store.IsLoggedOut(context.Background(), oidc.TestSessionId)
	require.NoError(err)
	assert.False(out)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jar.request(navigate(http.MethodGet, "/", nil)))
	assert.Equal("hello "+oidc.TestSubject, rec.Body.String())

	require.NoError(store.Logout(context.Background(), oidc.TestSessionId))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, jar.request(navigate(http.MethodGet, "/", nil)))
	assert.Equal("hello ", rec.Body.String())
	assert.False(s.Valid())
	assert.Equal(-1, rec.Result().Cookies()[0].MaxAge)
	assert.Equal(0, e.sessions.Len())

	expected := `
# HELP oidc_rp_logouts_total Local sessions logged out, explicitly or after a back-channel logout.
# TYPE oidc_rp_logouts_total counter
oidc_rp_logouts_total 1
`
	assert.NoError(testutil.GatherAndCompare(reg, strings.NewReader(expected), "oidc_rp_logouts_total"))
}

func TestBinder_storeError(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	errs := &errorRecorder{}
	e := newTestEnv(t, testEnvConfig{})
	binder, err := NewBinder(e.sessions, WithLoggedOutStore(failingStore{}), errs.option())
	require.NoError(err)
	jar := newTestJar()
	e.login(t, jar, "/")

	rec := httptest.NewRecorder()
	binder.Handler(whoami).ServeHTTP(rec, jar.request(navigate(http.MethodGet, "/", nil)))
	assert.Equal(http.StatusInternalServerError, rec.Code)
	require.NotNil(errs.last())
	assert.Equal(KindIO, errs.last().Kind)
	assert.ErrorIs(errs.last(), errStoreFailed)
}

var errStoreFailed = errors.New("store failed")

type failingStore struct {
	loggedout.Null
}

func (failingStore) Logout(context.Context, string) error { return errStoreFailed }
func (failingStore) IsLoggedOut(context.Context, string) (bool, error) {
	return false, errStoreFailed
}
