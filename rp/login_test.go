// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	_, err := NewLogin(nil)
	assert.ErrorIs(err, ErrNilParameter)

	e := newTestEnv(t, testEnvConfig{})
	login, err := NewLogin(e.rd)
	require.NoError(err)
	target := "/login?" + url.Values{ReturnToParameter: {"/private?x=1"}}.Encode()

	// not a navigation
	rec := httptest.NewRecorder()
	r := navigate(http.MethodGet, target, nil)
	r.Header.Set("Sec-Fetch-Mode", "no-cors")
	login.ServeHTTP(rec, r)
	assert.Equal(http.StatusBadRequest, rec.Code)

	// cross-origin
	rec = httptest.NewRecorder()
	r = navigate(http.MethodGet, target, nil)
	r.Header.Set("Sec-Fetch-Site", "cross-site")
	login.ServeHTTP(rec, r)
	assert.Equal(http.StatusSeeOther, rec.Code)
	assert.Equal("/private?x=1", rec.Header().Get("Location"))
	assert.Zero(e.sessions.Len())

	// anonymous
	jar := newTestJar()
	rec = httptest.NewRecorder()
	login.ServeHTTP(rec, navigate(http.MethodGet, target, nil))
	require.Equal(http.StatusSeeOther, rec.Code)
	assert.True(strings.HasPrefix(rec.Header().Get("Location"), e.p.Metadata().AuthorizationEndpoint+"?"))
	jar.update(rec)
	s, err := e.sessions.Get(jar.request(navigate(http.MethodGet, "/", nil)))
	require.NoError(err)
	require.NotNil(s)
	assert.Equal("/private?x=1", s.TakePendingAuth().ReturnURI)

	// authenticated
	e.login(t, jar, "/")
	rec = httptest.NewRecorder()
	login.ServeHTTP(rec, jar.request(navigate(http.MethodPost, target, nil)))
	assert.Equal(http.StatusSeeOther, rec.Code)
	assert.Equal("/private?x=1", rec.Header().Get("Location"))
}

func TestLogin_offsiteReturnTo(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	e := newTestEnv(t, testEnvConfig{})
	login, err := NewLogin(e.rd)
	require.NoError(err)

	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, navigate(http.MethodGet, "/login?"+url.Values{ReturnToParameter: {"https://evil.example.com/"}}.Encode(), nil))
	require.Equal(http.StatusSeeOther, rec.Code)
	jar := newTestJar()
	jar.update(rec)
	s, err := e.sessions.Get(jar.request(navigate(http.MethodGet, "/", nil)))
	require.NoError(err)
	assert.Equal("/", s.TakePendingAuth().ReturnURI)
}
