// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReturnTo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "absent", value: "", want: "/"},
		{name: "path", value: "/private", want: "/private"},
		{name: "path-query-fragment", value: "/a/b?x=1#top", want: "/a/b?x=1#top"},
		{name: "relative", value: "private/page", want: "/private/page"},
		{name: "same-origin-absolute", value: "https://rp.example.com/a?b=c", want: "/a?b=c"},
		{name: "other-host", value: "https://evil.example.com/a", want: "/"},
		{name: "other-scheme", value: "http://rp.example.com/a", want: "/"},
		{name: "network-path", value: "//evil.example.com/a", want: "/"},
		{name: "userinfo", value: "https://user@rp.example.com/a", want: "/"},
		{name: "dot-segments", value: "/a/../../b", want: "/b"},
		{name: "javascript", value: "javascript:alert(1)", want: "/"},
		{name: "unparseable", value: "%zz", want: "/"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := url.Values{}
			if tt.value != "" {
				q.Set(ReturnToParameter, tt.value)
			}
			r := httptest.NewRequest(http.MethodGet, testOrigin+"/login?"+q.Encode(), nil)
			assert.Equal(t, tt.want, returnTo(r, testOrigin))
		})
	}
}

func TestReturnTo_collapsedSlashes(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, testOrigin+"/login?"+ReturnToParameter+"=%2F.%2F%2Fevil.example.com%2Fx", nil)
	got := returnTo(r, testOrigin)
	assert.Equal(t, "/evil.example.com/x", got)
}

func TestIsSameOrigin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{name: "sec-fetch-site", headers: map[string]string{"Sec-Fetch-Site": "same-origin"}, want: true},
		{name: "cross-site", headers: map[string]string{"Sec-Fetch-Site": "cross-site"}, want: false},
		{name: "origin", headers: map[string]string{"Origin": testOrigin}, want: true},
		{name: "other-origin", headers: map[string]string{"Origin": "https://evil.example.com"}, want: false},
		{name: "referer", headers: map[string]string{"Referer": testOrigin + "/page?x=1"}, want: true},
		{name: "null-origin-referer", headers: map[string]string{"Origin": "null", "Referer": testOrigin + "/"}, want: true},
		{name: "other-referer", headers: map[string]string{"Referer": "https://evil.example.com/"}, want: false},
		{name: "nothing", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, testOrigin+"/logout", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, isSameOrigin(r, testOrigin))
		})
	}
}

func TestIsNavigation(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	r := httptest.NewRequest(http.MethodGet, testOrigin+"/", nil)
	assert.True(isNavigation(r))
	r.Header.Set("Sec-Fetch-Mode", "navigate")
	assert.True(isNavigation(r))
	r.Header.Set("Sec-Fetch-Mode", "cors")
	assert.False(isNavigation(r))
}

func TestRequestOrigin(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal(testOrigin, requestOrigin(httptest.NewRequest(http.MethodGet, testOrigin+"/x", nil)))
	assert.Equal("http://localhost:8080", requestOrigin(httptest.NewRequest(http.MethodGet, "http://localhost:8080/x", nil)))
	assert.Equal(testOrigin, getOpts(WithBaseURL(testOrigin+"/")).origin(httptest.NewRequest(http.MethodGet, "http://internal/x", nil)))
}
