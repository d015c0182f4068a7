// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind   Kind
		str    string
		status int
	}{
		{kind: KindClient, str: "client", status: http.StatusBadRequest},
		{kind: KindProvider, str: "provider", status: http.StatusInternalServerError},
		{kind: KindIO, str: "io", status: http.StatusInternalServerError},
		{kind: Kind(42), str: "Kind(42)", status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.str, tt.kind.String())
		assert.Equal(t, tt.status, tt.kind.Status())
	}
}

func TestError(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	cause := errors.New("boom")
	e := &Error{Kind: KindIO, Message: "Error in token request", Err: cause}
	assert.Equal("io: Error in token request: boom", e.Error())
	assert.ErrorIs(e, cause)
	assert.Equal("client: State mismatch", (&Error{Kind: KindClient, Message: "State mismatch"}).Error())

	rec := httptest.NewRecorder()
	rs := responder{opts: getOpts()}
	got := rs.fail(rec, httptest.NewRequest(http.MethodGet, testOrigin+"/", nil), "test", KindProvider, "Error validating ID Token", cause)
	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.Equal("Error validating ID Token\n", rec.Body.String())
	assert.NotContains(rec.Body.String(), "boom")
	assert.Same(cause, got.Err)
}

func TestMetrics_nil(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.collectors().Callback("success")
		l := m.SessionListener()
		l.SessionCreated(nil)
		l.SessionDestroyed(nil)
	})
}
