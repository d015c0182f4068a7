// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/tbroyer/oidc-servlets-sub000/session"
)

// LogoutCallback handles the provider's redirect after an RP-initiated
// logout sent with WithLogoutState. It must be served at the path given to
// WithPostLogoutRedirectPath.
type LogoutCallback struct {
	sessions session.Store
	opts     options
	responder
}

var _ http.Handler = (*LogoutCallback)(nil)

// NewLogoutCallback creates the handler checking the logout states kept in
// the sessions of the store.
//
// Supported options: WithLogger, WithErrorResponse
func NewLogoutCallback(sessions session.Store, opt ...Option) (*LogoutCallback, error) {
	const op = "rp.NewLogoutCallback"
	if sessions == nil {
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	return &LogoutCallback{sessions: sessions, opts: opts, responder: responder{opts: opts}}, nil
}

// ServeHTTP implements http.Handler.
func (lc *LogoutCallback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "rp.(LogoutCallback).ServeHTTP"
	if !isNavigation(r) {
		lc.fail(w, r, op, KindClient, "Not a navigation request", ErrNotNavigation)
		return
	}
	s, err := lc.sessions.Get(r)
	if err != nil {
		lc.fail(w, r, op, KindIO, "Error loading session", err)
		return
	}
	var pending *session.LogoutState
	if s != nil {
		pending = s.TakePendingLogout()
	}
	if pending == nil {
		lc.fail(w, r, op, KindClient, "Missing saved state from logout initiation", ErrMissingState)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("state")), []byte(pending.State)) != 1 {
		lc.fail(w, r, op, KindClient, "State mismatch", ErrStateMismatch)
		return
	}
	returnURI := pending.ReturnURI
	if returnURI == "" {
		returnURI = "/"
	}
	sendRedirect(w, returnURI)
}
