// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"fmt"
	"net/http"

	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/session"
)

// Logout logs the user out on a same-origin POST navigation: it
// invalidates the session, then redirects to the provider's
// end_session_endpoint when advertised, or to the ReturnToParameter of the
// request.
//
// Nothing is logged out for cross-origin requests, which are redirected to
// the return target.
type Logout struct {
	provider *oidc.Provider
	sessions session.Store
	opts     options
	responder
}

var _ http.Handler = (*Logout)(nil)

// NewLogout creates the handler logging out of p the sessions of the store.
//
// Supported options: WithLogger, WithErrorResponse, WithMetrics,
// WithBaseURL, WithPostLogoutRedirectPath, WithLogoutState,
// WithTokenRevoker
func NewLogout(p *oidc.Provider, sessions session.Store, opt ...Option) (*Logout, error) {
	const op = "rp.NewLogout"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	case sessions == nil:
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	if opts.withLogoutState && opts.withPostLogoutPath == "" {
		return nil, fmt.Errorf("%s: logout state needs a post logout redirect path: %w", op, ErrInvalidParameter)
	}
	return &Logout{provider: p, sessions: sessions, opts: opts, responder: responder{opts: opts}}, nil
}

// ServeHTTP implements http.Handler.
func (l *Logout) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "rp.(Logout).ServeHTTP"
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if !isNavigation(r) {
		l.fail(w, r, op, KindClient, "Not a navigation request", ErrNotNavigation)
		return
	}
	origin := l.opts.origin(r)
	target := returnTo(r, origin)
	if !isSameOrigin(r, origin) {
		sendRedirect(w, target)
		return
	}

	s, err := l.sessions.Get(r)
	if err != nil {
		l.fail(w, r, op, KindIO, "Error loading session", err)
		return
	}
	if s == nil {
		sendRedirect(w, target)
		return
	}
	// Info is read before invalidating: listeners need its sid.
	info := s.Info()
	if err := l.sessions.Invalidate(w, r, s); err != nil {
		l.fail(w, r, op, KindIO, "Error invalidating session", err)
		return
	}
	if info == nil {
		sendRedirect(w, target)
		return
	}
	l.opts.withMetrics.collectors().Logout()
	if l.opts.withTokenRevoker != nil {
		l.opts.withTokenRevoker.Revoke(info.Token)
	}
	if l.provider.Metadata().EndSessionEndpoint == "" {
		sendRedirect(w, target)
		return
	}

	var postLogout, state string
	if l.opts.withPostLogoutPath != "" {
		postLogout = origin + l.opts.withPostLogoutPath
		if l.opts.withLogoutState {
			state = l.newLogoutState(w, r, target)
		}
	}
	var idToken oidc.IdToken
	if info.Token != nil {
		idToken = info.Token.IdToken
	}
	location, err := l.provider.EndSessionURL(idToken, postLogout, state)
	if err != nil {
		l.opts.withLogger.Error("building end session URL", "op", op, "error", err)
		sendRedirect(w, target)
		return
	}
	sendRedirect(w, location)
}

// newLogoutState stores a LogoutState in a new session and returns its
// state, or an empty string when it fails. The logout goes on without
// state then.
func (l *Logout) newLogoutState(w http.ResponseWriter, r *http.Request, target string) string {
	const op = "rp.(Logout).newLogoutState"
	state, err := oidc.NewId("")
	if err != nil {
		l.opts.withLogger.Warn("logout state not generated", "op", op, "error", err)
		return ""
	}
	s, err := l.sessions.New(w, r)
	if err != nil {
		l.opts.withLogger.Warn("logout state not saved", "op", op, "error", err)
		return ""
	}
	s.SetPendingLogout(&session.LogoutState{State: state, ReturnURI: target})
	return state
}
