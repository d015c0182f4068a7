// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"fmt"
	"net/http"
)

// Login starts an authentication flow on explicit request, e.g. a "Sign in"
// link or form. It comes back to the ReturnToParameter of the request,
// reduced to a path of the application.
//
// Cross-origin requests, and requests of an already authenticated user, are
// redirected to the return target directly.
type Login struct {
	rd   *Redirector
	opts options
	responder
}

var _ http.Handler = (*Login)(nil)

// NewLogin creates the handler starting flows with rd.
//
// Supported options: WithLogger, WithErrorResponse, WithBaseURL
func NewLogin(rd *Redirector, opt ...Option) (*Login, error) {
	const op = "rp.NewLogin"
	if rd == nil {
		return nil, fmt.Errorf("%s: redirector is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	return &Login{rd: rd, opts: opts, responder: responder{opts: opts}}, nil
}

// ServeHTTP implements http.Handler.
func (l *Login) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "rp.(Login).ServeHTTP"
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
	s, err := l.rd.sessions.Get(r)
	if err != nil {
		l.fail(w, r, op, KindIO, "Error loading session", err)
		return
	}
	if s != nil && s.Info() != nil {
		sendRedirect(w, target)
		return
	}
	l.rd.serveRedirect(w, r, target)
}
