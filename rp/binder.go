// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"fmt"
	"net/http"

	"github.com/tbroyer/oidc-servlets-sub000/session"
)

// Binder is a middleware binding the principal of authenticated sessions to
// their requests (see PrincipalFromContext). A session whose provider
// session has been logged out through the back channel is invalidated, and
// its request goes on unauthenticated.
type Binder struct {
	sessions session.Store
	opts     options
	responder
}

// NewBinder creates a Binder for the sessions of the store.
//
// Supported options: WithLogger, WithErrorResponse, WithMetrics,
// WithPrincipalFactory, WithLoggedOutStore
func NewBinder(sessions session.Store, opt ...Option) (*Binder, error) {
	const op = "rp.NewBinder"
	if sessions == nil {
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	return &Binder{sessions: sessions, opts: opts, responder: responder{opts: opts}}, nil
}

// Handler returns the middleware.
func (b *Binder) Handler(next http.Handler) http.Handler {
	const op = "rp.(Binder).Handler"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		s, err := b.sessions.Get(r)
		if err != nil {
			b.fail(w, r, op, KindIO, "Error loading session", err)
			return
		}
		var info *session.Info
		if s != nil {
			info = s.Info()
		}
		if info == nil {
			next.ServeHTTP(w, r)
			return
		}
		if sid := info.SessionId(); sid != "" {
			out, err := b.opts.withLoggedOutStore.IsLoggedOut(r.Context(), sid)
			if err != nil {
				b.fail(w, r, op, KindIO, "Error checking session", err)
				return
			}
			if out {
				if err := b.sessions.Invalidate(w, r, s); err != nil {
					b.fail(w, r, op, KindIO, "Error invalidating session", err)
					return
				}
				b.opts.withLogger.Debug("session logged out by provider", "op", op, "sid", sid)
				b.opts.withMetrics.collectors().Logout()
				next.ServeHTTP(w, r)
				return
			}
		}
		p := b.opts.withPrincipalFactory.NewPrincipal(info, s)
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}
