// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tbroyer/oidc-servlets-sub000/internal/metrics"
	"github.com/tbroyer/oidc-servlets-sub000/loggedout"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/session"
)

// BackchannelLogout handles the provider's back-channel logout requests
// (OpenID Connect Back-Channel Logout 1.0). The provider session of a valid
// logout token is marked logged out in the store, and Binder invalidates its
// local sessions on their next request.
//
// It isn't a navigation endpoint: it must be listed in WithUngatedPaths and
// served without the session middlewares.
type BackchannelLogout struct {
	provider *oidc.Provider
	store    loggedout.Store
	opts     options
	responder
}

var _ http.Handler = (*BackchannelLogout)(nil)

// NewBackchannelLogout creates the handler verifying the logout tokens of p
// and logging their sessions out of the store.
//
// Supported options: WithLogger, WithErrorResponse, WithMetrics
func NewBackchannelLogout(p *oidc.Provider, store loggedout.Store, opt ...Option) (*BackchannelLogout, error) {
	const op = "rp.NewBackchannelLogout"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	case store == nil:
		return nil, fmt.Errorf("%s: logged out store is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	return &BackchannelLogout{provider: p, store: store, opts: opts, responder: responder{opts: opts}}, nil
}

// ServeHTTP implements http.Handler.
func (b *BackchannelLogout) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e := b.handle(w, r); e != nil {
		b.opts.withMetrics.collectors().BackchannelLogout(outcome(e.Kind))
		return
	}
	b.opts.withMetrics.collectors().BackchannelLogout(metrics.OutcomeSuccess)
}

func (b *BackchannelLogout) handle(w http.ResponseWriter, r *http.Request) *Error {
	const op = "rp.(BackchannelLogout).ServeHTTP"
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return &Error{Kind: KindClient, Message: "Method not allowed"}
	}
	w.Header().Set("Cache-Control", "no-store")
	raw := r.PostFormValue("logout_token")
	if raw == "" {
		return b.fail(w, r, op, KindClient, "Missing logout token",
			fmt.Errorf("%s: no logout_token: %w", op, ErrInvalidParameter))
	}
	lt, err := b.provider.VerifyLogoutToken(r.Context(), raw)
	if err != nil {
		return b.fail(w, r, op, KindClient, "Error validating logout token", err)
	}
	if lt.SessionId != "" {
		if err := b.store.Logout(r.Context(), lt.SessionId); err != nil {
			return b.fail(w, r, op, KindIO, "Error logging out session", err)
		}
	}
	b.opts.withLogger.Debug("back-channel logout", "op", op, "sid", lt.SessionId, "sub", lt.Subject)
	w.WriteHeader(http.StatusOK)
	return nil
}

// BackchannelLogoutListener binds the local sessions to their provider
// session in a loggedout.Store. It must be registered both on the session
// store (session.WithListener) and on the Callback
// (WithAuthenticationListener).
type BackchannelLogoutListener struct {
	store loggedout.Store
	opts  options
}

var (
	_ session.Listener       = (*BackchannelLogoutListener)(nil)
	_ AuthenticationListener = (*BackchannelLogoutListener)(nil)
)

// NewBackchannelLogoutListener creates the listener binding sessions in
// the store.
//
// Supported options: WithLogger
func NewBackchannelLogoutListener(store loggedout.Store, opt ...Option) (*BackchannelLogoutListener, error) {
	const op = "rp.NewBackchannelLogoutListener"
	if store == nil {
		return nil, fmt.Errorf("%s: logged out store is nil: %w", op, ErrNilParameter)
	}
	return &BackchannelLogoutListener{store: store, opts: getOpts(opt...)}, nil
}

// SessionCreated implements session.Listener.
func (l *BackchannelLogoutListener) SessionCreated(*session.Session) {}

// SessionIDChanged implements session.Listener.
func (l *BackchannelLogoutListener) SessionIDChanged(s *session.Session, oldID string) {
	const op = "rp.(BackchannelLogoutListener).SessionIDChanged"
	sid := s.Info().SessionId()
	if sid == "" {
		return
	}
	if err := l.store.Renew(context.Background(), sid, oldID, s.ID()); err != nil {
		l.opts.withLogger.Error("renewing session binding", "op", op, "error", err)
	}
}

// SessionDestroyed implements session.Listener.
func (l *BackchannelLogoutListener) SessionDestroyed(s *session.Session) {
	const op = "rp.(BackchannelLogoutListener).SessionDestroyed"
	sid := s.Info().SessionId()
	if sid == "" {
		return
	}
	if err := l.store.Release(context.Background(), sid, s.ID()); err != nil {
		l.opts.withLogger.Error("releasing session binding", "op", op, "error", err)
	}
}

// Authenticated implements AuthenticationListener. The session is unbound
// from the provider session it had before, if another one.
func (l *BackchannelLogoutListener) Authenticated(r *http.Request, s *session.Session, previous *session.Info) error {
	const op = "rp.(BackchannelLogoutListener).Authenticated"
	sid := s.Info().SessionId()
	if old := previous.SessionId(); old != "" && old != sid {
		if err := l.store.Release(r.Context(), old, s.ID()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if sid == "" {
		return nil
	}
	if err := l.store.Acquire(r.Context(), sid, s.ID()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
