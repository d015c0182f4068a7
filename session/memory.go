// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/patrickmn/go-cache"
	"github.com/tbroyer/oidc-servlets-sub000/sdk/id"
)

// MemoryStore is a Store keeping sessions in process memory, identified by a
// cookie. A session unused for the idle timeout expires.
type MemoryStore struct {
	cache     *cache.Cache
	listeners []Listener
	logger    hclog.Logger
	now       func() time.Time

	cookieName   string
	cookiePath   string
	cookieDomain string
	secure       bool
	sameSite     http.SameSite
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
//
// Supported options: WithLogger, WithListener, WithIdleTimeout,
// WithCleanupInterval, WithCookieName, WithCookiePath, WithCookieDomain,
// WithInsecureCookie, WithSameSite, WithNow
func NewMemoryStore(opt ...Option) (*MemoryStore, error) {
	const op = "session.NewMemoryStore"
	opts := getMemoryOpts(opt...)
	switch {
	case opts.withIdleTimeout <= 0:
		return nil, fmt.Errorf("%s: idle timeout must be positive: %w", op, ErrInvalidParameter)
	case opts.withCleanupInterval <= 0:
		return nil, fmt.Errorf("%s: cleanup interval must be positive: %w", op, ErrInvalidParameter)
	}
	st := &MemoryStore{
		cache:        cache.New(opts.withIdleTimeout, opts.withCleanupInterval),
		listeners:    opts.withListeners,
		logger:       opts.withLogger,
		now:          opts.withNowFunc,
		cookieName:   opts.withCookieName,
		cookiePath:   opts.withCookiePath,
		cookieDomain: opts.withCookieDomain,
		secure:       !opts.withInsecureCookie,
		sameSite:     opts.withSameSite,
	}
	st.cache.OnEvicted(st.evicted)
	return st, nil
}

// Get implements Store.
func (st *MemoryStore) Get(r *http.Request) (*Session, error) {
	c, err := r.Cookie(st.cookieName)
	if err != nil || c.Value == "" {
		return nil, nil
	}
	return st.Lookup(c.Value), nil
}

// Lookup returns the valid session with the given id, or nil. It resets the
// idle timeout of the session.
func (st *MemoryStore) Lookup(id string) *Session {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil
	}
	s := v.(*Session)
	if !s.Valid() || s.ID() != id {
		return nil
	}
	// Replace fails when the session was concurrently rotated or removed.
	_ = st.cache.Replace(id, s, cache.DefaultExpiration)
	return s
}

// New implements Store.
func (st *MemoryStore) New(w http.ResponseWriter, _ *http.Request) (*Session, error) {
	const op = "session.(MemoryStore).New"
	sid, err := st.newID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s := newSession(sid, st.now())
	if err := st.cache.Add(sid, s, cache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	st.setCookie(w, sid)
	for _, l := range st.listeners {
		l.SessionCreated(s)
	}
	return s, nil
}

// Rotate implements Store.
func (st *MemoryStore) Rotate(w http.ResponseWriter, _ *http.Request, s *Session) error {
	const op = "session.(MemoryStore).Rotate"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	if !s.Valid() {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	sid, err := st.newID()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := st.cache.Add(sid, s, cache.DefaultExpiration); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	old := s.setID(sid)
	// evicted ignores the old key since it no longer matches the session id.
	st.cache.Delete(old)
	st.setCookie(w, sid)
	for _, l := range st.listeners {
		l.SessionIDChanged(s, old)
	}
	return nil
}

// Invalidate implements Store.
func (st *MemoryStore) Invalidate(w http.ResponseWriter, _ *http.Request, s *Session) error {
	const op = "session.(MemoryStore).Invalidate"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	st.cache.Delete(s.ID())
	st.destroy(s)
	if w != nil {
		http.SetCookie(w, st.cookie("", -1))
	}
	return nil
}

// InvalidateIDs invalidates the sessions with the given ids, when they
// exist. It's meant to be used with loggedout.WithLogoutFunc.
func (st *MemoryStore) InvalidateIDs(ids ...string) {
	for _, sid := range ids {
		st.cache.Delete(sid)
	}
}

// Len returns the number of sessions, including the expired ones not purged
// yet.
func (st *MemoryStore) Len() int {
	return st.cache.ItemCount()
}

// DeleteExpired removes the expired sessions without waiting for the next
// cleanup.
func (st *MemoryStore) DeleteExpired() {
	st.cache.DeleteExpired()
}

func (st *MemoryStore) evicted(key string, v interface{}) {
	s, ok := v.(*Session)
	if !ok || s.ID() != key {
		return
	}
	st.destroy(s)
}

func (st *MemoryStore) destroy(s *Session) {
	if !s.invalidate() {
		return
	}
	st.logger.Debug("session destroyed", "op", "session.(MemoryStore).destroy")
	for _, l := range st.listeners {
		l.SessionDestroyed(s)
	}
	s.clearInfo()
}

func (st *MemoryStore) newID() (string, error) {
	v, err := id.New("")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIdGeneratorFailed, err)
	}
	return v, nil
}

func (st *MemoryStore) setCookie(w http.ResponseWriter, value string) {
	if w != nil {
		http.SetCookie(w, st.cookie(value, 0))
	}
}

func (st *MemoryStore) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     st.cookieName,
		Value:    value,
		Path:     st.cookiePath,
		Domain:   st.cookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: st.sameSite,
	}
}
