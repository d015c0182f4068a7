// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"sync"
	"time"

	"github.com/tbroyer/oidc-servlets-sub000/oidc"
)

// AuthenticationState is the state of an authorization request, kept until
// the provider redirects the browser back.
type AuthenticationState struct {
	State        string
	Nonce        string
	CodeVerifier oidc.CodeVerifier
	// ReturnURI is the path (and query) to redirect to once authenticated.
	ReturnURI string
}

// LogoutState is the state of an RP-initiated logout, kept until the
// provider redirects the browser back.
type LogoutState struct {
	State     string
	ReturnURI string
}

// Info is what's known about the authenticated user.
type Info struct {
	Token         *oidc.Token
	IdTokenClaims *oidc.IdTokenClaims
	UserInfo      *oidc.UserInfo
}

// SessionId returns the provider's session id ("sid" claim of the id_token),
// or an empty string.
func (i *Info) SessionId() string {
	if i == nil || i.IdTokenClaims == nil {
		return ""
	}
	return i.IdTokenClaims.SessionId
}

// Session is a browser session. One session can be used by several
// concurrent requests.
type Session struct {
	mu            sync.Mutex
	id            string
	createdAt     time.Time
	pendingAuth   *AuthenticationState
	pendingLogout *LogoutState
	info          *Info
	values        map[interface{}]interface{}
	invalidated   bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{id: id, createdAt: now}
}

// ID returns the current id of the session.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Valid reports whether the session has not been invalidated.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.invalidated
}

// SetPendingAuth replaces the pending authentication state.
func (s *Session) SetPendingAuth(st *AuthenticationState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAuth = st
}

// TakePendingAuth returns the pending authentication state and clears it.
func (s *Session) TakePendingAuth() *AuthenticationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pendingAuth
	s.pendingAuth = nil
	return st
}

// SetPendingLogout replaces the pending logout state.
func (s *Session) SetPendingLogout(st *LogoutState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingLogout = st
}

// TakePendingLogout returns the pending logout state and clears it.
func (s *Session) TakePendingLogout() *LogoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pendingLogout
	s.pendingLogout = nil
	return st
}

// Info returns the authenticated user info, or nil.
func (s *Session) Info() *Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// SetInfo stores the authenticated user info.
func (s *Session) SetInfo(i *Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = i
}

// TakeInfo returns the authenticated user info and clears it.
func (s *Session) TakeInfo() *Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.info
	s.info = nil
	return i
}

// Value returns the value stored for key, or nil. Keys should be of an
// unexported type, as with context.Context.
func (s *Session) Value(key interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// SetValue stores value for key. A nil value deletes the key.
func (s *Session) SetValue(key, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.values, key)
		return
	}
	if s.values == nil {
		s.values = map[interface{}]interface{}{}
	}
	s.values[key] = value
}

// LoadOrStoreValue returns the value stored for key if any. Otherwise, it
// stores and returns the value returned by create. create is called with the
// session locked and must not use the session.
func (s *Session) LoadOrStoreValue(key interface{}, create func() (interface{}, error)) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	if s.values == nil {
		s.values = map[interface{}]interface{}{}
	}
	s.values[key] = v
	return v, nil
}

// setID changes the id and returns the previous one.
func (s *Session) setID(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.id
	s.id = id
	return old
}

// invalidate marks the session invalid and clears its pending states, and
// reports whether it was still valid. Info is kept for the listeners and
// cleared by clearInfo.
func (s *Session) invalidate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return false
	}
	s.invalidated = true
	s.pendingAuth = nil
	s.pendingLogout = nil
	s.values = nil
	return true
}

func (s *Session) clearInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = nil
}
