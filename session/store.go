// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"net/http"
)

// Store finds, creates, rotates and invalidates the sessions of requests.
type Store interface {
	// Get returns the session of r, or nil (and no error) when r has no
	// valid session.
	Get(r *http.Request) (*Session, error)

	// New creates a session and makes the browser use it.
	New(w http.ResponseWriter, r *http.Request) (*Session, error)

	// Rotate gives s a new id, and makes the browser use it.
	Rotate(w http.ResponseWriter, r *http.Request, s *Session) error

	// Invalidate ends s. Invalidating an ended session is a no-op.
	Invalidate(w http.ResponseWriter, r *http.Request, s *Session) error
}

// GetOrNew returns the session of r, creating one when needed.
func GetOrNew(st Store, w http.ResponseWriter, r *http.Request) (*Session, error) {
	const op = "session.GetOrNew"
	if st == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	s, err := st.Get(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s != nil {
		return s, nil
	}
	s, err = st.New(w, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// Listener is told about the life of sessions. Listeners are called
// synchronously and must not block.
type Listener interface {
	SessionCreated(s *Session)
	SessionIDChanged(s *Session, oldID string)
	// SessionDestroyed is called once per session, when it's invalidated or
	// expires. Info is still readable.
	SessionDestroyed(s *Session)
}

// ListenerFuncs is a Listener whose nil funcs are skipped.
type ListenerFuncs struct {
	Created   func(s *Session)
	IDChanged func(s *Session, oldID string)
	Destroyed func(s *Session)
}

var _ Listener = ListenerFuncs{}

// SessionCreated implements Listener.
func (l ListenerFuncs) SessionCreated(s *Session) {
	if l.Created != nil {
		l.Created(s)
	}
}

// SessionIDChanged implements Listener.
func (l ListenerFuncs) SessionIDChanged(s *Session, oldID string) {
	if l.IDChanged != nil {
		l.IDChanged(s, oldID)
	}
}

// SessionDestroyed implements Listener.
func (l ListenerFuncs) SessionDestroyed(s *Session) {
	if l.Destroyed != nil {
		l.Destroyed(s)
	}
}
