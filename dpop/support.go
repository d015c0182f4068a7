// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import (
	"fmt"

	"github.com/tbroyer/oidc-servlets-sub000/session"
)

// Support provides the DPoP key to use for a browser session.
type Support interface {
	Key(s *session.Session) (*Key, error)
}

// Static uses the same key for every session.
type Static struct {
	key *Key
}

var _ Support = (*Static)(nil)

// NewStatic returns a Support always using key.
func NewStatic(key *Key) (*Static, error) {
	const op = "dpop.NewStatic"
	if key == nil {
		return nil, fmt.Errorf("%s: key is nil: %w", op, ErrNilParameter)
	}
	return &Static{key: key}, nil
}

// Key implements Support.
func (st *Static) Key(*session.Session) (*Key, error) {
	return st.key, nil
}

// PerSession generates a key the first time a session needs one, and keeps
// it in the session for its lifetime.
type PerSession struct {
	generate func() (*Key, error)
}

var _ Support = (*PerSession)(nil)

type sessionKey struct{}

// NewPerSession returns a Support generating keys with generate, or
// GenerateKey when nil.
func NewPerSession(generate func() (*Key, error)) *PerSession {
	if generate == nil {
		generate = GenerateKey
	}
	return &PerSession{generate: generate}
}

// Key implements Support.
func (ps *PerSession) Key(s *session.Session) (*Key, error) {
	const op = "dpop.(PerSession).Key"
	if s == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	v, err := s.LoadOrStoreValue(sessionKey{}, func() (interface{}, error) {
		return ps.generate()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate key: %w", op, err)
	}
	return v.(*Key), nil
}
