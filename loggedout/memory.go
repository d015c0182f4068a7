// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package loggedout

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// InMemory is a Store held in process memory.
//
// Each sid maps to an immutable set of local ids. Updates build a new set and
// publish it with a compare-and-swap on the key, retrying when another
// goroutine won the race, so an operation never observes a half-applied
// update and never blocks other keys.
type InMemory struct {
	entries  sync.Map // sid -> *idSet
	logger   hclog.Logger
	onLogout LogoutFunc
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty InMemory store.
//
// Supported options: WithLogger, WithLogoutFunc
func NewInMemory(opt ...Option) *InMemory {
	opts := getStoreOpts(opt...)
	return &InMemory{
		logger:   opts.withLogger,
		onLogout: opts.withLogoutFunc,
	}
}

// idSet is never mutated once stored.
type idSet struct {
	ids map[string]struct{}
}

func (s *idSet) has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

func (s *idSet) len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// with returns a copy of s with add included and remove excluded, or nil
// when the result is empty.
func (s *idSet) with(add, remove string) *idSet {
	next := &idSet{ids: make(map[string]struct{}, s.len()+1)}
	if s != nil {
		for id := range s.ids {
			if id != remove {
				next.ids[id] = struct{}{}
			}
		}
	}
	if add != "" {
		next.ids[add] = struct{}{}
	}
	if len(next.ids) == 0 {
		return nil
	}
	return next
}

func (s *idSet) slice() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	return ids
}

// compute atomically replaces the set of sid by fn(current). A nil result
// deletes the key; returning current unchanged is a no-op.
func (m *InMemory) compute(sid string, fn func(cur *idSet) *idSet) {
	for {
		v, loaded := m.entries.Load(sid)
		var cur *idSet
		if loaded {
			cur = v.(*idSet)
		}
		next := fn(cur)
		switch {
		case next == cur:
			return
		case !loaded:
			if _, raced := m.entries.LoadOrStore(sid, next); !raced {
				return
			}
		case next == nil:
			if m.entries.CompareAndDelete(sid, cur) {
				return
			}
		default:
			if m.entries.CompareAndSwap(sid, cur, next) {
				return
			}
		}
	}
}

func (m *InMemory) Acquire(_ context.Context, sid, localID string) error {
	const op = "loggedout.(InMemory).Acquire"
	if err := validate(op, sid, localID); err != nil {
		return err
	}
	m.compute(sid, func(cur *idSet) *idSet {
		if cur.has(localID) {
			return cur
		}
		return cur.with(localID, "")
	})
	return nil
}

func (m *InMemory) Release(_ context.Context, sid, localID string) error {
	const op = "loggedout.(InMemory).Release"
	if err := validate(op, sid, localID); err != nil {
		return err
	}
	m.compute(sid, func(cur *idSet) *idSet {
		if !cur.has(localID) {
			return cur
		}
		return cur.with("", localID)
	})
	return nil
}

func (m *InMemory) Renew(_ context.Context, sid, oldID, newID string) error {
	const op = "loggedout.(InMemory).Renew"
	if err := validate(op, sid, oldID, newID); err != nil {
		return err
	}
	m.compute(sid, func(cur *idSet) *idSet {
		if cur == nil {
			m.logger.Warn("renewing a session for an unknown sid", "op", op)
		}
		if oldID == newID && cur.has(newID) {
			return cur
		}
		return cur.with(newID, oldID)
	})
	return nil
}

func (m *InMemory) Logout(ctx context.Context, sid string) error {
	const op = "loggedout.(InMemory).Logout"
	if err := validate(op, sid); err != nil {
		return err
	}
	v, loaded := m.entries.LoadAndDelete(sid)
	if !loaded {
		return nil
	}
	ids := v.(*idSet).slice()
	m.logger.Debug("sid logged out", "op", op, "sessions", len(ids))
	if m.onLogout != nil {
		m.onLogout(ctx, sid, ids)
	}
	return nil
}

func (m *InMemory) IsLoggedOut(_ context.Context, sid string) (bool, error) {
	const op = "loggedout.(InMemory).IsLoggedOut"
	if err := validate(op, sid); err != nil {
		return false, err
	}
	v, ok := m.entries.Load(sid)
	return !ok || v.(*idSet).len() == 0, nil
}

// Len returns the number of sids currently bound to at least one local id.
func (m *InMemory) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
