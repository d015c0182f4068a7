// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package loggedout

import (
	"context"
	"fmt"
)

// Store is a process wide registry of OP session ids and the local session
// ids bound to them. Implementations must be safe for concurrent use and make
// each operation atomic for its sid; nothing is required across keys.
type Store interface {
	// Acquire binds localID to sid.
	Acquire(ctx context.Context, sid, localID string) error

	// Release unbinds localID from sid, deleting sid once no id is left.
	// Releasing an id that is not bound is a no-op.
	Release(ctx context.Context, sid, localID string) error

	// Renew replaces oldID by newID for sid. An absent sid is handled as
	// Acquire(ctx, sid, newID).
	Renew(ctx context.Context, sid, oldID, newID string) error

	// Logout marks sid as logged out by dropping all its local ids.
	Logout(ctx context.Context, sid string) error

	// IsLoggedOut reports whether sid has no bound local id.
	IsLoggedOut(ctx context.Context, sid string) (bool, error)
}

// LogoutFunc is called after Logout dropped the local ids bound to sid.
type LogoutFunc func(ctx context.Context, sid string, localIDs []string)

func validate(op string, values ...string) error {
	for _, v := range values {
		if v == "" {
			return fmt.Errorf("%s: empty id: %w", op, ErrInvalidParameter)
		}
	}
	return nil
}

// Null is a Store which keeps nothing and never reports a sid as logged out.
// It is the store to use when back-channel logout is not supported.
type Null struct{}

var _ Store = Null{}

func (Null) Acquire(context.Context, string, string) error { return nil }
func (Null) Release(context.Context, string, string) error { return nil }
func (Null) Renew(context.Context, string, string, string) error { return nil }
func (Null) Logout(context.Context, string) error { return nil }
func (Null) IsLoggedOut(context.Context, string) (bool, error) { return false, nil }
