// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
Package loggedout tracks OpenID Provider sessions that ended through
back-channel logout.

A Store maps an OP session id (the "sid" claim) to the set of local session
ids bound to it. A sid is logged out iff its set is empty or absent, so:

	store.Acquire(ctx, sid, "1") // after a successful login
	store.Renew(ctx, sid, "1", "2") // the local session id was rotated
	store.Release(ctx, sid, "2") // the local session ended
	store.Logout(ctx, sid) // the OP pushed a logout token

Every operation is an atomic compute on its key. Releasing an id that
Logout (or a newer Renew) already removed is a no-op, and empty sets are
deleted so memory is bounded by the number of live sessions.

Local sessions are not invalidated by Logout itself; the next request on an
affected session notices the sid is logged out and invalidates it. Use
WithLogoutFunc to act eagerly instead.
*/
package loggedout
