// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
Package session keeps the per-browser state of a relying party: the pending
authentication and logout round trips, and the authenticated Info.

A Session is typed. Its pending states are single use, read with
TakePendingAuth and TakePendingLogout which clear them. Sessions are shared
by every concurrent request of a browser and are safe for concurrent use.

A Store finds the session of a request (usually from a cookie), creates,
rotates and invalidates sessions. MemoryStore keeps sessions in process
memory and expires them after an idle timeout. A Listener is told when a
session is created, when its id changes and when it ends, including idle
expiry.
*/
package session
