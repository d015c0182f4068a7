// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"net/http"
)

// Strategy decides whether requests reaching a Gate are authorized, and how
// to answer those that aren't.
type Strategy interface {
	IsAuthorized(r *http.Request) bool

	// OnUnauthorizedSafe answers GET and HEAD navigation requests.
	OnUnauthorizedSafe(w http.ResponseWriter, r *http.Request)

	// OnUnauthorizedUnsafe answers every other request.
	OnUnauthorizedUnsafe(w http.ResponseWriter, r *http.Request)
}

// ungated is implemented by strategies knowing paths that must never be
// gated.
type ungated interface {
	ungatedPaths() []string
}

// Gate returns a middleware letting through the requests authorized by st.
// It must come after Binder.
//
// Requests for the callback and back-channel logout paths of the strategy's
// Redirector, and for the paths given with WithUngatedPaths, are always let
// through.
//
// Supported options: WithUngatedPaths
func Gate(st Strategy, opt ...Option) func(http.Handler) http.Handler {
	opts := getOpts(opt...)
	paths := map[string]struct{}{}
	for _, p := range opts.withUngatedPaths {
		paths[p] = struct{}{}
	}
	if u, ok := st.(ungated); ok {
		for _, p := range u.ungatedPaths() {
			paths[p] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := paths[r.URL.Path]; ok || st.IsAuthorized(r) {
				next.ServeHTTP(w, r)
				return
			}
			if isNavigation(r) && isSafeMethod(r) {
				st.OnUnauthorizedSafe(w, r)
				return
			}
			st.OnUnauthorizedUnsafe(w, r)
		})
	}
}

// IsAuthenticated authorizes requests with a principal. Unauthenticated
// navigations start an authentication flow coming back to the requested
// URI; other requests are answered with a 401.
type IsAuthenticated struct {
	rd *Redirector
}

var _ Strategy = (*IsAuthenticated)(nil)

// NewIsAuthenticated returns the IsAuthenticated strategy redirecting with
// rd.
func NewIsAuthenticated(rd *Redirector) *IsAuthenticated {
	return &IsAuthenticated{rd: rd}
}

// IsAuthorized implements Strategy.
func (st *IsAuthenticated) IsAuthorized(r *http.Request) bool {
	_, ok := PrincipalFromContext(r.Context())
	return ok
}

// OnUnauthorizedSafe implements Strategy.
func (st *IsAuthenticated) OnUnauthorizedSafe(w http.ResponseWriter, r *http.Request) {
	st.rd.serveRedirect(w, r, requestURI(r))
}

// OnUnauthorizedUnsafe implements Strategy.
func (st *IsAuthenticated) OnUnauthorizedUnsafe(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func (st *IsAuthenticated) ungatedPaths() []string {
	paths := []string{st.rd.CallbackPath()}
	if bp := st.rd.BackchannelLogoutPath(); bp != "" {
		paths = append(paths, bp)
	}
	return paths
}

// HasRole authorizes requests whose principal has a role. Requests without
// principal are handled as with IsAuthenticated; those with a principal
// lacking the role are answered with a 403.
type HasRole struct {
	authn *IsAuthenticated
	role  string
}

var _ Strategy = (*HasRole)(nil)

// NewHasRole returns the HasRole strategy for role, redirecting with rd.
func NewHasRole(rd *Redirector, role string) *HasRole {
	return &HasRole{authn: NewIsAuthenticated(rd), role: role}
}

// IsAuthorized implements Strategy.
func (st *HasRole) IsAuthorized(r *http.Request) bool {
	return IsUserInRole(r, st.role)
}

// OnUnauthorizedSafe implements Strategy.
func (st *HasRole) OnUnauthorizedSafe(w http.ResponseWriter, r *http.Request) {
	if st.authn.IsAuthorized(r) {
		forbidden(w)
		return
	}
	st.authn.OnUnauthorizedSafe(w, r)
}

// OnUnauthorizedUnsafe implements Strategy.
func (st *HasRole) OnUnauthorizedUnsafe(w http.ResponseWriter, r *http.Request) {
	if st.authn.IsAuthorized(r) {
		forbidden(w)
		return
	}
	st.authn.OnUnauthorizedUnsafe(w, r)
}

func (st *HasRole) ungatedPaths() []string {
	return st.authn.ungatedPaths()
}

func forbidden(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
