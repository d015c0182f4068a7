// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"context"
	"net/http"

	"github.com/tbroyer/oidc-servlets-sub000/session"
)

// Principal is the authenticated user of a request.
type Principal interface {
	// Name is the subject of the user at the provider.
	Name() string
	HasRole(role string) bool
	SessionInfo() *session.Info
}

// PrincipalFactory builds the principal of authenticated sessions.
type PrincipalFactory interface {
	// NewPrincipal is called by Binder for every request of an
	// authenticated session.
	NewPrincipal(info *session.Info, s *session.Session) Principal

	// UserAuthenticated is called by Callback once a session is
	// authenticated, e.g. to precompute and store roles in s.
	UserAuthenticated(info *session.Info, s *session.Session)
}

type principalKey struct{}

// PrincipalFromContext returns the principal Binder bound to the request.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p != nil
}

// ContextWithPrincipal returns a copy of ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// RemoteUser returns the name of the principal of r, or an empty string.
func RemoteUser(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.Name()
	}
	return ""
}

// IsUserInRole reports whether r has a principal with role.
func IsUserInRole(r *http.Request, role string) bool {
	p, ok := PrincipalFromContext(r.Context())
	return ok && p.HasRole(role)
}

type basePrincipal struct {
	info *session.Info
}

func (p basePrincipal) Name() string {
	if p.info.UserInfo != nil && p.info.UserInfo.Subject != "" {
		return p.info.UserInfo.Subject
	}
	if p.info.IdTokenClaims != nil {
		return p.info.IdTokenClaims.Subject
	}
	return ""
}

func (p basePrincipal) SessionInfo() *session.Info {
	return p.info
}

// SimplePrincipal has no roles.
type SimplePrincipal struct {
	basePrincipal
}

// HasRole implements Principal, always returning false.
func (SimplePrincipal) HasRole(string) bool { return false }

// SimplePrincipalFactory builds SimplePrincipals.
type SimplePrincipalFactory struct{}

var _ PrincipalFactory = SimplePrincipalFactory{}

func (SimplePrincipalFactory) NewPrincipal(info *session.Info, _ *session.Session) Principal {
	return SimplePrincipal{basePrincipal{info: info}}
}

func (SimplePrincipalFactory) UserAuthenticated(*session.Info, *session.Session) {}

// KeycloakPrincipal takes its roles from the realm_access.roles userinfo
// claim of Keycloak.
type KeycloakPrincipal struct {
	basePrincipal
}

// HasRole implements Principal.
func (p KeycloakPrincipal) HasRole(role string) bool {
	if p.info.UserInfo == nil {
		return false
	}
	access, ok := p.info.UserInfo.Claim("realm_access").(map[string]interface{})
	if !ok {
		return false
	}
	roles, _ := access["roles"].([]interface{})
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// KeycloakPrincipalFactory builds KeycloakPrincipals.
type KeycloakPrincipalFactory struct{}

var _ PrincipalFactory = KeycloakPrincipalFactory{}

func (KeycloakPrincipalFactory) NewPrincipal(info *session.Info, _ *session.Session) Principal {
	return KeycloakPrincipal{basePrincipal{info: info}}
}

func (KeycloakPrincipalFactory) UserAuthenticated(*session.Info, *session.Session) {}
