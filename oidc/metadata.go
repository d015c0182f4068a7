// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

// ProviderMetadata is the subset of the provider's discovery document
// (OpenID Connect Discovery 1.0 and the OAuth extensions) that the relying
// party uses.
type ProviderMetadata struct {
	Issuer                             string            `json:"issuer"`
	AuthorizationEndpoint              string            `json:"authorization_endpoint"`
	TokenEndpoint                      string            `json:"token_endpoint"`
	UserinfoEndpoint                   string            `json:"userinfo_endpoint"`
	JwksURI                            string            `json:"jwks_uri"`
	EndSessionEndpoint                 string            `json:"end_session_endpoint,omitempty"`
	RevocationEndpoint                 string            `json:"revocation_endpoint,omitempty"`
	PushedAuthorizationRequestEndpoint string            `json:"pushed_authorization_request_endpoint,omitempty"`
	RequirePushedAuthorizationRequests bool              `json:"require_pushed_authorization_requests,omitempty"`
	IdTokenSigningAlgValuesSupported   []string          `json:"id_token_signing_alg_values_supported,omitempty"`
	CodeChallengeMethodsSupported      []string          `json:"code_challenge_methods_supported,omitempty"`
	DPoPSigningAlgValuesSupported      []string          `json:"dpop_signing_alg_values_supported,omitempty"`
	BackchannelLogoutSupported         bool              `json:"backchannel_logout_supported,omitempty"`
	BackchannelLogoutSessionSupported  bool              `json:"backchannel_logout_session_supported,omitempty"`
	AuthorizationResponseIssParameter  bool              `json:"authorization_response_iss_parameter_supported,omitempty"`
	MTLSEndpointAliases                map[string]string `json:"mtls_endpoint_aliases,omitempty"`
}

// ResolveMTLSEndpointAliases returns a copy of m where the endpoints listed
// in mtls_endpoint_aliases (RFC 8705, section 5) replace the regular ones.
// The authorization and end-session endpoints are browser facing and are
// never aliased.
func (m ProviderMetadata) ResolveMTLSEndpointAliases() ProviderMetadata {
	if len(m.MTLSEndpointAliases) == 0 {
		return m
	}
	resolved := m
	for name, target := range map[string]*string{
		"token_endpoint":                        &resolved.TokenEndpoint,
		"userinfo_endpoint":                     &resolved.UserinfoEndpoint,
		"revocation_endpoint":                   &resolved.RevocationEndpoint,
		"pushed_authorization_request_endpoint": &resolved.PushedAuthorizationRequestEndpoint,
	} {
		if alias := m.MTLSEndpointAliases[name]; alias != "" {
			*target = alias
		}
	}
	return resolved
}
