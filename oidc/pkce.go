// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"golang.org/x/oauth2"
)

// S256 is the only PKCE code challenge method sent by the relying party.
const S256 = "S256"

// CodeVerifier is a PKCE code verifier (RFC 7636).
type CodeVerifier string

// RedactedCodeVerifier is the redacted string or json for a code verifier.
const RedactedCodeVerifier = "[REDACTED: code_verifier]"

// NewCodeVerifier generates a code verifier with 32 octets of randomness.
func NewCodeVerifier() CodeVerifier {
	return CodeVerifier(oauth2.GenerateVerifier())
}

// Challenge returns the S256 code challenge of the verifier.
func (v CodeVerifier) Challenge() string {
	return oauth2.S256ChallengeFromVerifier(string(v))
}

// String will redact the verifier.
func (v CodeVerifier) String() string {
	return RedactedCodeVerifier
}

// MarshalJSON will redact the verifier.
func (v CodeVerifier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + RedactedCodeVerifier + `"`), nil
}
