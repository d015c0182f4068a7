// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"
)

// IdTokenClaims are the verified claims of an id_token.
type IdTokenClaims struct {
	Issuer    string
	Subject   string
	Audience  []string
	Expiry    time.Time
	IssuedAt  time.Time
	Nonce     string
	SessionId string

	// Claims holds every claim of the token, including the ones above.
	Claims map[string]interface{}
}

// UserInfo is the response of the provider's userinfo endpoint.
type UserInfo struct {
	Subject       string
	Email         string
	EmailVerified bool
	Profile       string

	// Claims holds every claim of the response, including the ones above.
	Claims map[string]interface{}
}

// Claim returns a top-level claim of the userinfo response, or nil.
func (u *UserInfo) Claim(name string) interface{} {
	if u == nil || u.Claims == nil {
		return nil
	}
	return u.Claims[name]
}

// UnmarshalClaims decodes a claims map into v, typically a struct with json
// tags.
func UnmarshalClaims(claims map[string]interface{}, v interface{}) error {
	const op = "UnmarshalClaims"
	if v == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
