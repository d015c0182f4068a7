// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Package clientassertion signs JWTs with a private key or client secret for
// use in OAuth client_assertion requests, A.K.A. private_key_jwt and
// client_secret_jwt (RFC 7523). The oidc package sends them when pushing
// authorization requests, exchanging codes and revoking tokens.
//
// Example usage:
//
//	j, err := clientassertion.NewJWTWithKey("client-id", []string{"https://op.example.com"},
//		clientassertion.ES256, ecdsaPrivateKey,
//		clientassertion.WithKeyID("jwks-key-id"),
//	)
//	assertion, err := j.Serialize()
package clientassertion
