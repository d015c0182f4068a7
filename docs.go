// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// oidcrp is an OpenID Connect relying party for net/http applications:
// the authorization code flow with PKCE, RP-initiated and back-channel
// logout, token revocation and DPoP bound tokens.
//
// Packages:
//
//	oidc        provider discovery, requests and token validation
//	rp          the HTTP handlers and middlewares
//	session     server side sessions keyed by a cookie
//	loggedout   provider sessions logged out through back-channel logout
//	dpop        DPoP keys, proofs and nonces
//
// cmd/example is a runnable relying party wiring them together.
package oidcrp
