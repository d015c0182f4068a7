// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
Package dpop implements the client side of OAuth 2.0 Demonstrating
Proof of Possession (RFC 9449) for a relying party.

A Key signs proofs. A Support hands out the Key to use for a browser
session: Static shares one key across every session, PerSession generates a
key the first time a session needs one and keeps it in the session.

Transport is an http.RoundTripper adding a fresh proof to every request it
sends. It computes the "ath" claim when the request carries an
"Authorization: DPoP" header, remembers the nonces the server hands out in
a NonceStore, and retries a request once when the server asks for a nonce
with a "use_dpop_nonce" error.

Example:

	key, _ := dpop.GenerateKey()
	client, _ := dpop.NewClient(http.DefaultClient, key)
	ctx := oidc.HttpClientContext(ctx, client)
	token, _ := provider.Exchange(ctx, code, redirectURI, verifier)
*/
package dpop
