// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc is the protocol layer of an OpenID Connect relying party using the
Authorization Code Flow with PKCE, as specified in OpenID Connect Core 1.0 and
RFC 7636.

A Provider is created from a Config and calls the OpenID Provider:

	- discovery, on NewProvider
	- token exchange, with Exchange
	- id_token validation, with VerifyIdToken
	- userinfo, with UserInfo
	- revocation (RFC 7009), with Revoke
	- RP-initiated logout, with EndSessionURL
	- back-channel logout token validation, with VerifyLogoutToken

Authorization requests are built with NewAuthRequest and sent by an
AuthRequestSender: PlainSender in the URL query, a PARSender as a pushed
authorization request (RFC 9126), and a JARSender as a signed request object
(RFC 9101). A PARSender may push request objects too.

Example:

	cfg, err := oidc.NewConfig("https://op.example.com", clientId, clientSecret)
	if err != nil {
		// handle error
	}
	p, err := oidc.NewProvider(cfg)
	if err != nil {
		// handle error
	}
	defer p.Done()

	verifier := oidc.NewCodeVerifier()
	r := p.NewAuthRequest()
	r.RedirectURI = "https://rp.example.com/callback"
	r.State, _ = oidc.NewId("st")
	r.Nonce, _ = oidc.NewId("n")
	r.CodeChallenge, r.CodeChallengeMethod = verifier.Challenge(), oidc.S256
	authURL, err := oidc.PlainSender{}.AuthURL(ctx, r)

	// ... and on the redirection back to the relying party
	t, err := p.Exchange(ctx, code, r.RedirectURI, verifier)
	claims, err := p.VerifyIdToken(ctx, t.IdToken, r.Nonce, oidc.WithAccessToken(t.AccessToken))
	info, err := p.UserInfo(ctx, t, oidc.WithExpectedSubject(claims.Subject))

StartTestProvider runs a local OpenID Provider for tests.
*/
package oidc
