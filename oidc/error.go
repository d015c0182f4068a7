// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter                = errors.New("invalid parameter")
	ErrNilParameter                    = errors.New("nil parameter")
	ErrInvalidCACert                   = errors.New("invalid CA certificate")
	ErrInvalidIssuer                   = errors.New("invalid issuer")
	ErrIdGeneratorFailed               = errors.New("id generation failed")
	ErrMissingIdToken                  = errors.New("id_token is missing")
	ErrIdTokenVerificationFailed       = errors.New("id_token verification failed")
	ErrInvalidSignature                = errors.New("invalid signature")
	ErrInvalidAudience                 = errors.New("invalid audience")
	ErrInvalidNonce                    = errors.New("invalid nonce")
	ErrInvalidSubject                  = errors.New("invalid subject")
	ErrUnsupportedAlg                  = errors.New("unsupported signing algorithm")
	ErrTokenRequestFailed              = errors.New("token request failed")
	ErrUserInfoFailed                  = errors.New("user info failed")
	ErrRevocationFailed                = errors.New("token revocation failed")
	ErrPushedAuthRequestFailed         = errors.New("pushed authorization request failed")
	ErrRequestObjectFailed             = errors.New("request object creation failed")
	ErrLogoutTokenVerificationFailed   = errors.New("logout_token verification failed")
	ErrUnsignedLogoutToken             = errors.New("logout_token is not signed")
	ErrInvalidLogoutTokenType          = errors.New("invalid logout_token type")
	ErrEndpointNotSupported            = errors.New("endpoint not supported by provider")
	ErrUnsupportedClientAuthentication = errors.New("unsupported client authentication")
)
