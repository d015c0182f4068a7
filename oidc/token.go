// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

const expirySkew = 10 * time.Second

// Token is the response of a successful code exchange.
type Token struct {
	IdToken      IdToken
	AccessToken  AccessToken
	RefreshToken RefreshToken
	// TokenType is "Bearer", or "DPoP" for sender-constrained tokens.
	TokenType string
	Expiry    time.Time
}

// NewToken creates a Token from an oauth2 token response, which must carry
// an id_token.
func NewToken(t *oauth2.Token) (*Token, error) {
	const op = "NewToken"
	if t == nil {
		return nil, fmt.Errorf("%s: oauth2 token is nil: %w", op, ErrNilParameter)
	}
	idToken, ok := t.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from the token response: %w", op, ErrMissingIdToken)
	}
	return &Token{
		IdToken:      IdToken(idToken),
		AccessToken:  AccessToken(t.AccessToken),
		RefreshToken: RefreshToken(t.RefreshToken),
		TokenType:    t.Type(),
		Expiry:       t.Expiry,
	}, nil
}

// Expired reports whether the access token is expired (with a small skew).
func (t *Token) Expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return t.Expiry.Round(0).Before(time.Now().Add(expirySkew))
}

// Valid reports whether the token has an unexpired access token.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired()
}

// StaticTokenSource returns an oauth2.TokenSource always returning the access
// token of t.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  string(t.AccessToken),
		RefreshToken: string(t.RefreshToken),
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	})
}
