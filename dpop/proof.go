// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/segmentio/ksuid"
)

const (
	// HeaderName is the request header carrying a proof, and the scheme of
	// the Authorization header for DPoP-bound access tokens.
	HeaderName = "DPoP"

	// NonceHeaderName is the response header a server hands out a nonce
	// with.
	NonceHeaderName = "DPoP-Nonce"

	// ProofType is the typ header of proofs.
	ProofType = "dpop+jwt"
)

// Proof describes a request to sign a proof for.
type Proof struct {
	// Method is the HTTP method of the request (htm claim).
	Method string

	// URI is the target URI of the request, without query and fragment
	// (htu claim). Use HTU to compute it from a URL.
	URI string

	// Nonce is the last nonce provided by the server, if any.
	Nonce string

	// AccessToken is the access token sent along, when accessing a
	// protected resource (ath claim).
	AccessToken string

	// IssuedAt defaults to the current time.
	IssuedAt time.Time
}

// Sign returns a signed proof for p.
func (k *Key) Sign(p Proof) (string, error) {
	const op = "dpop.(Key).Sign"
	switch {
	case p.Method == "":
		return "", fmt.Errorf("%s: method is empty: %w", op, ErrInvalidParameter)
	case p.URI == "":
		return "", fmt.Errorf("%s: uri is empty: %w", op, ErrInvalidParameter)
	}
	iat := p.IssuedAt
	if iat.IsZero() {
		iat = time.Now()
	}

	token := jwt.New()
	claims := map[string]interface{}{
		jwt.JwtIDKey:    ksuid.New().String(),
		"htm":           p.Method,
		"htu":           p.URI,
		jwt.IssuedAtKey: iat,
	}
	if p.AccessToken != "" {
		claims["ath"] = AccessTokenHash(p.AccessToken)
	}
	if p.Nonce != "" {
		claims["nonce"] = p.Nonce
	}
	for name, v := range claims {
		if err := token.Set(name, v); err != nil {
			return "", fmt.Errorf("%s: %w: claim %s: %w", op, ErrProofFailed, name, err)
		}
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.TypeKey, ProofType); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrProofFailed, err)
	}
	if err := headers.Set(jws.JWKKey, k.public); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrProofFailed, err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(k.alg, k.private, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrProofFailed, err)
	}
	return string(signed), nil
}

// AccessTokenHash returns the ath claim value for an access token: the
// base64url-encoded SHA-256 hash of its ASCII encoding.
func AccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// HTU returns the htu claim value for u: u without its query, fragment and
// user info.
func HTU(u *url.URL) string {
	htu := *u
	htu.User = nil
	htu.RawQuery = ""
	htu.ForceQuery = false
	htu.Fragment = ""
	htu.RawFragment = ""
	return htu.String()
}
