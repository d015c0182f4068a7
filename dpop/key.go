// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Key is a private key signing DPoP proofs.
type Key struct {
	private    jwk.Key
	public     jwk.Key
	alg        jwa.SignatureAlgorithm
	thumbprint string
}

// NewKey wraps a private key (*ecdsa.PrivateKey, *rsa.PrivateKey or
// ed25519.PrivateKey) used with the asymmetric algorithm alg.
func NewKey(priv crypto.Signer, alg jwa.SignatureAlgorithm) (*Key, error) {
	const op = "dpop.NewKey"
	if priv == nil {
		return nil, fmt.Errorf("%s: private key is nil: %w", op, ErrNilParameter)
	}
	if err := checkAlg(priv, alg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	private, err := jwk.FromRaw(priv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidKey, err)
	}
	public, err := private.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidKey, err)
	}
	thumb, err := public.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to compute thumbprint: %w", op, err)
	}
	return &Key{
		private:    private,
		public:     public,
		alg:        alg,
		thumbprint: base64.RawURLEncoding.EncodeToString(thumb),
	}, nil
}

// GenerateKey generates a P-256 key for ES256 proofs.
func GenerateKey() (*Key, error) {
	const op = "dpop.GenerateKey"
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return NewKey(priv, jwa.ES256)
}

// Thumbprint returns the base64url-encoded SHA-256 JWK thumbprint (RFC 7638)
// of the public key, as sent in the dpop_jkt authorization request parameter
// and found in the cnf.jkt claim of bound tokens.
func (k *Key) Thumbprint() string {
	return k.thumbprint
}

// Algorithm returns the algorithm the key signs proofs with.
func (k *Key) Algorithm() jwa.SignatureAlgorithm {
	return k.alg
}

// PublicKey returns the public JWK sent in the header of proofs.
func (k *Key) PublicKey() jwk.Key {
	return k.public
}

func checkAlg(priv crypto.Signer, alg jwa.SignatureAlgorithm) error {
	var ok bool
	switch priv.(type) {
	case *ecdsa.PrivateKey:
		ok = alg == jwa.ES256 || alg == jwa.ES384 || alg == jwa.ES512
	case *rsa.PrivateKey:
		ok = alg == jwa.RS256 || alg == jwa.RS384 || alg == jwa.RS512 ||
			alg == jwa.PS256 || alg == jwa.PS384 || alg == jwa.PS512
	case ed25519.PrivateKey:
		ok = alg == jwa.EdDSA
	default:
		return fmt.Errorf("unsupported key type %T: %w", priv, ErrInvalidKey)
	}
	if !ok {
		return fmt.Errorf("%q for key type %T: %w", alg, priv, ErrUnsupportedAlg)
	}
	return nil
}
