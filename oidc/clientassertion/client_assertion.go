// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"crypto"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
)

const (
	// JWTTypeParam is the proper value for client_assertion_type.
	// https://www.rfc-editor.org/rfc/rfc7523.html#section-2.2
	JWTTypeParam = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// DefaultLifetime is how long a serialized assertion is valid.
	DefaultLifetime = 5 * time.Minute
)

// Serializer is implemented by JWT and accepted by the oidc option
// oidc.WithClientAssertion.
type Serializer interface {
	Serialize() (string, error)
}

var _ Serializer = (*JWT)(nil)

// JWT is used to create a client assertion JWT, a special JWT used by an OAuth
// 2.0 or OIDC client to authenticate themselves to an authorization server.
// A JWT is immutable and can be serialized concurrently; every Serialize
// call produces a fresh "jti".
type JWT struct {
	clientID string
	audience []string
	headers  map[string]string
	lifetime time.Duration

	alg jose.SignatureAlgorithm
	// key may be any key type that jose.SigningKey accepts for its Key
	key any
	// secret may be used instead of key
	secret string

	// these are overwritten for testing
	genID func() (string, error)
	now   func() time.Time
}

// NewJWTWithHMAC creates a JWT signed with the client secret
// (client_secret_jwt).
//
// Supported Options: WithKeyID, WithHeaders, WithLifetime
func NewJWTWithHMAC(clientID string, audience []string, alg HSAlgorithm, secret string, opt ...Option) (*JWT, error) {
	const op = "NewJWTWithHMAC"
	if err := alg.Validate(secret); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	j := newJWT(clientID, audience)
	j.alg = jose.SignatureAlgorithm(alg)
	j.secret = secret
	if err := j.apply(opt...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// NewJWTWithKey creates a JWT signed with a private key (private_key_jwt).
//
// Supported Options: WithKeyID, WithHeaders, WithLifetime
func NewJWTWithKey(clientID string, audience []string, alg KeyAlgorithm, key crypto.Signer, opt ...Option) (*JWT, error) {
	const op = "NewJWTWithKey"
	if err := alg.Validate(key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	j := newJWT(clientID, audience)
	j.alg = jose.SignatureAlgorithm(alg)
	j.key = key
	if err := j.apply(opt...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

func newJWT(clientID string, audience []string) *JWT {
	return &JWT{
		clientID: clientID,
		audience: audience,
		headers:  make(map[string]string),
		lifetime: DefaultLifetime,
		genID:    uuid.GenerateUUID,
		now:      time.Now,
	}
}

func (j *JWT) apply(opt ...Option) error {
	var errs *multierror.Error
	for _, o := range opt {
		if err := o(j); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	if err := j.validate(); err != nil {
		return err
	}
	// make sure Serialize() works; we can't pre-validate everything, and
	// this whole thing is useless if it can't Serialize()
	if _, err := j.Serialize(); err != nil {
		return err
	}
	return nil
}

// Serialize returns client assertion JWT which can be used by an OAuth 2.0 or
// OIDC client to authenticate themselves to an authorization server
func (j *JWT) Serialize() (string, error) {
	const op = "JWT.Serialize"
	if err := j.validate(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	signer, err := j.signer()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id, err := j.genID()
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate token id: %w", op, err)
	}
	token, err := jwt.Signed(signer).Claims(j.claims(id)).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: failed to serialize token: %w", op, err)
	}
	return token, nil
}

func (j *JWT) validate() error {
	const op = "JWT.validate"
	var errs *multierror.Error
	if j.genID == nil {
		errs = multierror.Append(errs, ErrMissingFuncIDGenerator)
	}
	if j.now == nil {
		errs = multierror.Append(errs, ErrMissingFuncNow)
	}
	// bail early if any internal func errors
	if errs != nil {
		return fmt.Errorf("%s: %w", op, errs)
	}

	if j.clientID == "" {
		errs = multierror.Append(errs, ErrMissingClientID)
	}
	if len(j.audience) == 0 {
		errs = multierror.Append(errs, ErrMissingAudience)
	}
	if j.alg == "" {
		errs = multierror.Append(errs, ErrMissingAlgorithm)
	}
	if j.key == nil && j.secret == "" {
		errs = multierror.Append(errs, ErrMissingKeyOrSecret)
	}
	if j.key != nil && j.secret != "" {
		errs = multierror.Append(errs, ErrBothKeyAndSecret)
	}
	if errs != nil {
		return fmt.Errorf("%s: %w", op, errs)
	}
	return nil
}

func (j *JWT) signer() (jose.Signer, error) {
	const op = "signer"
	sKey := jose.SigningKey{
		Algorithm: j.alg,
	}
	// validate() ensures these are mutually exclusive
	if j.secret != "" {
		sKey.Key = []byte(j.secret)
	}
	if j.key != nil {
		sKey.Key = j.key
	}

	sOpts := &jose.SignerOptions{
		ExtraHeaders: make(map[jose.HeaderKey]interface{}, len(j.headers)),
	}
	for k, v := range j.headers {
		sOpts.ExtraHeaders[jose.HeaderKey(k)] = v
	}

	signer, err := jose.NewSigner(sKey, sOpts.WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCreatingSigner, err)
	}
	return signer, nil
}

func (j *JWT) claims(id string) *jwt.Claims {
	now := j.now().UTC()
	return &jwt.Claims{
		Issuer:    j.clientID,
		Subject:   j.clientID,
		Audience:  j.audience,
		Expiry:    jwt.NewNumericDate(now.Add(j.lifetime)),
		NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Second)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        id,
	}
}

// Option configures the JWT
type Option func(*JWT) error

// WithKeyID sets the "kid" header that OIDC providers use to look up the
// public key to check the signed JWT
func WithKeyID(keyID string) Option {
	const op = "WithKeyID"
	return func(j *JWT) error {
		if keyID == "" {
			return fmt.Errorf("%s: %w: empty key id", op, ErrInvalidHeader)
		}
		j.headers["kid"] = keyID
		return nil
	}
}

// WithHeaders sets extra JWT headers. "alg" and "typ" cannot be overridden.
func WithHeaders(h map[string]string) Option {
	const op = "WithHeaders"
	return func(j *JWT) error {
		for k, v := range h {
			switch k {
			case "alg", "typ":
				return fmt.Errorf("%s: %w: %q is reserved", op, ErrInvalidHeader, k)
			}
			j.headers[k] = v
		}
		return nil
	}
}

// WithLifetime overrides DefaultLifetime.
func WithLifetime(d time.Duration) Option {
	const op = "WithLifetime"
	return func(j *JWT) error {
		if d <= 0 {
			return fmt.Errorf("%s: lifetime must be positive, got %s", op, d)
		}
		j.lifetime = d
		return nil
	}
}
