// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-uuid"
)

// RequestObjectType is the "typ" header of request objects (RFC 9101,
// section 10.8).
const RequestObjectType = "oauth-authz-req+jwt"

// DefaultRequestObjectLifetime bounds the validity of a request object.
const DefaultRequestObjectLifetime = 5 * time.Minute

// JARSender sends authorization requests as signed request objects
// (JWT-Secured Authorization Request, RFC 9101): the browser is redirected
// with only the client_id and the "request" parameter.
type JARSender struct {
	clientId string
	audience string
	signer   jose.Signer
	lifetime time.Duration
	now      func() time.Time
}

var _ AuthRequestSender = (*JARSender)(nil)

// NewJARSender creates a JARSender signing request objects for p with key,
// which may be a crypto.Signer or a jose.JSONWebKey (to send its "kid").
//
// Supported options: WithNow, WithRequestObjectLifetime
func NewJARSender(p *Provider, alg Alg, key interface{}, opt ...Option) (*JARSender, error) {
	const op = "NewJARSender"
	if p == nil {
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}
	if key == nil {
		return nil, fmt.Errorf("%s: signing key is nil: %w", op, ErrNilParameter)
	}
	if !supportedAlgorithms[alg] {
		return nil, fmt.Errorf("%s: %s: %w", op, alg, ErrUnsupportedAlg)
	}
	opts := getRequestObjectOpts(opt...)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key},
		(&jose.SignerOptions{}).WithType(RequestObjectType),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create signer: %w", op, err)
	}
	return &JARSender{
		clientId: p.config.ClientId,
		audience: p.metadata.Issuer,
		signer:   signer,
		lifetime: opts.withLifetime,
		now:      opts.withNowFunc,
	}, nil
}

// RequestObject returns the signed request object for r.
func (s *JARSender) RequestObject(r *AuthRequest) (string, error) {
	const op = "JARSender.RequestObject"
	if r == nil {
		return "", fmt.Errorf("%s: auth request is nil: %w", op, ErrNilParameter)
	}
	jti, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrRequestObjectFailed, err)
	}
	claims := map[string]interface{}{}
	for k, vs := range r.Values() {
		if len(vs) > 0 {
			claims[k] = vs[0]
		}
	}
	now := s.now()
	std := jwt.Claims{
		Issuer:    s.clientId,
		Audience:  jwt.Audience{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(s.lifetime)),
		ID:        jti,
	}
	raw, err := jwt.Signed(s.signer).Claims(claims).Claims(std).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrRequestObjectFailed, err)
	}
	return raw, nil
}

// AuthURL implements AuthRequestSender.
func (s *JARSender) AuthURL(_ context.Context, r *AuthRequest) (string, error) {
	const op = "JARSender.AuthURL"
	obj, err := s.RequestObject(r)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return endpointURL(r.Endpoint, url.Values{
		"client_id": {r.ClientId},
		"request":   {obj},
	})
}

type requestObjectOptions struct {
	withLifetime time.Duration
	withNowFunc  func() time.Time
}

func requestObjectDefaults() requestObjectOptions {
	return requestObjectOptions{
		withLifetime: DefaultRequestObjectLifetime,
		withNowFunc:  time.Now,
	}
}

func getRequestObjectOpts(opt ...Option) requestObjectOptions {
	opts := requestObjectDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRequestObjectLifetime overrides DefaultRequestObjectLifetime.
func WithRequestObjectLifetime(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*requestObjectOptions); ok && d > 0 {
			o.withLifetime = d
		}
	}
}
