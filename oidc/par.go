// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"
)

// PARSender pushes authorization requests to the provider's
// pushed_authorization_request_endpoint (RFC 9126) and redirects the browser
// with the returned request_uri. With WithRequestObject, the pushed request
// is a signed request object.
type PARSender struct {
	provider *Provider
	jar      *JARSender
	logger   hclog.Logger
}

var _ AuthRequestSender = (*PARSender)(nil)

// PushedRequest is a successful pushed authorization response.
type PushedRequest struct {
	RequestURI string        `json:"request_uri"`
	ExpiresIn  time.Duration `json:"-"`
}

// NewPARSender creates a PARSender for p, which must advertise a
// pushed_authorization_request_endpoint.
//
// Supported options: WithRequestObject, WithLogger
func NewPARSender(p *Provider, opt ...Option) (*PARSender, error) {
	const op = "NewPARSender"
	if p == nil {
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}
	if p.metadata.PushedAuthorizationRequestEndpoint == "" {
		return nil, fmt.Errorf("%s: pushed_authorization_request_endpoint: %w", op, ErrEndpointNotSupported)
	}
	opts := getPAROpts(opt...)
	return &PARSender{
		provider: p,
		jar:      opts.withRequestObject,
		logger:   opts.withLogger,
	}, nil
}

// Push sends r to the pushed authorization request endpoint.
func (s *PARSender) Push(ctx context.Context, r *AuthRequest) (*PushedRequest, error) {
	const op = "PARSender.Push"
	if r == nil {
		return nil, fmt.Errorf("%s: auth request is nil: %w", op, ErrNilParameter)
	}
	form := r.Values()
	if s.jar != nil {
		obj, err := s.jar.RequestObject(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		form = url.Values{"client_id": {r.ClientId}, "request": {obj}}
	}
	resp, err := s.provider.postForm(ctx, s.provider.metadata.PushedAuthorizationRequestEndpoint, form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrPushedAuthRequestFailed, err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		e := readErrorResponse(resp)
		s.logger.Debug("pushed authorization request rejected", "op", op, "status", e.StatusCode, "error", e.Code)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrPushedAuthRequestFailed, e)
	}
	defer resp.Body.Close()
	var body struct {
		RequestURI string `json:"request_uri"`
		ExpiresIn  int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: %w: unable to decode response: %w", op, ErrPushedAuthRequestFailed, err)
	}
	if body.RequestURI == "" {
		return nil, fmt.Errorf("%s: %w: request_uri is missing", op, ErrPushedAuthRequestFailed)
	}
	return &PushedRequest{
		RequestURI: body.RequestURI,
		ExpiresIn:  time.Duration(body.ExpiresIn) * time.Second,
	}, nil
}

// AuthURL implements AuthRequestSender.
func (s *PARSender) AuthURL(ctx context.Context, r *AuthRequest) (string, error) {
	const op = "PARSender.AuthURL"
	pushed, err := s.Push(ctx, r)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return endpointURL(r.Endpoint, url.Values{
		"client_id":   {r.ClientId},
		"request_uri": {pushed.RequestURI},
	})
}

type parOptions struct {
	withRequestObject *JARSender
	withLogger        hclog.Logger
}

func parDefaults() parOptions {
	return parOptions{withLogger: hclog.NewNullLogger()}
}

func getPAROpts(opt ...Option) parOptions {
	opts := parDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRequestObject makes NewPARSender push signed request objects.
func WithRequestObject(jar *JARSender) Option {
	return func(o interface{}) {
		if o, ok := o.(*parOptions); ok {
			o.withRequestObject = jar
		}
	}
}
