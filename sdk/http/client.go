// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Package http builds the HTTP clients used to talk to an OpenID Provider.
package http

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// ErrInvalidCertificatePem is returned when the CA PEM holds no certificate.
var ErrInvalidCertificatePem = errors.New("invalid certificate PEM")

// DefaultTimeout bounds a whole request made with a client from NewClient.
const DefaultTimeout = 30 * time.Second

// NewClient creates a new http client with a pooled transport which will use
// the optional CA certificate PEM if provided, otherwise it will use the
// installed system CA chain.
func NewClient(caPEM string) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, ErrInvalidCertificatePem
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	return &http.Client{
		Transport: tr,
		Timeout:   DefaultTimeout,
	}, nil
}

// WithTransport returns a shallow copy of c whose transport is wrap(base),
// base being c's transport (or http.DefaultTransport).
func WithTransport(c *http.Client, wrap func(base http.RoundTripper) http.RoundTripper) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cp := *c
	cp.Transport = wrap(base)
	return &cp
}
