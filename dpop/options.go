// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package dpop

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o != nil {
			o(opts)
		}
	}
}

type transportOptions struct {
	withBase       http.RoundTripper
	withNonceStore NonceStore
	withLogger     hclog.Logger
	withNowFunc    func() time.Time
}

func transportDefaults() transportOptions {
	return transportOptions{
		withLogger:  hclog.NewNullLogger(),
		withNowFunc: time.Now,
	}
}

func getTransportOpts(opt ...Option) transportOptions {
	opts := transportDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withBase == nil {
		opts.withBase = http.DefaultTransport
	}
	if opts.withNonceStore == nil {
		opts.withNonceStore = &PerURINonceStore{}
	}
	return opts
}

// WithBase provides the round tripper sending the requests, for
// NewTransport. Defaults to http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(o interface{}) {
		if o, ok := o.(*transportOptions); ok {
			o.withBase = rt
		}
	}
}

// WithNonceStore provides where to keep server nonces, for NewTransport.
// Defaults to a new PerURINonceStore.
func WithNonceStore(s NonceStore) Option {
	return func(o interface{}) {
		if o, ok := o.(*transportOptions); ok {
			o.withNonceStore = s
		}
	}
}

// WithLogger provides an optional logger, for NewTransport.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*transportOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithNow provides an optional func for determining what the current time
// is, for the iat claim of proofs.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*transportOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
