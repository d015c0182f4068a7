// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package loggedout

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

type storeOptions struct {
	withLogger     hclog.Logger
	withLogoutFunc LogoutFunc
	withKeyPrefix  string
	withTTL        time.Duration
}

func storeDefaults() storeOptions {
	return storeOptions{
		withLogger:    hclog.NewNullLogger(),
		withKeyPrefix: "oidc:logged-out:",
	}
}

func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithLogoutFunc provides a function invoked with the local ids dropped by
// Logout, typically to invalidate those sessions right away.
func WithLogoutFunc(fn LogoutFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withLogoutFunc = fn
		}
	}
}

// WithKeyPrefix overrides the prefix of the keys written by the Redis store.
func WithKeyPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withKeyPrefix = prefix
		}
	}
}

// WithTTL makes the Redis store expire a sid that has not been acquired,
// renewed or checked with IsLoggedOut for d. It should be longer than the
// idle timeout of the local sessions.
func WithTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withTTL = d
		}
	}
}
