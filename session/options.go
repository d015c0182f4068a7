// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultCookieName is the name of the session cookie.
const DefaultCookieName = "oidc_rp_session"

// DefaultIdleTimeout ends sessions unused for that long.
const DefaultIdleTimeout = 30 * time.Minute

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

type memoryOptions struct {
	withLogger          hclog.Logger
	withListeners       []Listener
	withIdleTimeout     time.Duration
	withCleanupInterval time.Duration
	withCookieName      string
	withCookiePath      string
	withCookieDomain    string
	withInsecureCookie  bool
	withSameSite        http.SameSite
	withNowFunc         func() time.Time
}

func memoryDefaults() memoryOptions {
	return memoryOptions{
		withLogger:          hclog.NewNullLogger(),
		withIdleTimeout:     DefaultIdleTimeout,
		withCleanupInterval: time.Minute,
		withCookieName:      DefaultCookieName,
		withCookiePath:      "/",
		withSameSite:        http.SameSiteLaxMode,
		withNowFunc:         time.Now,
	}
}

func getMemoryOpts(opt ...Option) memoryOptions {
	opts := memoryDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithListener adds a Listener. It can be used more than once.
func WithListener(l Listener) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok && l != nil {
			o.withListeners = append(o.withListeners, l)
		}
	}
}

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok {
			o.withIdleTimeout = d
		}
	}
}

// WithCleanupInterval sets how often expired sessions are purged, and their
// listeners called. Defaults to a minute.
func WithCleanupInterval(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok {
			o.withCleanupInterval = d
		}
	}
}

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok && name != "" {
			o.withCookieName = name
		}
	}
}

// WithCookiePath overrides the "/" path of the session cookie.
func WithCookiePath(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok && path != "" {
			o.withCookiePath = path
		}
	}
}

// WithCookieDomain sets the domain of the session cookie.
func WithCookieDomain(domain string) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok {
			o.withCookieDomain = domain
		}
	}
}

// WithInsecureCookie drops the Secure attribute of the session cookie, for
// development over plain http.
func WithInsecureCookie() Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok {
			o.withInsecureCookie = true
		}
	}
}

// WithSameSite overrides the Lax SameSite attribute of the session cookie.
// Callbacks using response_mode=form_post need http.SameSiteNoneMode.
func WithSameSite(m http.SameSite) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok {
			o.withSameSite = m
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*memoryOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
