// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/tbroyer/oidc-servlets-sub000/dpop"
	"github.com/tbroyer/oidc-servlets-sub000/loggedout"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
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

// DefaultRevocationLimit is the default number of concurrent revocations of
// a TokenRevoker.
const DefaultRevocationLimit = 16

// DefaultRevocationTimeout bounds each revocation of a TokenRevoker.
const DefaultRevocationTimeout = 10 * time.Second

// options are shared by every constructor of the package, each one using
// the subset it documents.
type options struct {
	withLogger              hclog.Logger
	withErrorResponse       ErrorResponseFunc
	withMetrics             *Metrics
	withBaseURL             string
	withSender              oidc.AuthRequestSender
	withAuthRequestOptions  []oidc.AuthRequestOption
	withDPoP                dpop.Support
	withDPoPNonceStore      dpop.NonceStore
	withPrincipalFactory    PrincipalFactory
	withLoggedOutStore      loggedout.Store
	withTokensHandler       TokensHandler
	withAuthListeners       []AuthenticationListener
	withUngatedPaths        []string
	withBackchannelPath     string
	withPostLogoutPath      string
	withLogoutState         bool
	withTokenRevoker        *TokenRevoker
	withRevocationLimit     int
	withRevocationTimeout   time.Duration
	withRevocationErrorFunc func(error)
	withRevokeRefreshToken  bool
}

func defaults() options {
	return options{
		withLogger:            hclog.NewNullLogger(),
		withErrorResponse:     DefaultErrorResponse,
		withSender:            oidc.PlainSender{},
		withPrincipalFactory:  SimplePrincipalFactory{},
		withLoggedOutStore:    loggedout.Null{},
		withRevocationLimit:   DefaultRevocationLimit,
		withRevocationTimeout: DefaultRevocationTimeout,
	}
}

func getOpts(opt ...Option) options {
	opts := defaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger, for every handler.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithErrorResponse provides how failed requests are answered, for
// NewCallback, NewLogoutCallback, NewBinder and NewRedirector. Defaults to
// DefaultErrorResponse.
func WithErrorResponse(fn ErrorResponseFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && fn != nil {
			o.withErrorResponse = fn
		}
	}
}

// WithMetrics provides the collectors to record to, for every handler and
// NewTokenRevoker.
func WithMetrics(m *Metrics) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withMetrics = m
		}
	}
}

// WithBaseURL provides the external origin of the application (e.g.
// "https://app.example.com"), for NewRedirector and NewLogout. By default
// the origin is taken from the request: its Host, and its scheme from the
// TLS connection state.
func WithBaseURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withBaseURL = u
		}
	}
}

// WithAuthRequestSender provides how authorization requests are sent, for
// NewRedirector: oidc.PlainSender (the default), an *oidc.PARSender or an
// *oidc.JARSender.
func WithAuthRequestSender(s oidc.AuthRequestSender) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && s != nil {
			o.withSender = s
		}
	}
}

// WithAuthRequestOptions provides options applied to every authorization
// request, for NewRedirector. They are applied before the per-call options.
func WithAuthRequestOptions(opts ...oidc.AuthRequestOption) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withAuthRequestOptions = append(o.withAuthRequestOptions, opts...)
		}
	}
}

// WithDPoP enables DPoP-bound tokens, for NewRedirector: authorization
// requests carry dpop_jkt, and the callback's token and userinfo requests
// carry proofs.
func WithDPoP(s dpop.Support) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withDPoP = s
		}
	}
}

// WithDPoPNonceStore provides where to keep the provider's DPoP nonces, for
// NewRedirector. Defaults to a new dpop.PerURINonceStore.
func WithDPoPNonceStore(s dpop.NonceStore) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withDPoPNonceStore = s
		}
	}
}

// WithPrincipalFactory provides how principals are built, for NewBinder and
// NewCallback. Defaults to SimplePrincipalFactory.
func WithPrincipalFactory(f PrincipalFactory) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && f != nil {
			o.withPrincipalFactory = f
		}
	}
}

// WithLoggedOutStore provides the store of logged out provider sessions,
// for NewBinder. Defaults to loggedout.Null.
func WithLoggedOutStore(s loggedout.Store) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && s != nil {
			o.withLoggedOutStore = s
		}
	}
}

// WithTokensHandler provides a hook called with the tokens of every
// successful authentication, for NewCallback.
func WithTokensHandler(h TokensHandler) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withTokensHandler = h
		}
	}
}

// WithAuthenticationListener adds a listener called once a session is
// authenticated, for NewCallback.
func WithAuthenticationListener(l AuthenticationListener) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && l != nil {
			o.withAuthListeners = append(o.withAuthListeners, l)
		}
	}
}

// WithUngatedPaths adds paths Gate always lets through. The callback and
// back-channel logout paths of the redirector are always ungated.
func WithUngatedPaths(paths ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withUngatedPaths = append(o.withUngatedPaths, paths...)
		}
	}
}

// WithBackchannelLogoutPath tells NewRedirector where BackchannelLogout is
// mounted. Gates using a strategy built on that Redirector always let it
// through, like the callback path.
func WithBackchannelLogoutPath(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withBackchannelPath = path
		}
	}
}

// WithPostLogoutRedirectPath provides the path the provider redirects to
// after logging out, sent as post_logout_redirect_uri, for NewLogout.
func WithPostLogoutRedirectPath(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withPostLogoutPath = path
		}
	}
}

// WithLogoutState makes NewLogout send a state along the
// post_logout_redirect_uri, checked by the LogoutCallback handler served at
// that path.
func WithLogoutState() Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withLogoutState = true
		}
	}
}

// WithTokenRevoker makes NewLogout revoke the tokens of the sessions it
// logs out.
func WithTokenRevoker(tr *TokenRevoker) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withTokenRevoker = tr
		}
	}
}

// WithRevocationLimit provides how many revocations run at once, for
// NewTokenRevoker. Revocations beyond the limit are dropped.
func WithRevocationLimit(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withRevocationLimit = n
		}
	}
}

// WithRevocationTimeout bounds each revocation, for NewTokenRevoker.
func WithRevocationTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withRevocationTimeout = d
		}
	}
}

// WithRevocationErrorFunc provides a hook called with every failed
// revocation, for NewTokenRevoker.
func WithRevocationErrorFunc(fn func(error)) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withRevocationErrorFunc = fn
		}
	}
}

// WithRevokeRefreshToken makes a TokenRevoker revoke refresh tokens too.
func WithRevokeRefreshToken() Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withRevokeRefreshToken = true
		}
	}
}

// origin returns the origin the application is reached at, with no
// trailing slash.
func (o options) origin(r *http.Request) string {
	if o.withBaseURL != "" {
		return trimSlash(o.withBaseURL)
	}
	return requestOrigin(r)
}
