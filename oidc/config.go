// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-multierror"
	"github.com/tbroyer/oidc-servlets-sub000/oidc/clientassertion"
	"github.com/tbroyer/oidc-servlets-sub000/oidc/internal/strutils"
	sdkHttp "github.com/tbroyer/oidc-servlets-sub000/sdk/http"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// ClientAuthMethod is how the client authenticates to the provider's token,
// revocation and pushed authorization request endpoints.
type ClientAuthMethod string

const (
	ClientSecretBasic ClientAuthMethod = "client_secret_basic"
	ClientSecretPost  ClientAuthMethod = "client_secret_post"
	PrivateKeyJWT     ClientAuthMethod = "private_key_jwt"
	ClientSecretJWT   ClientAuthMethod = "client_secret_jwt"
	NoClientAuth      ClientAuthMethod = "none"
)

// DefaultScopes are requested by the relying party unless WithScopes says
// otherwise.
var DefaultScopes = []string{oidc.ScopeOpenID, "profile", "email"}

// DefaultClockSkew is the leeway used when checking token timestamps.
const DefaultClockSkew = 1 * time.Minute

// Config represents the configuration for an OIDC relying party using the
// authorization code flow with PKCE.
type Config struct {
	// ClientId is the relying party id.
	ClientId string

	// ClientSecret is the relying party secret. It may be empty for public
	// clients (NoClientAuth) or PrivateKeyJWT.
	ClientSecret ClientSecret

	// ClientAuthMethod defaults to ClientSecretBasic, or to PrivateKeyJWT
	// when a client assertion is configured.
	ClientAuthMethod ClientAuthMethod

	// ClientAssertion is used to authenticate the client with
	// PrivateKeyJWT or ClientSecretJWT.
	ClientAssertion clientassertion.Serializer

	// Scopes is the list of scopes to request. It must include "openid".
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms for ID
	// tokens and logout tokens.
	SupportedSigningAlgs []Alg

	// Audiences is an optional list of case-sensitive strings. When set, the
	// "aud" claim of ID tokens and logout tokens must contain one of them, in
	// addition to the client id.
	Audiences []string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// UseMTLSEndpointAliases makes the Provider use the endpoints of the
	// "mtls_endpoint_aliases" discovery metadata (RFC 8705), when present.
	UseMTLSEndpointAliases bool

	// StrictLogoutTokenTyping requires logout tokens to carry a "typ"
	// header of "logout+jwt".
	StrictLogoutTokenTyping bool

	// LogoutTokenDecryptionKey is the private key used to decrypt encrypted
	// logout tokens.
	LogoutTokenDecryptionKey interface{}

	// ClockSkew is the leeway used when validating token timestamps.
	ClockSkew time.Duration

	// HTTPClient is an optional client used for every provider request. A
	// client is built from ProviderCA when nil.
	HTTPClient *http.Client

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time
}

// NewConfig composes a new config for a provider.
//
// Supported options: WithScopes, WithAudiences, WithProviderCA,
// WithSupportedSigningAlgs, WithClientAuthMethod, WithClientAssertion,
// WithMTLSEndpointAliases, WithLogoutTokenDecryptionKey, WithStrictLogoutTokenTyping, WithClockSkew,
// WithHTTPClient, WithNow
func NewConfig(issuer string, clientId string, clientSecret ClientSecret, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:                   issuer,
		ClientId:                 clientId,
		ClientSecret:             clientSecret,
		ClientAuthMethod:         opts.withClientAuthMethod,
		ClientAssertion:          opts.withClientAssertion,
		Scopes:                   opts.withScopes,
		SupportedSigningAlgs:     opts.withSupportedSigningAlgs,
		Audiences:                opts.withAudiences,
		ProviderCA:               opts.withProviderCA,
		UseMTLSEndpointAliases:   opts.withMTLSEndpointAliases,
		StrictLogoutTokenTyping:  opts.withStrictLogoutTokenTyping,
		LogoutTokenDecryptionKey: opts.withLogoutTokenDecryptionKey,
		ClockSkew:                opts.withClockSkew,
		HTTPClient:               opts.withHTTPClient,
		NowFunc:                  opts.withNowFunc,
	}
	if c.ClientAuthMethod == "" {
		c.ClientAuthMethod = ClientSecretBasic
		if c.ClientAssertion != nil {
			c.ClientAuthMethod = PrivateKeyJWT
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration. Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable via
// an http request. Every problem found is reported.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var errs *multierror.Error
	if c.ClientId == "" {
		errs = multierror.Append(errs, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	switch c.ClientAuthMethod {
	case ClientSecretBasic, ClientSecretPost:
		if c.ClientSecret == "" {
			errs = multierror.Append(errs, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
		}
	case PrivateKeyJWT, ClientSecretJWT:
		if c.ClientAssertion == nil {
			errs = multierror.Append(errs, fmt.Errorf("%s requires a client assertion: %w", c.ClientAuthMethod, ErrInvalidParameter))
		}
	case NoClientAuth:
	default:
		errs = multierror.Append(errs, fmt.Errorf("client auth method %q: %w", c.ClientAuthMethod, ErrUnsupportedClientAuthentication))
	}
	if c.Issuer == "" {
		errs = multierror.Append(errs, fmt.Errorf("issuer is empty: %w", ErrInvalidParameter))
	} else {
		u, err := url.Parse(c.Issuer)
		switch {
		case err != nil:
			errs = multierror.Append(errs, fmt.Errorf("issuer %s is invalid (%s): %w", c.Issuer, err, ErrInvalidIssuer))
		case !strutils.StrListContains([]string{"https", "http"}, u.Scheme):
			errs = multierror.Append(errs, fmt.Errorf("issuer %s schema is not http or https: %w", c.Issuer, ErrInvalidIssuer))
		case u.RawQuery != "" || u.Fragment != "":
			errs = multierror.Append(errs, fmt.Errorf("issuer %s has a query or fragment: %w", c.Issuer, ErrInvalidIssuer))
		}
	}
	if !strutils.StrListContains(c.Scopes, oidc.ScopeOpenID) {
		errs = multierror.Append(errs, fmt.Errorf("scopes must include %q: %w", oidc.ScopeOpenID, ErrInvalidParameter))
	}
	if len(c.SupportedSigningAlgs) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("supported algorithms is empty: %w", ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			errs = multierror.Append(errs, fmt.Errorf("algorithm %s: %w", a, ErrUnsupportedAlg))
		}
	}
	if c.ClockSkew < 0 {
		errs = multierror.Append(errs, fmt.Errorf("clock skew is negative: %w", ErrInvalidParameter))
	}
	if c.HTTPClient == nil && c.ProviderCA != "" {
		if _, err := c.HttpClient(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Now returns the current time using the optional NowFunc.
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

// HttpClient is a helper function that creates a new http client for the
// provider configured.
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	if c.HTTPClient != nil {
		return c.HTTPClient, nil
	}
	client, err := sdkHttp.NewClient(c.ProviderCA)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// HttpClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
//
// A Provider uses the client found in the context of a request instead of its
// own, which is how per-session transports (DPoP) are plugged in.
func HttpClientContext(ctx context.Context, client *http.Client) context.Context {
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options
type configOptions struct {
	withScopes                   []string
	withAudiences                []string
	withProviderCA               string
	withSupportedSigningAlgs     []Alg
	withClientAuthMethod         ClientAuthMethod
	withClientAssertion          clientassertion.Serializer
	withMTLSEndpointAliases      bool
	withStrictLogoutTokenTyping  bool
	withLogoutTokenDecryptionKey interface{}
	withClockSkew                time.Duration
	withHTTPClient               *http.Client
	withNowFunc                  func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func configDefaults() configOptions {
	return configOptions{
		withScopes:               append([]string(nil), DefaultScopes...),
		withSupportedSigningAlgs: []Alg{RS256},
		withClockSkew:            DefaultClockSkew,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes, replacing DefaultScopes.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = strutils.RemoveDuplicatesStable(scopes, false)
		}
	}
}

// WithAudiences provides an optional list of additional audiences.
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = auds
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithSupportedSigningAlgs overrides the default of RS256.
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithClientAuthMethod provides the client authentication method.
func WithClientAuthMethod(m ClientAuthMethod) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientAuthMethod = m
		}
	}
}

// WithClientAssertion provides the client assertion used with PrivateKeyJWT
// and ClientSecretJWT. See the clientassertion package.
func WithClientAssertion(j clientassertion.Serializer) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientAssertion = j
		}
	}
}

// WithMTLSEndpointAliases makes the provider use its mTLS endpoint aliases.
func WithMTLSEndpointAliases() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withMTLSEndpointAliases = true
		}
	}
}

// WithStrictLogoutTokenTyping requires "typ": "logout+jwt" on logout tokens.
func WithStrictLogoutTokenTyping() Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withStrictLogoutTokenTyping = true
		}
	}
}

// WithClockSkew overrides DefaultClockSkew.
func WithClockSkew(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClockSkew = d
		}
	}
}

// WithHTTPClient provides the client used for provider requests, taking
// precedence over WithProviderCA.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withHTTPClient = c
		}
	}
}
