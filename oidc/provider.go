// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/tbroyer/oidc-servlets-sub000/oidc/internal/strutils"
	"golang.org/x/oauth2"
)

// Provider provides integration with an OpenID Provider for a relying party
// using the authorization code flow with PKCE: building authorization
// requests, exchanging codes for tokens, verifying id_tokens and logout
// tokens, fetching user info and revoking tokens.
type Provider struct {
	config   *Config
	provider *oidc.Provider
	metadata ProviderMetadata
	client   *http.Client
	keySet   oidc.KeySet
	logger   hclog.Logger

	logoutVerifier *LogoutTokenVerifier

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates and initializes a Provider. Initializing the provider
// includes making an http request to the provider's discovery endpoint.
//
// See Provider.Done() which must be called to release provider resources.
//
// Supported options: WithLogger
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getProviderOpts(opt...)

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c,
		logger:              opts.withLogger,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HttpClient()
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client
	clientCtx := HttpClientContext(p.backgroundCtx, client)

	discovered, err := oidc.NewProvider(clientCtx, c.Issuer) // makes http req to issuer for discovery
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	if err := discovered.Claims(&p.metadata); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to decode provider metadata: %w", op, err)
	}
	p.provider = discovered
	if c.UseMTLSEndpointAliases && len(p.metadata.MTLSEndpointAliases) > 0 {
		p.metadata = p.metadata.ResolveMTLSEndpointAliases()
		pc := &oidc.ProviderConfig{
			IssuerURL:   p.metadata.Issuer,
			AuthURL:     p.metadata.AuthorizationEndpoint,
			TokenURL:    p.metadata.TokenEndpoint,
			UserInfoURL: p.metadata.UserinfoEndpoint,
			JWKSURL:     p.metadata.JwksURI,
			Algorithms:  p.metadata.IdTokenSigningAlgValuesSupported,
		}
		p.provider = pc.NewProvider(clientCtx)
	}
	p.keySet = oidc.NewRemoteKeySet(clientCtx, p.metadata.JwksURI)
	p.logger.Debug("provider discovered", "op", op, "issuer", p.metadata.Issuer,
		"par", p.metadata.PushedAuthorizationRequestEndpoint != "",
		"end_session", p.metadata.EndSessionEndpoint != "",
		"revocation", p.metadata.RevocationEndpoint != "")
	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns the provider's configuration.
func (p *Provider) Config() *Config {
	return p.config
}

// Metadata returns the provider's discovery metadata, mTLS aliases resolved
// when configured.
func (p *Provider) Metadata() ProviderMetadata {
	return p.metadata
}

// HttpClient returns the client the provider sends its requests with, unless
// the request's context carries another one (see HttpClientContext).
func (p *Provider) HttpClient() *http.Client {
	return p.client
}

// NewAuthRequest returns an authorization request for the provider's
// authorization endpoint, with the response type "code" and the configured
// scopes. Redirect URI, state, nonce and PKCE challenge are left to the
// caller.
func (p *Provider) NewAuthRequest() *AuthRequest {
	return &AuthRequest{
		Endpoint:     p.metadata.AuthorizationEndpoint,
		ClientId:     p.config.ClientId,
		ResponseType: "code",
		Scopes:       append([]string(nil), p.config.Scopes...),
		Extra:        url.Values{},
	}
}

// Exchange requests tokens from the token endpoint, sending the code and
// PKCE verifier received and created for this authentication flow. A
// *oauth2.RetrieveError describing the provider's error response can be
// extracted from the error with errors.As.
//
// The returned Token always carries an id_token, which still needs to be
// verified with VerifyIdToken.
func (p *Provider) Exchange(ctx context.Context, code, redirectURI string, verifier CodeVerifier) (*Token, error) {
	const op = "Provider.Exchange"
	switch {
	case code == "":
		return nil, fmt.Errorf("%s: code is empty: %w", op, ErrInvalidParameter)
	case redirectURI == "":
		return nil, fmt.Errorf("%s: redirect URI is empty: %w", op, ErrInvalidParameter)
	case verifier == "":
		return nil, fmt.Errorf("%s: code verifier is empty: %w", op, ErrInvalidParameter)
	}
	cfg, opts, err := p.oauth2Config(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts = append(opts, oauth2.VerifierOption(string(verifier)))
	oauth2Token, err := cfg.Exchange(HttpClientContext(ctx, p.httpClient(ctx)), code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w: %w", op, ErrTokenRequestFailed, err)
	}
	t, err := NewToken(oauth2Token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// VerifyIdToken will verify the inbound IdToken. It verifies it's been signed
// by the provider, that it's not expired, that it's issued by the provider
// for this client, and that it carries the nonce of the authentication flow.
// Every failure wraps ErrIdTokenVerificationFailed.
//
// Supported options: WithAccessToken, WithNow
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIdToken(ctx context.Context, t IdToken, nonce string, opt ...Option) (*IdTokenClaims, error) {
	const op = "Provider.VerifyIdToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if nonce == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	opts := getVerifyOpts(opt...)
	now := p.config.Now
	if opts.withNowFunc != nil {
		now = opts.withNowFunc
	}
	verifier := p.provider.Verifier(&oidc.Config{
		ClientID:             p.config.ClientId,
		SupportedSigningAlgs: algStrings(p.config.SupportedSigningAlgs),
		Now:                  now,
	})

	// go-oidc returns its own error types for signature, issuer, audience
	// and expiry failures.
	oidcIdToken, err := verifier.Verify(HttpClientContext(ctx, p.client), string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIdTokenVerificationFailed, err)
	}
	if oidcIdToken.Nonce != nonce {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIdTokenVerificationFailed, ErrInvalidNonce)
	}
	if len(p.config.Audiences) > 0 {
		found := false
		for _, v := range p.config.Audiences {
			if strutils.StrListContains(oidcIdToken.Audience, v) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrIdTokenVerificationFailed, ErrInvalidAudience)
		}
	}
	if opts.withAccessToken != "" && oidcIdToken.AccessTokenHash != "" {
		if err := oidcIdToken.VerifyAccessToken(string(opts.withAccessToken)); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrIdTokenVerificationFailed, err)
		}
	}

	claims := &IdTokenClaims{
		Issuer:   oidcIdToken.Issuer,
		Subject:  oidcIdToken.Subject,
		Audience: oidcIdToken.Audience,
		Expiry:   oidcIdToken.Expiry,
		IssuedAt: oidcIdToken.IssuedAt,
		Nonce:    oidcIdToken.Nonce,
	}
	if err := oidcIdToken.Claims(&claims.Claims); err != nil {
		return nil, fmt.Errorf("%s: %w: unable to decode claims: %w", op, ErrIdTokenVerificationFailed, err)
	}
	if sid, ok := claims.Claims["sid"].(string); ok {
		claims.SessionId = sid
	}
	return claims, nil
}

// UserInfo gets the UserInfo claims from the provider using the access token
// of t.
//
// Supported options: WithExpectedSubject
func (p *Provider) UserInfo(ctx context.Context, t *Token, opt ...Option) (*UserInfo, error) {
	const op = "Provider.UserInfo"
	if t == nil || t.AccessToken == "" {
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	opts := getUserInfoOpts(opt...)
	ui, err := p.provider.UserInfo(HttpClientContext(ctx, p.httpClient(ctx)), t.StaticTokenSource())
	if err != nil {
		return nil, fmt.Errorf("%s: provider UserInfo request failed: %w: %w", op, ErrUserInfoFailed, err)
	}
	info := &UserInfo{
		Subject:       ui.Subject,
		Email:         ui.Email,
		EmailVerified: ui.EmailVerified,
		Profile:       ui.Profile,
	}
	if err := ui.Claims(&info.Claims); err != nil {
		return nil, fmt.Errorf("%s: failed to get UserInfo claims: %w: %w", op, ErrUserInfoFailed, err)
	}
	if opts.withExpectedSubject != "" && info.Subject != opts.withExpectedSubject {
		return nil, fmt.Errorf("%s: userinfo sub %q does not match id_token sub: %w", op, info.Subject, ErrInvalidSubject)
	}
	return info, nil
}

// EndSessionURL builds the URL of the provider's end_session_endpoint
// (OpenID Connect RP-Initiated Logout 1.0). postLogoutRedirectURI and state
// are optional.
func (p *Provider) EndSessionURL(idTokenHint IdToken, postLogoutRedirectURI, state string) (string, error) {
	const op = "Provider.EndSessionURL"
	if p.metadata.EndSessionEndpoint == "" {
		return "", fmt.Errorf("%s: end_session_endpoint: %w", op, ErrEndpointNotSupported)
	}
	u, err := url.Parse(p.metadata.EndSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("%s: invalid end_session_endpoint: %w", op, err)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientId)
	if idTokenHint != "" {
		q.Set("id_token_hint", string(idTokenHint))
	}
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
		if state != "" {
			q.Set("state", state)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// httpClient returns the client carried by ctx (see HttpClientContext), or
// the provider's client.
func (p *Provider) httpClient(ctx context.Context) *http.Client {
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c != nil {
		return c
	}
	return p.client
}

func (p *Provider) oauth2Config(redirectURI string) (*oauth2.Config, []oauth2.AuthCodeOption, error) {
	const op = "Provider.oauth2Config"
	cfg := &oauth2.Config{
		ClientID:    p.config.ClientId,
		RedirectURL: redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.metadata.AuthorizationEndpoint,
			TokenURL: p.metadata.TokenEndpoint,
		},
		Scopes: p.config.Scopes,
	}
	var opts []oauth2.AuthCodeOption
	switch p.config.ClientAuthMethod {
	case ClientSecretBasic:
		cfg.ClientSecret = string(p.config.ClientSecret)
		cfg.Endpoint.AuthStyle = oauth2.AuthStyleInHeader
	case ClientSecretPost:
		cfg.ClientSecret = string(p.config.ClientSecret)
		cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	case PrivateKeyJWT, ClientSecretJWT:
		assertion, err := p.config.ClientAssertion.Serialize()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: unable to create client assertion: %w", op, err)
		}
		cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
		opts = append(opts,
			oauth2.SetAuthURLParam("client_assertion_type", clientAssertionType),
			oauth2.SetAuthURLParam("client_assertion", assertion),
		)
	case NoClientAuth:
		cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	default:
		return nil, nil, fmt.Errorf("%s: %q: %w", op, p.config.ClientAuthMethod, ErrUnsupportedClientAuthentication)
	}
	return cfg, opts, nil
}

type providerOptions struct {
	withLogger hclog.Logger
}

func providerDefaults() providerOptions {
	return providerOptions{withLogger: hclog.NewNullLogger()}
}

func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

type verifyOptions struct {
	withAccessToken AccessToken
	withNowFunc     func() time.Time
}

func getVerifyOpts(opt ...Option) verifyOptions {
	var opts verifyOptions
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAccessToken makes VerifyIdToken check the id_token's at_hash claim
// against the access token, when the claim is present.
func WithAccessToken(t AccessToken) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifyOptions); ok {
			o.withAccessToken = t
		}
	}
}

type userInfoOptions struct {
	withExpectedSubject string
}

func getUserInfoOpts(opt ...Option) userInfoOptions {
	var opts userInfoOptions
	ApplyOpts(&opts, opt...)
	return opts
}

// WithExpectedSubject makes UserInfo fail with ErrInvalidSubject when the
// response's sub differs from sub (OpenID Connect Core 1.0, section 5.3.2).
func WithExpectedSubject(sub string) Option {
	return func(o interface{}) {
		if o, ok := o.(*userInfoOptions); ok {
			o.withExpectedSubject = sub
		}
	}
}
