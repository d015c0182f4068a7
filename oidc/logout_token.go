// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/tbroyer/oidc-servlets-sub000/oidc/internal/strutils"
)

// BackchannelLogoutEvent is the member of a logout token's "events" claim
// (OpenID Connect Back-Channel Logout 1.0, section 2.4).
const BackchannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"

// LogoutTokenType is the explicit "typ" header of logout tokens.
const LogoutTokenType = "logout+jwt"

// LogoutToken holds the verified claims of a logout token.
type LogoutToken struct {
	Issuer    string
	Subject   string
	Audience  []string
	IssuedAt  time.Time
	SessionId string
	JwtId     string
}

// LogoutTokenVerifier validates back-channel logout tokens.
type LogoutTokenVerifier struct {
	issuer        string
	clientId      string
	audiences     []string
	keySet        oidc.KeySet
	algs          []jose.SignatureAlgorithm
	strictTyping  bool
	clockSkew     time.Duration
	now           func() time.Time
	decryptionKey interface{}
}

// NewLogoutTokenVerifier creates a verifier for tokens issued by issuer for
// clientId and signed with keys of keySet.
//
// Supported options: WithSupportedSigningAlgs, WithAudiences,
// WithStrictLogoutTokenTyping, WithClockSkew, WithLogoutTokenDecryptionKey,
// WithNow
func NewLogoutTokenVerifier(issuer, clientId string, keySet oidc.KeySet, opt ...Option) (*LogoutTokenVerifier, error) {
	const op = "NewLogoutTokenVerifier"
	switch {
	case issuer == "":
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	case clientId == "":
		return nil, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	case keySet == nil:
		return nil, fmt.Errorf("%s: key set is nil: %w", op, ErrNilParameter)
	}
	opts := getConfigOpts(opt...)
	lopts := getLogoutTokenOpts(opt...)
	v := &LogoutTokenVerifier{
		issuer:        issuer,
		clientId:      clientId,
		audiences:     opts.withAudiences,
		keySet:        keySet,
		strictTyping:  opts.withStrictLogoutTokenTyping,
		clockSkew:     opts.withClockSkew,
		now:           opts.withNowFunc,
		decryptionKey: lopts.withDecryptionKey,
	}
	for _, a := range opts.withSupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			return nil, fmt.Errorf("%s: %s: %w", op, a, ErrUnsupportedAlg)
		}
		v.algs = append(v.algs, jose.SignatureAlgorithm(a))
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v, nil
}

// LogoutTokenVerifier returns a verifier using the provider's configuration
// and JWKS.
//
// Supported options: WithLogoutTokenDecryptionKey
func (p *Provider) LogoutTokenVerifier(opt ...Option) (*LogoutTokenVerifier, error) {
	c := p.config
	opts := []Option{
		WithSupportedSigningAlgs(c.SupportedSigningAlgs...),
		WithAudiences(c.Audiences...),
		WithClockSkew(c.ClockSkew),
		WithNow(c.Now),
	}
	if c.StrictLogoutTokenTyping {
		opts = append(opts, WithStrictLogoutTokenTyping())
	}
	return NewLogoutTokenVerifier(p.metadata.Issuer, c.ClientId, p.keySet, append(opts, opt...)...)
}

type logoutTokenClaims struct {
	Issuer   string                     `json:"iss"`
	Subject  string                     `json:"sub"`
	Audience jwt.Audience               `json:"aud"`
	IssuedAt *jwt.NumericDate           `json:"iat"`
	Expiry   *jwt.NumericDate           `json:"exp"`
	JwtId    string                     `json:"jti"`
	Sid      string                     `json:"sid"`
	Events   map[string]json.RawMessage `json:"events"`
	Nonce    *json.RawMessage           `json:"nonce"`
}

// Verify validates raw as specified by OpenID Connect Back-Channel Logout
// 1.0, section 2.6. Every failure wraps ErrLogoutTokenVerificationFailed.
func (v *LogoutTokenVerifier) Verify(ctx context.Context, raw string) (*LogoutToken, error) {
	const op = "LogoutTokenVerifier.Verify"
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%s: %w: %s", op, ErrLogoutTokenVerificationFailed, fmt.Sprintf(format, args...))
	}
	if raw == "" {
		return nil, fail("logout_token is empty")
	}

	// 1. decrypt if encrypted; a nested token is typed by its JWE header
	encrypted := strings.Count(raw, ".") == 4
	if encrypted {
		if v.decryptionKey == nil {
			return nil, fail("encrypted logout_token but no decryption key is configured")
		}
		jwe, err := jose.ParseEncrypted(raw, supportedKeyAlgorithms, supportedContentEncryptions)
		if err != nil {
			return nil, fail("malformed encrypted jwt: %s", err)
		}
		if err := checkType(jwe.Header, v.strictTyping); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrLogoutTokenVerificationFailed, err)
		}
		plain, err := jwe.Decrypt(v.decryptionKey)
		if err != nil {
			return nil, fail("unable to decrypt: %s", err)
		}
		raw = string(plain)
	}

	// 2. signature
	if err := rejectUnsigned(raw); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLogoutTokenVerificationFailed, err)
	}
	jws, err := jose.ParseSigned(raw, v.algs)
	if err != nil {
		return nil, fail("malformed jwt: %s", err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fail("expected exactly one signature, got %d", len(jws.Signatures))
	}
	if err := checkType(jws.Signatures[0].Protected, v.strictTyping && !encrypted); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLogoutTokenVerificationFailed, err)
	}
	payload, err := v.keySet.VerifySignature(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w: %w", op, ErrLogoutTokenVerificationFailed, ErrInvalidSignature, err)
	}

	var claims logoutTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fail("unable to decode claims: %s", err)
	}

	// 3. iss, aud, iat
	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%s: %w: %w: expected %q, got %q", op, ErrLogoutTokenVerificationFailed, ErrInvalidIssuer, v.issuer, claims.Issuer)
	}
	if !claims.Audience.Contains(v.clientId) {
		return nil, fmt.Errorf("%s: %w: %w: expected %q, got %q", op, ErrLogoutTokenVerificationFailed, ErrInvalidAudience, v.clientId, []string(claims.Audience))
	}
	if len(v.audiences) > 0 {
		found := false
		for _, a := range v.audiences {
			if strutils.StrListContains(claims.Audience, a) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrLogoutTokenVerificationFailed, ErrInvalidAudience)
		}
	}
	now := v.now()
	if claims.IssuedAt == nil {
		return nil, fail("iat is missing")
	}
	if claims.IssuedAt.Time().After(now.Add(v.clockSkew)) {
		return nil, fail("issued in the future")
	}
	if claims.Expiry != nil && now.Add(-v.clockSkew).After(claims.Expiry.Time()) {
		return nil, fail("expired")
	}

	// 4. sub and/or sid
	if claims.Subject == "" && claims.Sid == "" {
		return nil, fail("sub or sid is required")
	}

	// 5. events
	event, ok := claims.Events[BackchannelLogoutEvent]
	if !ok || !isJSONObject(event) {
		return nil, fail("events does not contain %s", BackchannelLogoutEvent)
	}

	// 6. no nonce
	if claims.Nonce != nil {
		return nil, fail("nonce must not be present")
	}

	return &LogoutToken{
		Issuer:    claims.Issuer,
		Subject:   claims.Subject,
		Audience:  claims.Audience,
		IssuedAt:  claims.IssuedAt.Time(),
		SessionId: claims.Sid,
		JwtId:     claims.JwtId,
	}, nil
}

// VerifyLogoutToken verifies raw with the provider's LogoutTokenVerifier.
func (p *Provider) VerifyLogoutToken(ctx context.Context, raw string) (*LogoutToken, error) {
	const op = "Provider.VerifyLogoutToken"
	v, err := p.logoutTokenVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v.Verify(ctx, raw)
}

func (p *Provider) logoutTokenVerifier() (*LogoutTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.logoutVerifier != nil {
		return p.logoutVerifier, nil
	}
	var opt []Option
	if p.config.LogoutTokenDecryptionKey != nil {
		opt = append(opt, WithLogoutTokenDecryptionKey(p.config.LogoutTokenDecryptionKey))
	}
	v, err := p.LogoutTokenVerifier(opt...)
	if err != nil {
		return nil, err
	}
	p.logoutVerifier = v
	return v, nil
}

// checkType enforces the "typ" header: "logout+jwt" when typing is strict,
// otherwise absent, "logout+jwt" or "JWT".
func checkType(h jose.Header, strict bool) error {
	typ, _ := h.ExtraHeaders[jose.HeaderType].(string)
	switch {
	case strings.EqualFold(typ, LogoutTokenType), strings.EqualFold(typ, "application/"+LogoutTokenType):
		return nil
	case strict:
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidLogoutTokenType, LogoutTokenType, typ)
	case typ == "", strings.EqualFold(typ, "JWT"):
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogoutTokenType, typ)
	}
}

// rejectUnsigned fails for unsecured JWTs ("alg": "none") before any other
// parsing.
func rejectUnsigned(raw string) error {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return fmt.Errorf("malformed jwt: expected 3 parts, got %d", len(parts))
	}
	b, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("malformed jwt header: %w", err)
	}
	var h struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(b, &h); err != nil {
		return fmt.Errorf("malformed jwt header: %w", err)
	}
	if h.Alg == "" || strings.EqualFold(h.Alg, "none") || parts[2] == "" {
		return ErrUnsignedLogoutToken
	}
	return nil
}

func isJSONObject(b json.RawMessage) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(b, &m) == nil && m != nil
}

var supportedKeyAlgorithms = []jose.KeyAlgorithm{
	jose.RSA_OAEP,
	jose.RSA_OAEP_256,
	jose.ECDH_ES,
	jose.ECDH_ES_A128KW,
	jose.ECDH_ES_A192KW,
	jose.ECDH_ES_A256KW,
}

var supportedContentEncryptions = []jose.ContentEncryption{
	jose.A128GCM,
	jose.A192GCM,
	jose.A256GCM,
	jose.A128CBC_HS256,
	jose.A192CBC_HS384,
	jose.A256CBC_HS512,
}

type logoutTokenOptions struct {
	withDecryptionKey interface{}
}

func getLogoutTokenOpts(opt ...Option) logoutTokenOptions {
	var opts logoutTokenOptions
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogoutTokenDecryptionKey provides the private key used to decrypt
// encrypted logout tokens, for: NewConfig and NewLogoutTokenVerifier.
func WithLogoutTokenDecryptionKey(key interface{}) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *logoutTokenOptions:
			v.withDecryptionKey = key
		case *configOptions:
			v.withLogoutTokenDecryptionKey = key
		}
	}
}
