// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
	"github.com/tbroyer/oidc-servlets-sub000/oidc/internal/strutils"
)

// Default values of a TestProvider.
const (
	TestClientId     = "test-rp"
	TestClientSecret = "test-rp-secret"
	TestSubject      = "alice"
	TestSessionId    = "test-op-session"
	TestKeyId        = "test-key"
)

const testRequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

// TestProvider is a local OpenID Provider for tests. It serves discovery,
// JWKS, authorization (with PKCE, request objects and pushed requests),
// token (with optional DPoP), userinfo, revocation and end-session
// endpoints over TLS.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	key        *ecdsa.PrivateKey
	jwks       *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientId            string
	clientSecret        string
	allowedRedirectURIs []string
	subject             string
	sessionId           string
	customClaims        map[string]interface{}
	userInfoClaims      map[string]interface{}
	userInfoSubject     string
	omitIdToken         bool
	omitAtHash          bool
	disableUserInfo     bool
	disableEndSession   bool
	disableRevocation   bool
	disablePAR          bool
	mtlsAliases         bool
	authError           string
	tokenError          string
	dpopNonce           string

	codes         map[string]testAuthCode
	pushed        map[string]url.Values
	accessTokens  map[string]string // access token -> dpop jkt
	revoked       []string
	endSessions   []url.Values
	tokenRequests int

	t *testing.T
}

type testAuthCode struct {
	redirectURI string
	nonce       string
	challenge   string
	dpopJKT     string
}

// StartTestProvider creates a disposable TestProvider listening on a random
// port of 127.0.0.1, or on port when it's not zero.
func StartTestProvider(t *testing.T, port int) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		clientId:            TestClientId,
		clientSecret:        TestClientSecret,
		allowedRedirectURIs: []string{"https://rp.example.com/callback"},
		subject:             TestSubject,
		sessionId:           TestSessionId,
		userInfoClaims: map[string]interface{}{
			"email":          "alice@example.com",
			"email_verified": true,
			"name":           "Alice",
		},
		codes:        map[string]testAuthCode{},
		pushed:       map[string]url.Values{},
		accessTokens: map[string]string{},
		t:            t,
	}
	p.key = TestGenerateKey(t)
	p.jwks = &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{Key: &p.key.PublicKey, KeyID: TestKeyId, Algorithm: string(ES256), Use: "sig"}},
	}

	p.httpServer = httptestNewUnstartedServerWithPort(t, p, port)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the provider's address, which is also its issuer.
func (p *TestProvider) Addr() string {
	return p.httpServer.URL
}

// CACert returns the pem-encoded CA certificate used by the provider.
func (p *TestProvider) CACert() string {
	return p.caCert
}

// HTTPClient returns a client trusting the provider's certificate.
func (p *TestProvider) HTTPClient() *http.Client {
	return p.httpServer.Client()
}

// SigningKey returns the provider's private ES256 key, whose "kid" is
// TestKeyId.
func (p *TestProvider) SigningKey() *ecdsa.PrivateKey {
	return p.key
}

// KeySet returns a key set holding the provider's public key.
func (p *TestProvider) KeySet() oidc.KeySet {
	return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&p.key.PublicKey}}
}

// NewConfig returns a Config for the provider's client, trusting the
// provider's certificate and ES256 signatures.
func (p *TestProvider) NewConfig(t *testing.T, opt ...Option) *Config {
	t.Helper()
	p.mu.Lock()
	clientId, clientSecret := p.clientId, p.clientSecret
	p.mu.Unlock()
	defaults := []Option{WithProviderCA(p.caCert), WithSupportedSigningAlgs(ES256)}
	c, err := NewConfig(p.Addr(), clientId, ClientSecret(clientSecret), append(defaults, opt...)...)
	require.NoError(t, err)
	return c
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows. An empty secret makes the client public.
func (p *TestProvider) SetClientCreds(clientId, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientId = clientId
	p.clientSecret = clientSecret
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs
// for the OIDC workflow.
func (p *TestProvider) SetAllowedRedirectURIs(uris ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject sets the "sub" of issued id_tokens and of the userinfo
// response.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = sub
}

// SetSessionId sets the "sid" of issued id_tokens. An empty sid omits the
// claim.
func (p *TestProvider) SetSessionId(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionId = sid
}

// SetCustomClaims sets additional claims of issued id_tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetUserInfoClaims sets the claims of the userinfo response, besides "sub".
func (p *TestProvider) SetUserInfoClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoClaims = claims
}

// SetUserInfoSubject makes the userinfo response return sub instead of the
// id_token's subject.
func (p *TestProvider) SetUserInfoSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoSubject = sub
}

// OmitIdToken turns on/off the omitting of an id_token in token responses.
func (p *TestProvider) OmitIdToken(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIdToken = omit
}

// OmitAtHash turns on/off the omitting of the at_hash claim of id_tokens.
func (p *TestProvider) OmitAtHash(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitAtHash = omit
}

// DisableUserInfo removes the userinfo endpoint from the discovery document.
func (p *TestProvider) DisableUserInfo(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = disable
}

// DisableEndSession removes the end-session endpoint from the discovery
// document.
func (p *TestProvider) DisableEndSession(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableEndSession = disable
}

// DisableRevocation removes the revocation endpoint from the discovery
// document.
func (p *TestProvider) DisableRevocation(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableRevocation = disable
}

// DisablePAR removes the pushed authorization request endpoint from the
// discovery document.
func (p *TestProvider) DisablePAR(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disablePAR = disable
}

// EnableMTLSEndpointAliases advertises mtls_endpoint_aliases, served under
// the "/mtls" prefix.
func (p *TestProvider) EnableMTLSEndpointAliases(enable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mtlsAliases = enable
}

// SetAuthError makes the authorization endpoint answer with the given error
// code. An empty code restores successful responses.
func (p *TestProvider) SetAuthError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authError = code
}

// SetTokenError makes the token endpoint answer with the given error code.
// An empty code restores successful responses.
func (p *TestProvider) SetTokenError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenError = code
}

// SetDPoPNonce makes the token endpoint require DPoP proofs carrying nonce.
func (p *TestProvider) SetDPoPNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dpopNonce = nonce
}

// RevokedTokens returns the tokens revoked so far.
func (p *TestProvider) RevokedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

// EndSessionRequests returns the query of every request received by the
// end-session endpoint.
func (p *TestProvider) EndSessionRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.endSessions...)
}

// TokenRequests returns the number of requests received by the token
// endpoint.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// AccessTokenJKT returns the DPoP key thumbprint accessToken is bound to, and
// whether the token was issued at all.
func (p *TestProvider) AccessTokenJKT(accessToken string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	jkt, ok := p.accessTokens[accessToken]
	return jkt, ok
}

// Authorize sends the browser's request for authURL and returns the
// redirection the provider answered with.
func (p *TestProvider) Authorize(t *testing.T, authURL string) *url.URL {
	t.Helper()
	require := require.New(t)
	client := *p.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode, "authorization endpoint did not redirect")
	loc, err := resp.Location()
	require.NoError(err)
	return loc
}

// LogoutTokenClaims returns the claims of a valid logout token for the
// provider's client. Either sub or sid may be empty.
func (p *TestProvider) LogoutTokenClaims(sub, sid string) map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	claims := map[string]interface{}{
		"iss":    p.Addr(),
		"aud":    p.clientId,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(2 * time.Minute).Unix(),
		"jti":    strconv.FormatInt(time.Now().UnixNano(), 36),
		"events": map[string]interface{}{BackchannelLogoutEvent: map[string]interface{}{}},
	}
	if sub != "" {
		claims["sub"] = sub
	}
	if sid != "" {
		claims["sid"] = sid
	}
	return claims
}

// SignLogoutToken signs claims with the provider's key, with a "typ" header
// of "logout+jwt".
func (p *TestProvider) SignLogoutToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	return TestSignJWT(t, p.key, ES256, TestKeyId, LogoutTokenType, claims)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, status int, out interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, redirectURI, state, errorCode, errorMessage string) {
	q := url.Values{"error": {errorCode}, "iss": {p.Addr()}}
	if state != "" {
		q.Set("state", state)
	}
	if errorMessage != "" {
		q.Set("error_description", errorMessage)
	}
	http.Redirect(w, req, redirectURI+"?"+q.Encode(), http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	p.writeJSON(w, statusCode, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := req.URL.Path
	if p.mtlsAliases {
		path = strings.TrimPrefix(path, "/mtls")
	}

	switch path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.writeJSON(w, http.StatusOK, p.discovery())

	case "/certs":
		p.writeJSON(w, http.StatusOK, p.jwks)

	case "/authorize":
		p.handleAuthorize(w, req)

	case "/par":
		if p.disablePAR || req.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !p.authenticateClient(req) {
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "")
			return
		}
		params, err := p.expandRequestObject(req.PostForm)
		if err != nil {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request_object", err.Error())
			return
		}
		requestURI := testRequestURIPrefix + strconv.FormatInt(time.Now().UnixNano(), 36)
		p.pushed[requestURI] = params
		p.writeJSON(w, http.StatusCreated, map[string]interface{}{
			"request_uri": requestURI,
			"expires_in":  60,
		})

	case "/token":
		p.handleToken(w, req)

	case "/userinfo":
		p.handleUserInfo(w, req)

	case "/revoke":
		if p.disableRevocation || req.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !p.authenticateClient(req) {
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "")
			return
		}
		p.revoked = append(p.revoked, req.PostForm.Get("token"))
		delete(p.accessTokens, req.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)

	case "/logout":
		if p.disableEndSession {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		q := req.URL.Query()
		p.endSessions = append(p.endSessions, q)
		if target := q.Get("post_logout_redirect_uri"); target != "" {
			if state := q.Get("state"); state != "" {
				target += "?state=" + url.QueryEscape(state)
			}
			http.Redirect(w, req, target, http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) discovery() map[string]interface{} {
	addr := p.Addr()
	d := map[string]interface{}{
		"issuer":                                addr,
		"authorization_endpoint":                addr + "/authorize",
		"token_endpoint":                        addr + "/token",
		"jwks_uri":                              addr + "/certs",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{string(ES256)},
		"code_challenge_methods_supported":      []string{S256},
		"dpop_signing_alg_values_supported":     []string{string(ES256), string(RS256), string(EdDSA)},
		"backchannel_logout_supported":          true,
		"backchannel_logout_session_supported":  true,
	}
	d["authorization_response_iss_parameter_supported"] = true
	endpoints := map[string]string{}
	if !p.disableUserInfo {
		endpoints["userinfo_endpoint"] = "/userinfo"
	}
	if !p.disableEndSession {
		d["end_session_endpoint"] = addr + "/logout"
	}
	if !p.disableRevocation {
		endpoints["revocation_endpoint"] = "/revoke"
	}
	if !p.disablePAR {
		endpoints["pushed_authorization_request_endpoint"] = "/par"
	}
	endpoints["token_endpoint"] = "/token"
	aliases := map[string]string{}
	for name, path := range endpoints {
		d[name] = addr + path
		aliases[name] = addr + "/mtls" + path
	}
	if p.mtlsAliases {
		d["mtls_endpoint_aliases"] = aliases
	}
	return d
}

func (p *TestProvider) handleAuthorize(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := req.URL.Query()
	if requestURI := q.Get("request_uri"); requestURI != "" {
		pushed, ok := p.pushed[requestURI]
		if !ok {
			http.Error(w, "unknown request_uri", http.StatusBadRequest)
			return
		}
		delete(p.pushed, requestURI)
		q = pushed
	} else {
		expanded, err := p.expandRequestObject(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q = expanded
	}

	redirectURI := q.Get("redirect_uri")
	if q.Get("client_id") != p.clientId || !strutils.StrListContains(p.allowedRedirectURIs, redirectURI) {
		http.Error(w, "invalid client_id or redirect_uri", http.StatusBadRequest)
		return
	}
	state := q.Get("state")
	switch {
	case p.authError != "":
		p.writeAuthErrorResponse(w, req, redirectURI, state, p.authError, "")
		return
	case q.Get("response_type") != "code":
		p.writeAuthErrorResponse(w, req, redirectURI, state, "unsupported_response_type", "")
		return
	case !strutils.StrListContains(strings.Fields(q.Get("scope")), oidc.ScopeOpenID):
		p.writeAuthErrorResponse(w, req, redirectURI, state, "invalid_scope", "")
		return
	case q.Get("code_challenge") == "" || q.Get("code_challenge_method") != S256:
		p.writeAuthErrorResponse(w, req, redirectURI, state, "invalid_request", "missing S256 code_challenge")
		return
	case q.Get("nonce") == "":
		p.writeAuthErrorResponse(w, req, redirectURI, state, "invalid_request", "missing nonce")
		return
	}

	code, err := NewId("code")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.codes[code] = testAuthCode{
		redirectURI: redirectURI,
		nonce:       q.Get("nonce"),
		challenge:   q.Get("code_challenge"),
		dpopJKT:     q.Get("dpop_jkt"),
	}
	resp := url.Values{"code": {code}, "iss": {p.Addr()}}
	if state != "" {
		resp.Set("state", state)
	}
	http.Redirect(w, req, redirectURI+"?"+resp.Encode(), http.StatusFound)
}

func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.tokenRequests++
	if !p.authenticateClient(req) {
		p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "")
		return
	}
	if p.tokenError != "" {
		p.writeTokenErrorResponse(w, http.StatusBadRequest, p.tokenError, "")
		return
	}
	form := req.PostForm
	if form.Get("grant_type") != "authorization_code" {
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}
	code, ok := p.codes[form.Get("code")]
	if !ok {
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unknown code")
		return
	}
	// A DPoP error leaves the code usable.
	tokenType, jkt := "Bearer", ""
	if proof := req.Header.Get("DPoP"); proof != "" || code.dpopJKT != "" {
		var nonce string
		var err error
		jkt, nonce, err = p.verifyDPoPProof(proof, req, "")
		switch {
		case err != nil:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_dpop_proof", err.Error())
			return
		case p.dpopNonce != "" && nonce != p.dpopNonce:
			w.Header().Set("DPoP-Nonce", p.dpopNonce)
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "use_dpop_nonce", "")
			return
		case code.dpopJKT != "" && code.dpopJKT != jkt:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_dpop_proof", "dpop_jkt mismatch")
			return
		}
		tokenType = "DPoP"
	}
	delete(p.codes, form.Get("code"))
	switch {
	case form.Get("redirect_uri") != code.redirectURI:
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	case oauth2S256(form.Get("code_verifier")) != code.challenge:
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code_verifier mismatch")
		return
	}

	accessToken, err := NewId("at")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	refreshToken, err := NewId("rt")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.accessTokens[accessToken] = jkt

	reply := map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    tokenType,
		"expires_in":    60,
	}
	if !p.omitIdToken {
		now := time.Now()
		std := jwt.Claims{
			Issuer:   p.Addr(),
			Subject:  p.subject,
			Audience: jwt.Audience{p.clientId},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(time.Minute)),
		}
		extra := map[string]interface{}{"nonce": code.nonce}
		if p.sessionId != "" {
			extra["sid"] = p.sessionId
		}
		if !p.omitAtHash {
			extra["at_hash"] = TestAccessTokenHash(accessToken)
		}
		for k, v := range p.customClaims {
			extra[k] = v
		}
		reply["id_token"] = TestSignJWT(p.t, p.key, ES256, TestKeyId, "JWT", std, extra)
	}
	p.writeJSON(w, http.StatusOK, reply)
}

func (p *TestProvider) handleUserInfo(w http.ResponseWriter, req *http.Request) {
	if p.disableUserInfo {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	scheme, accessToken, _ := strings.Cut(req.Header.Get("Authorization"), " ")
	jkt, ok := p.accessTokens[accessToken]
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if jkt != "" {
		if !strings.EqualFold(scheme, "DPoP") {
			w.Header().Set("WWW-Authenticate", `DPoP error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		got, _, err := p.verifyDPoPProof(req.Header.Get("DPoP"), req, accessToken)
		if err != nil || got != jkt {
			w.Header().Set("WWW-Authenticate", `DPoP error="invalid_dpop_proof"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	sub := p.subject
	if p.userInfoSubject != "" {
		sub = p.userInfoSubject
	}
	reply := map[string]interface{}{}
	for k, v := range p.userInfoClaims {
		reply[k] = v
	}
	reply["sub"] = sub
	p.writeJSON(w, http.StatusOK, reply)
}

// authenticateClient checks the client authentication of a form POST and
// parses its form.
func (p *TestProvider) authenticateClient(req *http.Request) bool {
	if err := req.ParseForm(); err != nil {
		return false
	}
	form := req.PostForm
	if user, pass, ok := req.BasicAuth(); ok {
		user, _ = url.QueryUnescape(user)
		pass, _ = url.QueryUnescape(pass)
		return user == p.clientId && p.clientSecret != "" &&
			subtle.ConstantTimeCompare([]byte(pass), []byte(p.clientSecret)) == 1
	}
	if form.Get("client_id") != p.clientId {
		return false
	}
	switch {
	case form.Get("client_secret") != "":
		return subtle.ConstantTimeCompare([]byte(form.Get("client_secret")), []byte(p.clientSecret)) == 1
	case form.Get("client_assertion") != "":
		if form.Get("client_assertion_type") != clientAssertionType {
			return false
		}
		tok, err := jwt.ParseSigned(form.Get("client_assertion"), testSignatureAlgorithms)
		if err != nil {
			return false
		}
		var claims jwt.Claims
		if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
			return false
		}
		return claims.Issuer == p.clientId && claims.Subject == p.clientId
	default:
		return p.clientSecret == ""
	}
}

// expandRequestObject replaces a "request" parameter with the parameters of
// the request object. Its signature isn't verified.
func (p *TestProvider) expandRequestObject(params url.Values) (url.Values, error) {
	raw := params.Get("request")
	if raw == "" {
		return params, nil
	}
	tok, err := jwt.ParseSigned(raw, testSignatureAlgorithms)
	if err != nil {
		return nil, err
	}
	if typ, _ := tok.Headers[0].ExtraHeaders[jose.HeaderType].(string); typ != RequestObjectType {
		return nil, fmt.Errorf("unexpected request object type %q", typ)
	}
	var claims map[string]interface{}
	if err := tok.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return nil, err
	}
	if claims["iss"] != p.clientId || claims["client_id"] != params.Get("client_id") {
		return nil, fmt.Errorf("request object issuer mismatch")
	}
	expanded := url.Values{}
	for k, v := range claims {
		if s, ok := v.(string); ok {
			expanded.Set(k, s)
		}
	}
	return expanded, nil
}

// verifyDPoPProof checks a DPoP proof (RFC 9449, section 4.3) and returns the
// thumbprint of its key and its nonce.
func (p *TestProvider) verifyDPoPProof(proof string, req *http.Request, accessToken string) (jkt, nonce string, err error) {
	if proof == "" {
		return "", "", fmt.Errorf("missing DPoP proof")
	}
	jws, err := jose.ParseSigned(proof, testSignatureAlgorithms)
	if err != nil {
		return "", "", err
	}
	h := jws.Signatures[0].Protected
	if typ, _ := h.ExtraHeaders[jose.HeaderType].(string); typ != "dpop+jwt" {
		return "", "", fmt.Errorf("unexpected typ %q", typ)
	}
	if h.JSONWebKey == nil || !h.JSONWebKey.IsPublic() {
		return "", "", fmt.Errorf("missing or private jwk")
	}
	payload, err := jws.Verify(h.JSONWebKey)
	if err != nil {
		return "", "", err
	}
	var claims struct {
		Jti   string `json:"jti"`
		Htm   string `json:"htm"`
		Htu   string `json:"htu"`
		Iat   int64  `json:"iat"`
		Nonce string `json:"nonce"`
		Ath   string `json:"ath"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", "", err
	}
	htu := p.Addr() + req.URL.Path
	switch {
	case claims.Jti == "":
		return "", "", fmt.Errorf("missing jti")
	case claims.Htm != req.Method:
		return "", "", fmt.Errorf("htm mismatch")
	case claims.Htu != htu:
		return "", "", fmt.Errorf("htu mismatch: %q", claims.Htu)
	case time.Since(time.Unix(claims.Iat, 0)).Abs() > time.Minute:
		return "", "", fmt.Errorf("iat out of range")
	case accessToken != "" && claims.Ath != oauth2S256(accessToken):
		return "", "", fmt.Errorf("ath mismatch")
	}
	thumb, err := h.JSONWebKey.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", "", err
	}
	return base64.RawURLEncoding.EncodeToString(thumb), claims.Nonce, nil
}

var testSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.HS256, jose.HS384, jose.HS512,
	jose.EdDSA,
}

func oauth2S256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	if port == 0 {
		return httptest.NewUnstartedServer(handler)
	}
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
