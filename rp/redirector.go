// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tbroyer/oidc-servlets-sub000/dpop"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/session"
)

// Redirector starts authentication flows: it records a fresh
// session.AuthenticationState in the session and redirects the browser to
// the provider.
type Redirector struct {
	provider     *oidc.Provider
	sessions     session.Store
	callbackPath string
	nonces       dpop.NonceStore
	opts         options
	responder
}

// NewRedirector creates a Redirector for the provider. The callback handler
// is expected at callbackPath, an absolute path.
//
// Supported options: WithLogger, WithErrorResponse, WithBaseURL,
// WithAuthRequestSender, WithAuthRequestOptions, WithDPoP,
// WithDPoPNonceStore, WithBackchannelLogoutPath
func NewRedirector(p *oidc.Provider, sessions session.Store, callbackPath string, opt ...Option) (*Redirector, error) {
	const op = "rp.NewRedirector"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	case sessions == nil:
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	case !strings.HasPrefix(callbackPath, "/"):
		return nil, fmt.Errorf("%s: callback path %q is not absolute: %w", op, callbackPath, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	if bp := opts.withBackchannelPath; bp != "" && !strings.HasPrefix(bp, "/") {
		return nil, fmt.Errorf("%s: back-channel logout path %q is not absolute: %w", op, bp, ErrInvalidParameter)
	}
	nonces := opts.withDPoPNonceStore
	if nonces == nil {
		nonces = &dpop.PerURINonceStore{}
	}
	return &Redirector{
		provider:     p,
		sessions:     sessions,
		callbackPath: callbackPath,
		nonces:       nonces,
		opts:         opts,
		responder:    responder{opts: opts},
	}, nil
}

// CallbackPath returns the path of the callback handler.
func (rd *Redirector) CallbackPath() string {
	return rd.callbackPath
}

// BackchannelLogoutPath returns the path given with
// WithBackchannelLogoutPath, if any.
func (rd *Redirector) BackchannelLogoutPath() string {
	return rd.opts.withBackchannelPath
}

// Provider returns the provider the Redirector sends to.
func (rd *Redirector) Provider() *oidc.Provider {
	return rd.provider
}

// Sessions returns the session store.
func (rd *Redirector) Sessions() session.Store {
	return rd.sessions
}

// RedirectURI returns the redirect_uri for requests served at r's origin.
func (rd *Redirector) RedirectURI(r *http.Request) string {
	return rd.opts.origin(r) + rd.callbackPath
}

// Redirect starts an authentication flow for s, coming back to returnURI
// once authenticated. extra adjusts the authorization request, but can't
// change its redirect URI, state, nonce, PKCE challenge or dpop_jkt.
//
// No redirect is sent when an error is returned: the sender or the DPoP
// support failed, and the caller should answer with a 500.
func (rd *Redirector) Redirect(w http.ResponseWriter, r *http.Request, s *session.Session, returnURI string, extra ...oidc.AuthRequestOption) error {
	const op = "rp.(Redirector).Redirect"
	if s == nil {
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	state, err := oidc.NewId("")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	nonce, err := oidc.NewId("")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	verifier := oidc.NewCodeVerifier()

	req := rd.provider.NewAuthRequest()
	req.Apply(rd.opts.withAuthRequestOptions...)
	req.Apply(extra...)
	req.Endpoint = rd.provider.Metadata().AuthorizationEndpoint
	req.ClientId = rd.provider.Config().ClientId
	req.ResponseType = "code"
	req.RedirectURI = rd.RedirectURI(r)
	req.State = state
	req.Nonce = nonce
	req.CodeChallenge = verifier.Challenge()
	req.CodeChallengeMethod = oidc.S256
	req.DPoPJKT = ""
	if rd.opts.withDPoP != nil {
		key, err := rd.opts.withDPoP.Key(s)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		req.DPoPJKT = key.Thumbprint()
	}

	s.SetPendingAuth(&session.AuthenticationState{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		ReturnURI:    returnURI,
	})
	location, err := rd.opts.withSender.AuthURL(r.Context(), req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rd.opts.withLogger.Debug("redirecting to provider", "op", op, "return_uri", returnURI)
	sendRedirect(w, location)
	return nil
}

// RedirectRequest is Redirect with the session of r, created when needed.
func (rd *Redirector) RedirectRequest(w http.ResponseWriter, r *http.Request, returnURI string, extra ...oidc.AuthRequestOption) error {
	const op = "rp.(Redirector).RedirectRequest"
	s, err := session.GetOrNew(rd.sessions, w, r)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := rd.Redirect(w, r, s, returnURI, extra...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// serveRedirect is RedirectRequest answering errors itself.
func (rd *Redirector) serveRedirect(w http.ResponseWriter, r *http.Request, returnURI string) {
	const op = "rp.(Redirector).serveRedirect"
	if err := rd.RedirectRequest(w, r, returnURI); err != nil {
		rd.fail(w, r, op, KindIO, "Error initiating authentication", err)
	}
}

// httpClient returns the client for the token and userinfo requests of s.
func (rd *Redirector) httpClient(s *session.Session) (*http.Client, error) {
	const op = "rp.(Redirector).httpClient"
	if rd.opts.withDPoP == nil {
		return rd.provider.HttpClient(), nil
	}
	key, err := rd.opts.withDPoP.Key(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := dpop.NewClient(rd.provider.HttpClient(), key,
		dpop.WithNonceStore(rd.nonces), dpop.WithLogger(rd.opts.withLogger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}
