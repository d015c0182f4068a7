// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tbroyer/oidc-servlets-sub000/internal/metrics"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/session"
	"golang.org/x/oauth2"
)

// AuthenticationListener is called by Callback once a session is
// authenticated, after its id has been rotated and its session.Info stored.
// previous is the info the session had before, if any.
type AuthenticationListener interface {
	Authenticated(r *http.Request, s *session.Session, previous *session.Info) error
}

// Callback handles the provider's authentication responses at the
// redirector's callback path (GET, or POST for the form_post response
// mode). It completes the flow started by the Redirector: it exchanges the
// code, verifies the id_token, fetches user info and stores them all in the
// session before redirecting to where the flow was started from.
//
// The pending session.AuthenticationState is consumed whatever the outcome,
// so a response can't be replayed.
type Callback struct {
	rd   *Redirector
	opts options
	responder
}

var _ http.Handler = (*Callback)(nil)

// NewCallback creates the handler completing the flows rd starts.
//
// Supported options: WithLogger, WithErrorResponse, WithMetrics,
// WithPrincipalFactory, WithTokensHandler, WithAuthenticationListener
func NewCallback(rd *Redirector, opt ...Option) (*Callback, error) {
	const op = "rp.NewCallback"
	if rd == nil {
		return nil, fmt.Errorf("%s: redirector is nil: %w", op, ErrNilParameter)
	}
	opts := getOpts(opt...)
	return &Callback{rd: rd, opts: opts, responder: responder{opts: opts}}, nil
}

// ServeHTTP implements http.Handler.
func (c *Callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e := c.handle(w, r); e != nil {
		c.opts.withMetrics.collectors().Callback(outcome(e.Kind))
		return
	}
	c.opts.withMetrics.collectors().Callback(metrics.OutcomeSuccess)
}

func (c *Callback) handle(w http.ResponseWriter, r *http.Request) *Error {
	const op = "rp.(Callback).ServeHTTP"
	if !isNavigation(r) {
		return c.fail(w, r, op, KindClient, "Not a navigation request", ErrNotNavigation)
	}
	var params url.Values
	switch r.Method {
	case http.MethodGet:
		params = r.URL.Query()
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			return c.fail(w, r, op, KindClient, "Error parsing parameters", err)
		}
		params = r.PostForm
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return &Error{Kind: KindClient, Message: "Method not allowed"}
	}
	code, errorCode := params.Get("code"), params.Get("error")
	if code == "" && errorCode == "" {
		return c.fail(w, r, op, KindClient, "Error parsing parameters",
			fmt.Errorf("%s: neither code nor error: %w", op, ErrInvalidParameter))
	}

	s, err := c.rd.sessions.Get(r)
	if err != nil {
		return c.fail(w, r, op, KindIO, "Error loading session", err)
	}
	var pending *session.AuthenticationState
	if s != nil {
		pending = s.TakePendingAuth()
	}
	if pending == nil {
		return c.fail(w, r, op, KindClient, "Missing saved state from authorization request initiation", ErrMissingState)
	}
	if subtle.ConstantTimeCompare([]byte(params.Get("state")), []byte(pending.State)) != 1 {
		return c.fail(w, r, op, KindClient, "State mismatch", ErrStateMismatch)
	}
	md := c.rd.provider.Metadata()
	if iss := params.Get("iss"); iss != md.Issuer && (iss != "" || md.AuthorizationResponseIssParameter) {
		return c.fail(w, r, op, KindClient, "Issuer mismatch", fmt.Errorf("%w: %q", ErrIssuerMismatch, iss))
	}
	if errorCode != "" {
		return c.fail(w, r, op, KindClient, errorCode,
			fmt.Errorf("%w: %s: %s", ErrProviderError, errorCode, params.Get("error_description")))
	}

	client, err := c.rd.httpClient(s)
	if err != nil {
		return c.fail(w, r, op, KindIO, "Error in token request", err)
	}
	ctx := oidc.HttpClientContext(r.Context(), client)
	p := c.rd.provider

	tk, err := p.Exchange(ctx, code, c.rd.RedirectURI(r), pending.CodeVerifier)
	if err != nil {
		var re *oauth2.RetrieveError
		switch {
		case errors.As(err, &re) && re.ErrorCode != "":
			return c.fail(w, r, op, KindProvider, "Token request returned error: "+re.ErrorCode, err)
		case errors.Is(err, oidc.ErrMissingIdToken):
			return c.fail(w, r, op, KindProvider, "Error in token request", err)
		default:
			return c.fail(w, r, op, KindIO, "Error in token request", err)
		}
	}

	claims, err := p.VerifyIdToken(ctx, tk.IdToken, pending.Nonce, oidc.WithAccessToken(tk.AccessToken))
	if err != nil {
		return c.fail(w, r, op, KindProvider, "Error validating ID Token", err)
	}

	userInfo, err := p.UserInfo(ctx, tk, oidc.WithExpectedSubject(claims.Subject))
	if err != nil {
		if errors.Is(err, oidc.ErrInvalidSubject) {
			return c.fail(w, r, op, KindProvider, "User Info subject mismatch", err)
		}
		return c.fail(w, r, op, KindIO, "Error in User Info request", err)
	}

	// The id changes before the info is stored, so listeners renewing
	// bindings on rotation only see the previous info.
	if err := c.rd.sessions.Rotate(w, r, s); err != nil {
		return c.fail(w, r, op, KindIO, "Error establishing session", err)
	}
	previous := s.Info()
	info := &session.Info{Token: tk, IdTokenClaims: claims, UserInfo: userInfo}
	s.SetInfo(info)
	if c.opts.withTokensHandler != nil {
		c.opts.withTokensHandler.TokensAcquired(r.Context(), s, tk)
	}
	c.opts.withPrincipalFactory.UserAuthenticated(info, s)
	for _, l := range c.opts.withAuthListeners {
		if err := l.Authenticated(r, s, previous); err != nil {
			// The session must not stay authenticated past a failed callback.
			if ierr := c.rd.sessions.Invalidate(w, r, s); ierr != nil {
				s.TakeInfo()
				err = fmt.Errorf("%w: %w", err, ierr)
			}
			return c.fail(w, r, op, KindIO, "Error establishing session", err)
		}
	}

	c.opts.withLogger.Debug("user authenticated", "op", op, "sub", claims.Subject, "sid", claims.SessionId)
	returnURI := pending.ReturnURI
	if returnURI == "" {
		returnURI = "/"
	}
	sendRedirect(w, returnURI)
	return nil
}
