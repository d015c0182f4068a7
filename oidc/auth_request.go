// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tbroyer/oidc-servlets-sub000/oidc/internal/strutils"
)

// AuthRequest is an OpenID Connect authentication request.
//
// Values lets the typed fields win over Extra, so an AuthRequestOption cannot
// override the redirect URI, state, nonce or PKCE challenge by setting them
// as extra parameters.
type AuthRequest struct {
	// Endpoint is the provider's authorization endpoint.
	Endpoint string

	ClientId            string
	ResponseType        string
	Scopes              []string
	RedirectURI         string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string

	// DPoPJKT is the JWK thumbprint of the DPoP key the code is bound to
	// (RFC 9449, section 10).
	DPoPJKT string

	// Extra holds any other parameter: prompt, login_hint, max_age, etc.
	Extra url.Values
}

// AuthRequestOption adjusts an AuthRequest before it's sent.
type AuthRequestOption func(*AuthRequest)

// Apply applies opts in order.
func (r *AuthRequest) Apply(opts ...AuthRequestOption) {
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
}

// Values returns the parameters of the request.
func (r *AuthRequest) Values() url.Values {
	v := url.Values{}
	for k, vs := range r.Extra {
		v[k] = append([]string(nil), vs...)
	}
	set := func(k, value string) {
		if value == "" {
			v.Del(k)
			return
		}
		v.Set(k, value)
	}
	set("client_id", r.ClientId)
	set("response_type", r.ResponseType)
	set("scope", strings.Join(strutils.RemoveDuplicatesStable(r.Scopes, false), " "))
	set("redirect_uri", r.RedirectURI)
	set("state", r.State)
	set("nonce", r.Nonce)
	set("code_challenge", r.CodeChallenge)
	set("code_challenge_method", r.CodeChallengeMethod)
	set("dpop_jkt", r.DPoPJKT)
	return v
}

// URL returns the authorization endpoint with the request's parameters in
// its query.
func (r *AuthRequest) URL() (string, error) {
	return endpointURL(r.Endpoint, r.Values())
}

func endpointURL(endpoint string, params url.Values) (string, error) {
	const op = "endpointURL"
	if endpoint == "" {
		return "", fmt.Errorf("%s: endpoint is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%s: invalid endpoint %q: %w", op, endpoint, err)
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Prompt sets the "prompt" parameter, e.g. Prompt("login", "consent").
func Prompt(prompts ...string) AuthRequestOption {
	return AuthParam("prompt", strings.Join(prompts, " "))
}

// LoginHint sets the "login_hint" parameter.
func LoginHint(hint string) AuthRequestOption {
	return AuthParam("login_hint", hint)
}

// MaxAge sets the "max_age" parameter, in whole seconds.
func MaxAge(d time.Duration) AuthRequestOption {
	return AuthParam("max_age", strconv.FormatInt(int64(d/time.Second), 10))
}

// ACRValues sets the "acr_values" parameter.
func ACRValues(values ...string) AuthRequestOption {
	return AuthParam("acr_values", strings.Join(values, " "))
}

// UILocales sets the "ui_locales" parameter.
func UILocales(locales ...string) AuthRequestOption {
	return AuthParam("ui_locales", strings.Join(locales, " "))
}

// ResponseMode sets the "response_mode" parameter, e.g. "form_post".
func ResponseMode(mode string) AuthRequestOption {
	return AuthParam("response_mode", mode)
}

// ExtraScopes adds scopes to the request.
func ExtraScopes(scopes ...string) AuthRequestOption {
	return func(r *AuthRequest) {
		r.Scopes = append(r.Scopes, scopes...)
	}
}

// AuthParam sets any parameter of the request.
func AuthParam(name, value string) AuthRequestOption {
	return func(r *AuthRequest) {
		if r.Extra == nil {
			r.Extra = url.Values{}
		}
		r.Extra.Set(name, value)
	}
}

// AuthRequestSender turns an AuthRequest into the URL the browser is
// redirected to. Senders may call the provider (pushed authorization
// requests), in which case an error means no redirect must be issued.
type AuthRequestSender interface {
	AuthURL(ctx context.Context, r *AuthRequest) (string, error)
}

// PlainSender encodes the request in the query of the authorization
// endpoint.
type PlainSender struct{}

var _ AuthRequestSender = PlainSender{}

// AuthURL implements AuthRequestSender.
func (PlainSender) AuthURL(_ context.Context, r *AuthRequest) (string, error) {
	return r.URL()
}
