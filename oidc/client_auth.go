// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tbroyer/oidc-servlets-sub000/oidc/clientassertion"
)

const clientAssertionType = clientassertion.JWTTypeParam

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// postForm sends an authenticated form POST to one of the provider's
// endpoints (PAR, revocation), authenticating the client the way the token
// endpoint is.
func (p *Provider) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	const op = "Provider.postForm"
	form = cloneValues(form)
	basic := false
	switch p.config.ClientAuthMethod {
	case ClientSecretBasic:
		basic = true
	case ClientSecretPost:
		form.Set("client_id", p.config.ClientId)
		form.Set("client_secret", string(p.config.ClientSecret))
	case PrivateKeyJWT, ClientSecretJWT:
		assertion, err := p.config.ClientAssertion.Serialize()
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create client assertion: %w", op, err)
		}
		form.Set("client_id", p.config.ClientId)
		form.Set("client_assertion_type", clientAssertionType)
		form.Set("client_assertion", assertion)
	case NoClientAuth:
		form.Set("client_id", p.config.ClientId)
	default:
		return nil, fmt.Errorf("%s: %q: %w", op, p.config.ClientAuthMethod, ErrUnsupportedClientAuthentication)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if basic {
		// RFC 6749, section 2.3.1: form-encode before base64.
		req.SetBasicAuth(url.QueryEscape(p.config.ClientId), url.QueryEscape(string(p.config.ClientSecret)))
	}
	resp, err := p.httpClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// ErrorResponse is an OAuth error response body (RFC 6749, section 5.2).
type ErrorResponse struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}

// Error implements error.
func (e *ErrorResponse) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status %d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	return b.String()
}

// readErrorResponse builds an *ErrorResponse from a non successful response
// and closes its body.
func readErrorResponse(resp *http.Response) *ErrorResponse {
	defer resp.Body.Close()
	e := &ErrorResponse{StatusCode: resp.StatusCode}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil {
		_ = json.Unmarshal(b, e)
	}
	return e
}

func cloneValues(v url.Values) url.Values {
	c := make(url.Values, len(v))
	for k, vs := range v {
		c[k] = append([]string(nil), vs...)
	}
	return c
}
