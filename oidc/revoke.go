// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Token type hints for Revoke (RFC 7009, section 2.1).
const (
	AccessTokenHint  = "access_token"
	RefreshTokenHint = "refresh_token"
)

// Revoke revokes token at the provider's revocation_endpoint
// (RFC 7009). tokenTypeHint is optional.
func (p *Provider) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	const op = "Provider.Revoke"
	if token == "" {
		return fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	if p.metadata.RevocationEndpoint == "" {
		return fmt.Errorf("%s: revocation_endpoint: %w", op, ErrEndpointNotSupported)
	}
	form := url.Values{"token": {token}}
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}
	resp, err := p.postForm(ctx, p.metadata.RevocationEndpoint, form)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrRevocationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w: %w", op, ErrRevocationFailed, readErrorResponse(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}
