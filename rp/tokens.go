// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"context"
	"fmt"

	"github.com/tbroyer/oidc-servlets-sub000/internal/metrics"
	"github.com/tbroyer/oidc-servlets-sub000/oidc"
	"github.com/tbroyer/oidc-servlets-sub000/session"
	"golang.org/x/sync/errgroup"
)

// TokensHandler is called by Callback with the tokens of every successful
// authentication, once stored in the session.
type TokensHandler interface {
	TokensAcquired(ctx context.Context, s *session.Session, t *oidc.Token)
}

// TokenRevoker revokes tokens at the provider's revocation_endpoint
// (RFC 7009) in the background. Revocations never block nor fail the
// request they're started from: failures are logged and given to the
// WithRevocationErrorFunc hook, and revocations beyond the limit are
// dropped.
//
// It's given to NewLogout with WithTokenRevoker. As a TokensHandler, it
// revokes the tokens as soon as they're acquired, for applications only
// relying on the id_token and userinfo.
type TokenRevoker struct {
	provider *oidc.Provider
	group    errgroup.Group
	opts     options
}

var _ TokensHandler = (*TokenRevoker)(nil)

// NewTokenRevoker creates a revoker for the tokens of p. It fails with
// oidc.ErrEndpointNotSupported when p has no revocation_endpoint.
//
// Supported options: WithLogger, WithMetrics, WithRevocationLimit,
// WithRevocationTimeout, WithRevocationErrorFunc, WithRevokeRefreshToken
func NewTokenRevoker(p *oidc.Provider, opt ...Option) (*TokenRevoker, error) {
	const op = "rp.NewTokenRevoker"
	if p == nil {
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	}
	if p.Metadata().RevocationEndpoint == "" {
		return nil, fmt.Errorf("%s: revocation_endpoint: %w", op, oidc.ErrEndpointNotSupported)
	}
	opts := getOpts(opt...)
	switch {
	case opts.withRevocationLimit <= 0:
		return nil, fmt.Errorf("%s: revocation limit must be positive: %w", op, ErrInvalidParameter)
	case opts.withRevocationTimeout <= 0:
		return nil, fmt.Errorf("%s: revocation timeout must be positive: %w", op, ErrInvalidParameter)
	}
	tr := &TokenRevoker{provider: p, opts: opts}
	tr.group.SetLimit(opts.withRevocationLimit)
	return tr, nil
}

// Revoke starts revoking the access token of t, and its refresh token when
// WithRevokeRefreshToken is set. It reports false when there's nothing to
// revoke or the revocation was dropped.
func (tr *TokenRevoker) Revoke(t *oidc.Token) bool {
	const op = "rp.(TokenRevoker).Revoke"
	if t == nil || (t.AccessToken == "" && (!tr.opts.withRevokeRefreshToken || t.RefreshToken == "")) {
		return false
	}
	at, rt := string(t.AccessToken), ""
	if tr.opts.withRevokeRefreshToken {
		rt = string(t.RefreshToken)
	}
	ok := tr.group.TryGo(func() error {
		tr.revoke(at, oidc.AccessTokenHint)
		tr.revoke(rt, oidc.RefreshTokenHint)
		return nil
	})
	if !ok {
		tr.opts.withLogger.Warn("token revocation dropped", "op", op, "limit", tr.opts.withRevocationLimit)
		tr.opts.withMetrics.collectors().Revocation(metrics.OutcomeDropped)
	}
	return ok
}

// TokensAcquired implements TokensHandler.
func (tr *TokenRevoker) TokensAcquired(_ context.Context, _ *session.Session, t *oidc.Token) {
	tr.Revoke(t)
}

// Close waits for the running revocations.
func (tr *TokenRevoker) Close() error {
	return tr.group.Wait()
}

func (tr *TokenRevoker) revoke(token, hint string) {
	const op = "rp.(TokenRevoker).revoke"
	if token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), tr.opts.withRevocationTimeout)
	defer cancel()
	if err := tr.provider.Revoke(ctx, token, hint); err != nil {
		tr.opts.withLogger.Warn("token revocation failed", "op", op, "hint", hint, "error", err)
		tr.opts.withMetrics.collectors().Revocation(metrics.OutcomeIOError)
		if tr.opts.withRevocationErrorFunc != nil {
			tr.opts.withRevocationErrorFunc(fmt.Errorf("%s: %w", op, err))
		}
		return
	}
	tr.opts.withMetrics.collectors().Revocation(metrics.OutcomeSuccess)
}
