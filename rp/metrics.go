// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package rp

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tbroyer/oidc-servlets-sub000/internal/metrics"
	"github.com/tbroyer/oidc-servlets-sub000/session"
)

// Metrics records what the handlers do as Prometheus metrics:
//
//	oidc_rp_callbacks_total{outcome}
//	oidc_rp_backchannel_logouts_total{outcome}
//	oidc_rp_logouts_total
//	oidc_rp_token_revocations_total{outcome}
//	oidc_rp_sessions
//
// The outcomes are success, client_error, provider_error and io_error, plus
// dropped for revocations.
type Metrics struct {
	c *metrics.Collectors
}

// NewMetrics registers the collectors on reg, or on
// prometheus.DefaultRegisterer when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	const op = "rp.NewMetrics"
	c, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Metrics{c: c}, nil
}

// SessionListener returns a listener maintaining the oidc_rp_sessions
// gauge, to register on the session store.
func (m *Metrics) SessionListener() session.Listener {
	return session.ListenerFuncs{
		Created:   func(*session.Session) { m.collectors().SessionCreated() },
		Destroyed: func(*session.Session) { m.collectors().SessionDestroyed() },
	}
}

func (m *Metrics) collectors() *metrics.Collectors {
	if m == nil {
		return nil
	}
	return m.c
}

func outcome(k Kind) string {
	switch k {
	case KindClient:
		return metrics.OutcomeClientError
	case KindProvider:
		return metrics.OutcomeProviderError
	default:
		return metrics.OutcomeIOError
	}
}
