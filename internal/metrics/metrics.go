// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Package metrics holds the Prometheus collectors of the relying-party HTTP
// layer. A nil *Collectors is valid and records nothing.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oidc_rp"

// Outcome label values.
const (
	OutcomeSuccess       = "success"
	OutcomeClientError   = "client_error"
	OutcomeProviderError = "provider_error"
	OutcomeIOError       = "io_error"
	OutcomeDropped       = "dropped"
)

// Collectors are the relying party's collectors, registered together.
type Collectors struct {
	callbacks          *prometheus.CounterVec
	backchannelLogouts *prometheus.CounterVec
	logouts            prometheus.Counter
	revocations        *prometheus.CounterVec
	sessions           prometheus.Gauge
}

// New creates the collectors and registers them on reg, or on
// prometheus.DefaultRegisterer when reg is nil.
func New(reg prometheus.Registerer) (*Collectors, error) {
	const op = "metrics.New"
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Authentication callbacks handled, by outcome.",
		}, []string{"outcome"}),
		backchannelLogouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backchannel_logouts_total",
			Help:      "Back-channel logout requests handled, by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Local sessions logged out, explicitly or after a back-channel logout.",
		}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_revocations_total",
			Help:      "Token revocations attempted, by outcome.",
		}, []string{"outcome"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Live sessions.",
		}),
	}
	for _, col := range []prometheus.Collector{c.callbacks, c.backchannelLogouts, c.logouts, c.revocations, c.sessions} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return c, nil
}

// Callback counts a callback.
func (c *Collectors) Callback(outcome string) {
	if c != nil {
		c.callbacks.WithLabelValues(outcome).Inc()
	}
}

// BackchannelLogout counts a back-channel logout request.
func (c *Collectors) BackchannelLogout(outcome string) {
	if c != nil {
		c.backchannelLogouts.WithLabelValues(outcome).Inc()
	}
}

// Logout counts a local logout.
func (c *Collectors) Logout() {
	if c != nil {
		c.logouts.Inc()
	}
}

// Revocation counts a token revocation.
func (c *Collectors) Revocation(outcome string) {
	if c != nil {
		c.revocations.WithLabelValues(outcome).Inc()
	}
}

// SessionCreated and SessionDestroyed track live sessions.
func (c *Collectors) SessionCreated() {
	if c != nil {
		c.sessions.Inc()
	}
}

// SessionDestroyed is the counterpart of SessionCreated.
func (c *Collectors) SessionDestroyed() {
	if c != nil {
		c.sessions.Dec()
	}
}
