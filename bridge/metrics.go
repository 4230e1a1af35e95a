// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	subscriptions     *prometheus.GaugeVec
	failures          *prometheus.CounterVec
	events            *prometheus.CounterVec
	pendingSignatures prometheus.Gauge
	clients           prometheus.Gauge
	conversationScans prometheus.Counter
}

// newMetrics builds the bridge collectors and registers them with
// registerer. A nil registerer leaves them unregistered.
func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		subscriptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "msgbridge",
			Subsystem: "bridge",
			Name:      "subscriptions_active",
			Help:      "Live stream subscriptions by kind.",
		}, []string{"kind"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgbridge",
			Subsystem: "bridge",
			Name:      "subscription_failures_total",
			Help:      "Subscriptions ended by a stream or decode error.",
		}, []string{"kind"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgbridge",
			Subsystem: "bridge",
			Name:      "events_emitted_total",
			Help:      "Events handed to the emitter, by event name.",
		}, []string{"event"}),
		pendingSignatures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "msgbridge",
			Subsystem: "bridge",
			Name:      "signature_requests_pending",
			Help:      "Signing requests waiting for the host.",
		}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "msgbridge",
			Subsystem: "bridge",
			Name:      "clients",
			Help:      "Registered clients.",
		}),
		conversationScans: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "msgbridge",
			Subsystem: "bridge",
			Name:      "conversation_scans_total",
			Help:      "Conversation cache misses resolved by listing all conversations.",
		}),
	}
}
