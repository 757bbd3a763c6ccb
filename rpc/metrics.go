// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package rpc

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Mux's prometheus instrumentation. Nil-safe: a
// Mux built without a *Metrics records nothing.
type Metrics struct {
	PendingRequests prometheus.Gauge
	FramesSent      prometheus.Counter
	FramesReceived  prometheus.Counter
	TopicDropped    prometheus.Counter
	UnknownKey      prometheus.Counter
}

// NewMetrics registers a standard set of Mux gauges/counters under
// reg. Pass prometheus.NewRegistry() for test isolation, or a shared
// *prometheus.Registry for a long-lived CLI process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "postkit",
			Subsystem: "mux",
			Name:      "pending_requests",
			Help:      "Number of requests awaiting a response.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "postkit",
			Subsystem: "mux",
			Name:      "frames_sent_total",
			Help:      "Frames handed to the transport for sending.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "postkit",
			Subsystem: "mux",
			Name:      "frames_received_total",
			Help:      "Frames received from the transport.",
		}),
		TopicDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "postkit",
			Subsystem: "mux",
			Name:      "topic_frames_dropped_total",
			Help:      "Topic frames dropped because a subscriber's mailbox was full.",
		}),
		UnknownKey: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "postkit",
			Subsystem: "mux",
			Name:      "unknown_key_frames_total",
			Help:      "Frames discarded because their key matched no pending request or subscription.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PendingRequests, m.FramesSent, m.FramesReceived, m.TopicDropped, m.UnknownKey)
	}
	return m
}

func (m *Metrics) incPending(delta float64) {
	if m != nil {
		m.PendingRequests.Add(delta)
	}
}

func (m *Metrics) incFramesSent() {
	if m != nil {
		m.FramesSent.Inc()
	}
}

func (m *Metrics) incFramesReceived() {
	if m != nil {
		m.FramesReceived.Inc()
	}
}

func (m *Metrics) incTopicDropped() {
	if m != nil {
		m.TopicDropped.Inc()
	}
}

func (m *Metrics) incUnknownKey() {
	if m != nil {
		m.UnknownKey.Inc()
	}
}
