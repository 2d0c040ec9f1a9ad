// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package fabric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Fabric's Prometheus collectors. A caller-supplied
// prometheus.Registerer is used — never the global default registry
// (spec §9: "no process-wide mutable state aside from the logger
// sink").
type Metrics struct {
	MessagesSent     prometheus.Counter
	MessagesFailed   prometheus.Counter
	FailedConnections prometheus.Counter
	PeersActive      prometheus.Gauge
}

// NewMetrics registers the Fabric's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedlearn_fabric_messages_sent_total",
			Help: "Messages successfully delivered by the Fabric.",
		}),
		MessagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedlearn_fabric_messages_failed_total",
			Help: "Messages dropped after exhausting retries.",
		}),
		FailedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedlearn_fabric_failed_connections_total",
			Help: "Send attempts that failed at the transport layer.",
		}),
		PeersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_fabric_peers_active",
			Help: "Number of peers currently in the active state.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.MessagesSent, m.MessagesFailed, m.FailedConnections, m.PeersActive)
	}
	return m
}
