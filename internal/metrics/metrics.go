// Package metrics exposes the Prometheus counters and gauges the
// registry updates as sessions connect, register, join channels, and
// get rejected by access policy.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the server's Prometheus collectors. Registering a
// nil *Metrics-typed field is never done; use New and register it
// against a prometheus.Registerer of the caller's choosing.
type Metrics struct {
	ConnectedSessions prometheus.Gauge
	RegisteredUsers   prometheus.Gauge
	Channels          prometheus.Gauge
	PeerLinks         prometheus.Gauge

	AccessRejections *prometheus.CounterVec
	SendqDrops       prometheus.Counter
}

// New constructs the collector set, unregistered.
func New() *Metrics {
	return &Metrics{
		ConnectedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clandestine_connected_sessions",
			Help: "Number of currently connected sessions.",
		}),
		RegisteredUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clandestine_registered_users",
			Help: "Number of sessions that completed registration.",
		}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clandestine_channels",
			Help: "Number of known channels.",
		}),
		PeerLinks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clandestine_peer_links",
			Help: "Number of established server-to-server links.",
		}),
		AccessRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clandestine_access_rejections_total",
			Help: "Connections rejected by access policy, by the check that rejected them.",
		}, []string{"kind"}),
		SendqDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clandestine_sendq_drops_total",
			Help: "Frames dropped because a session's bulk queue was full.",
		}),
	}
}

// MustRegister registers every collector against reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.ConnectedSessions,
		m.RegisteredUsers,
		m.Channels,
		m.PeerLinks,
		m.AccessRejections,
		m.SendqDrops,
	)
}
