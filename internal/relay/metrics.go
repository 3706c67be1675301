package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the relay counters exposed on /metrics.
type Metrics struct {
	Rooms    prometheus.Gauge
	Members  prometheus.Gauge
	Relayed  prometheus.Counter
	Rejected *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "warpcall",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		Members: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "warpcall",
			Subsystem: "relay",
			Name:      "members",
			Help:      "Members currently joined to a room.",
		}),
		Relayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "warpcall",
			Subsystem: "relay",
			Name:      "peer_messages_total",
			Help:      "Peer messages relayed between members.",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warpcall",
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Requests refused by the relay, by request type.",
		}, []string{"op"}),
	}
}
