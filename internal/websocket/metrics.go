package chatws

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	connections prometheus.Gauge
	delivered   prometheus.Counter
	dropped     prometheus.Counter
	relayErrors prometheus.Counter
}

// NewMetrics registers the hub collectors on reg. A nil reg keeps the
// collectors unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "curasync",
			Subsystem: "channel",
			Name:      "open_connections",
			Help:      "Realtime channel connections currently subscribed to a conversation.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curasync",
			Subsystem: "channel",
			Name:      "events_delivered_total",
			Help:      "Message events queued to subscribed connections.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curasync",
			Subsystem: "channel",
			Name:      "slow_clients_dropped_total",
			Help:      "Connections torn down because their send buffer was full.",
		}),
		relayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curasync",
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Cross-instance relay publish or decode failures.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.delivered, m.dropped, m.relayErrors)
	}
	return m
}
