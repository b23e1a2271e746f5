package swarm

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Swarm Runner's prometheus surface: how many queries
// are currently outstanding, and how commands resolved by kind and
// outcome.
type Metrics struct {
	queriesInflight prometheus.Gauge
	commandsTotal   *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		queriesInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_queries_inflight",
			Help: "Number of Swarm Runner commands currently being serviced.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_commands_total",
			Help: "Swarm Runner commands completed, by command and outcome.",
		}, []string{"command", "outcome"}),
	}
}

// Collectors exposes this runner's prometheus metrics for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.queriesInflight, m.commandsTotal}
}

func (m *Metrics) observe(command, outcome string) {
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
}
