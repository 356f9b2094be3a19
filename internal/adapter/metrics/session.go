package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics tracks the inference session registry.
type SessionMetrics struct {
	Hits              *prometheus.CounterVec
	ColdStarts        *prometheus.CounterVec
	ColdStartDuration *prometheus.HistogramVec
	Live              prometheus.Gauge
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "hits_total",
			Help:      "Session lookups served from the registry, by model.",
		}, []string{"model"}),
		ColdStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "cold_starts_total",
			Help:      "Session constructions, by model and result.",
		}, []string{"model", "result"}),
		ColdStartDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "cold_start_duration_seconds",
			Help:      "Time to fetch weights and build a session.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"model"}),
		Live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "live",
			Help:      "Number of sessions currently held by the registry.",
		}),
	}

	reg.MustRegister(m.Hits, m.ColdStarts, m.ColdStartDuration, m.Live)
	return m
}
