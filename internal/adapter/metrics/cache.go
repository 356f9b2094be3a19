package metrics

import "github.com/prometheus/client_golang/prometheus"

// ResultCacheMetrics tracks the upscale result cache.
type ResultCacheMetrics struct {
	Hits    prometheus.Counter
	Misses  prometheus.Counter
	Skipped *prometheus.CounterVec
	Errors  *prometheus.CounterVec
}

func NewResultCacheMetrics(reg prometheus.Registerer) *ResultCacheMetrics {
	m := &ResultCacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "hits_total",
			Help:      "Upscale results served from cache.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "misses_total",
			Help:      "Upscale requests not found in cache.",
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "skipped_total",
			Help:      "Results not stored, by reason.",
		}, []string{"reason"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "result_cache",
			Name:      "errors_total",
			Help:      "Result cache failures, by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Skipped, m.Errors)
	return m
}
