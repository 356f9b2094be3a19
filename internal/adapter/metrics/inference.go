package metrics

import "github.com/prometheus/client_golang/prometheus"

// InferenceMetrics tracks upscale executions.
type InferenceMetrics struct {
	Duration    *prometheus.HistogramVec
	InputPixels prometheus.Histogram
	Requests    *prometheus.CounterVec
}

func NewInferenceMetrics(reg prometheus.Registerer) *InferenceMetrics {
	m := &InferenceMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Time spent running a session over one image.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"model", "scale"}),
		InputPixels: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "input_pixels",
			Help:      "Pixel count of images submitted for upscaling.",
			Buckets:   prometheus.ExponentialBuckets(4096, 4, 9),
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Upscale requests, by outcome.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Duration, m.InputPixels, m.Requests)
	return m
}
