package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's instrumentation. All collectors are
// registered on construction.
type Metrics struct {
	Requests  prometheus.Counter
	Outcomes  *prometheus.CounterVec
	Timeouts  prometheus.Counter
	Ambiguous prometheus.Counter
	Duration  prometheus.Histogram
	FuzzLevel prometheus.Histogram
}

// New registers the verification collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gnaf_verify",
			Name:      "requests_total",
			Help:      "Verification requests processed.",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gnaf_verify",
			Name:      "outcomes_total",
			Help:      "Verification outcomes by resolver state.",
		}, []string{"state"}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gnaf_verify",
			Name:      "timeouts_total",
			Help:      "Requests abandoned on the per-request budget.",
		}),
		Ambiguous: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gnaf_verify",
			Name:      "ambiguous_total",
			Help:      "Requests whose top candidates tied.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gnaf_verify",
			Name:      "request_duration_seconds",
			Help:      "Wall time per verification request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		FuzzLevel: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gnaf_verify",
			Name:      "fuzz_level",
			Help:      "Deepest fuzz level expanded per request.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	reg.MustRegister(m.Requests, m.Outcomes, m.Timeouts, m.Ambiguous, m.Duration, m.FuzzLevel)
	return m
}
