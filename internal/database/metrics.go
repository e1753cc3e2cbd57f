package database

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports query and pool counters. A nil *Metrics records nothing.
type Metrics struct {
	queries  *prometheus.CounterVec
	duration prometheus.Histogram
	slow     prometheus.Counter
	inUse    prometheus.Gauge
	acquire  prometheus.Histogram
}

// NewMetrics registers the database collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "securecore",
				Subsystem: "db",
				Name:      "queries_total",
				Help:      "Query attempts by result",
			},
			[]string{"result"},
		),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "securecore",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		slow: f.NewCounter(prometheus.CounterOpts{
			Namespace: "securecore",
			Subsystem: "db",
			Name:      "slow_queries_total",
			Help:      "Queries slower than the configured threshold",
		}),
		inUse: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "securecore",
			Subsystem: "db",
			Name:      "pool_in_use",
			Help:      "Connections currently checked out of the pool",
		}),
		acquire: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "securecore",
			Subsystem: "db",
			Name:      "acquire_duration_seconds",
			Help:      "Time spent waiting for a pooled connection",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) observeQuery(result string, d time.Duration, slow bool) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
	if slow {
		m.slow.Inc()
	}
}

func (m *Metrics) setInUse(n int64) {
	if m == nil {
		return
	}
	m.inUse.Set(float64(n))
}

func (m *Metrics) observeAcquire(d time.Duration) {
	if m == nil {
		return
	}
	m.acquire.Observe(d.Seconds())
}
