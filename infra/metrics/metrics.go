package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine collectors. They are registered on the
// registry passed to New rather than the global one so tests can build
// as many as they like.
type Metrics struct {
	EventsApplied   *prometheus.CounterVec
	FatalErrors     *prometheus.CounterVec
	Notices         *prometheus.CounterVec
	Fills           prometheus.Counter
	FilledVolume    prometheus.Counter
	Snapshots       prometheus.Counter
	SpreadSamples   prometheus.Counter
	PublishFailures *prometheus.CounterVec
	OutboxPending   prometheus.Gauge
	RestingOrders   *prometheus.GaugeVec
	ApplyLatency    prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobster_events_applied_total",
				Help: "Events applied to the book by kind",
			},
			[]string{"kind"},
		),
		FatalErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobster_fatal_errors_total",
				Help: "Events that halted the book by error kind",
			},
			[]string{"kind"},
		),
		Notices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobster_notices_total",
				Help: "Tolerated feed irregularities by kind",
			},
			[]string{"kind"},
		),
		Fills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobster_fills_total",
			Help: "Executions produced by the matcher",
		}),
		FilledVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobster_filled_volume_total",
			Help: "Quantity executed by the matcher",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobster_snapshots_total",
			Help: "Depth snapshots recorded",
		}),
		SpreadSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobster_spread_samples_total",
			Help: "Top of book samples recorded",
		}),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lobster_publish_failures_total",
				Help: "Downstream publication failures by sink",
			},
			[]string{"sink"},
		),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lobster_outbox_pending",
			Help: "Outbox entries seen pending by the last broadcaster pass",
		}),
		RestingOrders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lobster_resting_orders",
				Help: "Resting orders by side",
			},
			[]string{"side"},
		),
		ApplyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lobster_apply_latency_seconds",
			Help:    "Latency to journal and apply one event",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.EventsApplied, m.FatalErrors, m.Notices,
			m.Fills, m.FilledVolume, m.Snapshots, m.SpreadSamples,
			m.PublishFailures, m.OutboxPending, m.RestingOrders, m.ApplyLatency,
		)
	}
	return m
}
