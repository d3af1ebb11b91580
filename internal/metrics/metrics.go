package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "nowplaying"

// Metrics groups the collectors shared by the daemon components.
// Every component receives the same instance through fx.
type Metrics struct {
	Registry *prometheus.Registry

	SnapshotsAccepted *prometheus.CounterVec
	SnapshotsIgnored  *prometheus.CounterVec
	SourceFailures    *prometheus.CounterVec
	SourceHealth      *prometheus.GaugeVec
	Failovers         prometheus.Counter
	Generation        prometheus.Gauge

	PushDropped prometheus.Counter

	ArtworkLookups *prometheus.CounterVec
	ArtworkFetches *prometheus.CounterVec
	ArtworkEntries prometheus.Gauge

	FramesRendered prometheus.Counter
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SnapshotsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_accepted_total",
			Help:      "Snapshots accepted by the aggregator.",
		}, []string{"source"}),
		SnapshotsIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_ignored_total",
			Help:      "Snapshots ignored because a preferred source is active.",
		}, []string{"source"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Failures reported by source adapters.",
		}, []string{"source", "kind"}),
		SourceHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_health",
			Help:      "Health of each source (0 unknown, 1 healthy, 2 degraded, 3 failing).",
		}, []string{"source"}),
		Failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failovers_total",
			Help:      "Changes of the active source.",
		}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation",
			Help:      "Current aggregator generation.",
		}),
		PushDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_events_dropped_total",
			Help:      "Push events dropped because the queue was full.",
		}),
		ArtworkLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artwork_lookups_total",
			Help:      "Artwork cache lookups by outcome.",
		}, []string{"result"}),
		ArtworkFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artwork_fetches_total",
			Help:      "Completed artwork fetches by outcome.",
		}, []string{"result"}),
		ArtworkEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artwork_cache_entries",
			Help:      "Resident artwork cache entries.",
		}),
		FramesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Frames handed to the display.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SnapshotsAccepted,
		m.SnapshotsIgnored,
		m.SourceFailures,
		m.SourceHealth,
		m.Failovers,
		m.Generation,
		m.PushDropped,
		m.ArtworkLookups,
		m.ArtworkFetches,
		m.ArtworkEntries,
		m.FramesRendered,
	)

	return m
}
