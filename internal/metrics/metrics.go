// Package metrics exposes engine events as prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cluster "github.com/georgeryan15/globalpower"
)

var durationBuckets = []float64{0.1, 0.5, 1, 5, 10, 20, 50, 100, 200, 500, 1000}

// Metrics implements cluster.Observer.
type Metrics struct {
	FilterEdits       prometheus.Counter
	ActiveRecords     prometheus.Gauge
	TotalRecords      prometheus.Gauge
	ClusteredRecords  prometheus.Gauge
	StructuresBuilt   prometheus.Counter
	StructuresReused  prometheus.Counter
	BuildDurationMs   prometheus.Histogram
	SkippedRecords    prometheus.Counter
	QueryDurationMs   prometheus.Histogram
	RenderListNodes   prometheus.Histogram
	HTTPRequestsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var _ cluster.Observer = (*Metrics)(nil)

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		FilterEdits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globalpower_filter_edits_total",
			Help: "Total number of applied filter edits",
		}),
		ActiveRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "globalpower_active_records",
			Help: "Records passing the current filter",
		}),
		TotalRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "globalpower_records",
			Help: "Records in the loaded collection",
		}),
		ClusteredRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "globalpower_clustered_records",
			Help: "Records in the last built cluster structure",
		}),
		StructuresBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globalpower_structures_built_total",
			Help: "Total cluster structure builds",
		}),
		StructuresReused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globalpower_structures_reused_total",
			Help: "Total cluster structures served from the cache",
		}),
		BuildDurationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "globalpower_build_duration_ms",
			Help:    "Cluster structure build duration in milliseconds",
			Buckets: durationBuckets,
		}),
		SkippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globalpower_skipped_records_total",
			Help: "Total records skipped for unusable coordinates",
		}),
		QueryDurationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "globalpower_query_duration_ms",
			Help:    "Viewport query duration in milliseconds",
			Buckets: durationBuckets,
		}),
		RenderListNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "globalpower_render_list_nodes",
			Help:    "Nodes returned per viewport query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "globalpower_http_requests_total",
			Help: "Total HTTP requests by route and status",
		}, []string{"route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.FilterEdits,
		m.ActiveRecords,
		m.TotalRecords,
		m.ClusteredRecords,
		m.StructuresBuilt,
		m.StructuresReused,
		m.BuildDurationMs,
		m.SkippedRecords,
		m.QueryDurationMs,
		m.RenderListNodes,
		m.HTTPRequestsTotal,
	)
	return m
}

func (m *Metrics) FilterApplied(active, total int) {
	m.FilterEdits.Inc()
	m.ActiveRecords.Set(float64(active))
	m.TotalRecords.Set(float64(total))
}

func (m *Metrics) StructureBuilt(took time.Duration, records int) {
	m.StructuresBuilt.Inc()
	m.BuildDurationMs.Observe(ms(took))
	m.ClusteredRecords.Set(float64(records))
}

func (m *Metrics) StructureReused() { m.StructuresReused.Inc() }

func (m *Metrics) RecordsSkipped(n int) { m.SkippedRecords.Add(float64(n)) }

func (m *Metrics) Queried(took time.Duration, nodes int) {
	m.QueryDurationMs.Observe(ms(took))
	m.RenderListNodes.Observe(float64(nodes))
}

// Handler serves the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
