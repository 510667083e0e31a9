// Package metrics exports selection and pipeline counters in Prometheus format.
package metrics

import (
	"time"

	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adselect"

// Metrics owns a private registry so tests and multiple instances never collide
// on the global one.
type Metrics struct {
	registry *prometheus.Registry

	selections        *prometheus.CounterVec
	selectionDuration prometheus.Histogram
	impressions       *prometheus.CounterVec
	rebuilds          *prometheus.CounterVec
	rebuildDuration   prometheus.Histogram
	snapshotVersion   prometheus.Gauge
	snapshotBanners   prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Banner selections by result (served, empty, invalid).",
		}, []string{"result"}),
		selectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_duration_seconds",
			Help:      "Time to rank banners for one request.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		impressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "impressions_total",
			Help:      "Impressions folded into the live snapshot, by result.",
		}, []string{"result"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuilds_total",
			Help:      "Snapshot rebuilds by trigger and result.",
		}, []string{"trigger", "result"}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rebuild_duration_seconds",
			Help:      "Time to rebuild and publish a snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		snapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_version",
			Help:      "Version of the published snapshot.",
		}),
		snapshotBanners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_banners",
			Help:      "Banners indexed by the published snapshot.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.selections,
		m.selectionDuration,
		m.impressions,
		m.rebuilds,
		m.rebuildDuration,
		m.snapshotVersion,
		m.snapshotBanners,
	)
	return m
}

// Registry exposes the underlying registry as a gatherer.
func (m *Metrics) Registry() prometheus.Gatherer { return m.registry }

// ObserveSelection implements decision.SelectionObserver.
func (m *Metrics) ObserveSelection(result string, elapsed time.Duration) {
	m.selections.WithLabelValues(result).Inc()
	m.selectionDuration.Observe(elapsed.Seconds())
}

// ObserveDelta implements aggregation.Observer.
func (m *Metrics) ObserveDelta(res stats.DeltaResult) {
	result := "applied"
	if !res.Applied {
		result = res.Reason
		if result == "" {
			result = "skipped"
		}
	}
	m.impressions.WithLabelValues(result).Inc()
}

// ObserveRebuild implements aggregation.Observer. snap is nil when the rebuild failed.
func (m *Metrics) ObserveRebuild(trigger string, err error, elapsed time.Duration, snap *stats.Snapshot) {
	m.rebuildDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.rebuilds.WithLabelValues(trigger, "error").Inc()
		return
	}
	m.rebuilds.WithLabelValues(trigger, "ok").Inc()
	if snap != nil {
		m.snapshotVersion.Set(float64(snap.Version()))
		m.snapshotBanners.Set(float64(snap.BannerCount()))
	}
}

// RegisterRoutes exposes GET /metrics.
func (m *Metrics) RegisterRoutes(r gin.IRouter) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})))
}
