// Package metrics exposes Prometheus instruments for the proxy-geometry
// engine and the clipper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	modeLabel    = "mode"
	outcomeLabel = "outcome"
)

// Outcomes of one computation pass.
const (
	OutcomeCommitted   = "committed"
	OutcomeStale       = "stale"
	OutcomeInterrupted = "interrupted"
	OutcomeFailed      = "failed"
)

var (
	computations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proxygeom_computations_total",
		Help: "The number of proxy-geometry passes by outcome.",
	}, []string{
		modeLabel,
		outcomeLabel,
	})

	computationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proxygeom_computation_seconds",
		Help:    "The duration of committed proxy-geometry passes.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{modeLabel})

	proxyTriangles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "proxygeom_proxy_triangles",
		Help: "The number of triangles in the live proxy mesh.",
	}, []string{modeLabel})

	visibleBricks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "proxygeom_visible_bricks",
		Help: "The number of bricks classified as visible by the last pass.",
	}, []string{modeLabel})

	clipTriangles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proxygeom_clip_triangles_total",
		Help: "The number of cap triangles produced by clipping.",
	})
)

// InstrumentComputation counts a finished pass and, for committed passes,
// records its duration.
func InstrumentComputation(mode, outcome string, d time.Duration) {
	computations.
		With(prometheus.Labels{modeLabel: mode, outcomeLabel: outcome}).
		Inc()

	if outcome == OutcomeCommitted {
		computationSeconds.
			With(prometheus.Labels{modeLabel: mode}).
			Observe(d.Seconds())
	}
}

// InstrumentProxyMesh records the size of a committed mesh.
func InstrumentProxyMesh(mode string, triangles, bricks int) {
	proxyTriangles.
		With(prometheus.Labels{modeLabel: mode}).
		Set(float64(triangles))

	visibleBricks.
		With(prometheus.Labels{modeLabel: mode}).
		Set(float64(bricks))
}

// InstrumentClip counts cap triangles added by a clip operation.
func InstrumentClip(capTriangles int) {
	clipTriangles.Add(float64(capTriangles))
}
