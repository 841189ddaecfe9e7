package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initScanMetrics() {
	r.ScansTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowscan_scans_total",
			Help: "Total number of two-cycle scans executed",
		},
		[]string{"mode", "status"},
	)

	r.ScanDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowscan_scan_duration_seconds",
			Help:    "Scan execution duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		},
		[]string{"mode"},
	)

	r.ScanMatches = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowscan_scan_matches",
			Help:    "Number of matches found per scan",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		},
	)

	r.ScanEdgesVisited = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowscan_scan_edges_visited",
			Help:    "Number of edges examined per scan",
			Buckets: []float64{10, 100, 1000, 10000, 100000, 1000000},
		},
	)

	r.SlowScans = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowscan_slow_scans_total",
			Help: "Total number of slow scans (>1s)",
		},
	)
}
