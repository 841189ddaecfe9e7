package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIngestMetrics() {
	r.IngestRowsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowscan_ingest_rows_total",
			Help: "Total number of flow records processed during ingest",
		},
		[]string{"status"},
	)

	r.IngestDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowscan_ingest_duration_seconds",
			Help:    "Ingest duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
		},
	)

	r.GraphNodesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowscan_graph_nodes",
			Help: "Number of nodes in the flow graph",
		},
	)

	r.GraphEdgesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowscan_graph_edges",
			Help: "Number of edges in the flow graph",
		},
	)

	r.GraphUniquePairs = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowscan_graph_unique_pairs",
			Help: "Number of distinct ordered endpoint pairs in the pair index",
		},
	)

	r.GraphSkippedTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowscan_graph_malformed_skipped",
			Help: "Number of malformed records skipped during ingest",
		},
	)
}
