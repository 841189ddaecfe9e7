package metrics

import (
	"time"
)

// RecordIngest records one completed ingest: rows loaded, rows skipped
// as malformed, and how long the whole load took.
func (r *Registry) RecordIngest(loaded, malformed uint64, duration time.Duration) {
	r.IngestRowsTotal.WithLabelValues("loaded").Add(float64(loaded))
	r.IngestRowsTotal.WithLabelValues("malformed").Add(float64(malformed))
	r.IngestDuration.Observe(duration.Seconds())
}

// UpdateGraphStats refreshes the graph shape gauges.
func (r *Registry) UpdateGraphStats(nodes, edges, skipped uint64, uniquePairs int) {
	r.GraphNodesTotal.Set(float64(nodes))
	r.GraphEdgesTotal.Set(float64(edges))
	r.GraphSkippedTotal.Set(float64(skipped))
	r.GraphUniquePairs.Set(float64(uniquePairs))
}

// RecordScan records a completed or failed scan. mode is "sequential"
// or "parallel"; status is "ok" or "error".
func (r *Registry) RecordScan(mode, status string, duration time.Duration, matches int, visited uint64) {
	r.ScansTotal.WithLabelValues(mode, status).Inc()
	r.ScanDuration.WithLabelValues(mode).Observe(duration.Seconds())

	if status == "ok" {
		r.ScanMatches.Observe(float64(matches))
		r.ScanEdgesVisited.Observe(float64(visited))
	}

	if duration > time.Second {
		r.SlowScans.Inc()
	}
}

// RecordHTTPRequest records an HTTP request with its duration.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
