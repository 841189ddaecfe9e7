package matcher

import (
	"context"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
	"github.com/dd0wney/cluso-flowscan/pkg/metrics"
)

// Engine wraps the scan functions with logging, metrics, and run
// identifiers for long-lived callers (the API server, the CLI).
// The underlying scans stay pure; the engine owns the observability.
type Engine struct {
	graph   *flowgraph.Graph
	logger  logging.Logger
	metrics *metrics.Registry
	workers int
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Workers selects parallel scans when > 1. Zero means sequential.
	Workers int
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// NewEngine creates an engine over a graph. Nil logger and metrics fall
// back to the no-op logger and the default registry.
func NewEngine(g *flowgraph.Graph, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	return &Engine{
		graph:   g,
		logger:  logger.With(logging.Component("matcher")),
		metrics: reg,
		workers: cfg.Workers,
	}
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *flowgraph.Graph {
	return e.graph
}

// Workers returns the configured worker count.
func (e *Engine) Workers() int {
	return e.workers
}

// Scan runs one two-cycle scan with the engine's worker setting and
// records the outcome.
func (e *Engine) Scan(ctx context.Context, c Constraints) (*Result, error) {
	return e.ScanWithWorkers(ctx, c, e.workers)
}

// ScanWithWorkers runs one scan with an explicit worker count,
// overriding the engine default.
func (e *Engine) ScanWithWorkers(ctx context.Context, c Constraints, workers int) (*Result, error) {
	runID := uuid.New()
	mode := "sequential"
	if workers > 1 {
		mode = "parallel"
	}

	e.logger.Info("scan starting",
		logging.RunID(runID.String()),
		logging.String("mode", mode),
		logging.Proto(c.ProtoFirst+"->"+c.ProtoSecond),
		logging.Float64("duration_ratio_min", c.DurationRatioMin),
	)
	timer := logging.StartTimer(e.logger, "scan complete", logging.RunID(runID.String()))

	var result *Result
	var err error
	if workers > 1 {
		result, err = FindTwoCyclesParallel(ctx, e.graph, c, workers)
	} else {
		result, err = FindTwoCycles(ctx, e.graph, c)
	}

	if err != nil {
		e.metrics.RecordScan(mode, "error", 0, 0, 0)
		timer.EndError(err)
		return nil, err
	}

	result.RunID = runID
	e.metrics.RecordScan(mode, "ok", result.Elapsed, len(result.Matches), result.VisitedEdges)

	stats := e.graph.Stats()
	e.metrics.UpdateGraphStats(stats.NodeCount, stats.EdgeCount, stats.MalformedSkipped, stats.UniquePairs)

	timer.End()
	e.logger.Info("scan results",
		logging.RunID(runID.String()),
		logging.Matches(len(result.Matches)),
		logging.VisitedEdges(result.VisitedEdges),
		logging.Skipped(result.SkippedEdges),
	)

	return result, nil
}
