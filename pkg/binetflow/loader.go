package binetflow

import (
	"fmt"
	"io"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
	"github.com/dd0wney/cluso-flowscan/pkg/metrics"
)

// defaultProgressEvery controls how often the loader logs a progress
// line during long imports.
const defaultProgressEvery = 100000

// Loader pumps binetflow records into a flow graph.
type Loader struct {
	graph         *flowgraph.Graph
	logger        logging.Logger
	metrics       *metrics.Registry
	progressEvery uint64
}

// LoaderConfig tunes a Loader. Zero values fall back to sane defaults.
type LoaderConfig struct {
	Logger        logging.Logger
	Metrics       *metrics.Registry
	ProgressEvery int
}

// NewLoader builds a loader targeting g.
func NewLoader(g *flowgraph.Graph, cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	every := cfg.ProgressEvery
	if every <= 0 {
		every = defaultProgressEvery
	}
	return &Loader{
		graph:         g,
		logger:        logger.With(logging.Component("binetflow")),
		metrics:       reg,
		progressEvery: uint64(every),
	}
}

// LoadResult summarizes one import.
type LoadResult struct {
	Loaded    uint64        `json:"loaded"`
	Malformed uint64        `json:"malformed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Load streams every record from r into the graph. Malformed rows are
// skipped and counted, or abort the import, depending on the graph's
// malformed-edge policy. CSV-level read failures always abort.
func (l *Loader) Load(r *Reader) (*LoadResult, error) {
	start := time.Now()
	result := &LoadResult{}

	for {
		record, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		edge := record.ToEdge()
		if _, err := l.graph.AddEdge(edge); err != nil {
			if flow.IsMalformedEdge(err) && l.graph.Policy() == flowgraph.SkipMalformed {
				result.Malformed++
				l.logger.Debug("skipping malformed row",
					logging.Int("row", r.Row()),
					logging.Error(err))
				continue
			}
			return nil, flow.NewError("Load").
				Context(fmt.Sprintf("row %d", r.Row())).Cause(err).Err()
		}
		result.Loaded++

		if result.Loaded%l.progressEvery == 0 {
			l.logger.Info("import progress",
				logging.Rows(int(result.Loaded)),
				logging.Skipped(result.Malformed))
		}
	}

	result.Elapsed = time.Since(start)

	l.metrics.RecordIngest(result.Loaded, result.Malformed, result.Elapsed)
	stats := l.graph.Stats()
	l.metrics.UpdateGraphStats(stats.NodeCount, stats.EdgeCount, stats.MalformedSkipped, stats.UniquePairs)

	l.logger.Info("import complete",
		logging.Rows(int(result.Loaded)),
		logging.Skipped(result.Malformed),
		logging.Uint64("nodes", stats.NodeCount),
		logging.Latency(result.Elapsed))

	return result, nil
}

// LoadFile imports path into the graph.
func (l *Loader) LoadFile(path string) (*LoadResult, error) {
	r, closeFn, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	l.logger.Info("importing flows", logging.Path(path))
	return l.Load(r)
}

// LoadGraph builds a fresh graph from a capture file using the given
// malformed-edge policy.
func LoadGraph(path string, policy flowgraph.MalformedPolicy, cfg LoaderConfig) (*flowgraph.Graph, *LoadResult, error) {
	g := flowgraph.NewGraphWithOptions(flowgraph.Options{Malformed: policy})
	result, err := NewLoader(g, cfg).LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return g, result, nil
}
