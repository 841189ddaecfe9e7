// Package flowgraph is the in-memory directed multigraph of flow records.
// Nodes are host addresses, created implicitly when an edge references
// them; edges are flow.Edge values indexed by ordered endpoint pair.
//
// The graph is built once during ingestion and then frozen. After Freeze
// no mutation is accepted and the graph is safe for unlimited concurrent
// readers.
package flowgraph

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
)

// MalformedPolicy decides what happens when AddEdge sees a structurally
// invalid record.
type MalformedPolicy int

const (
	// SkipMalformed drops the record and increments the skipped counter.
	// This is the default.
	SkipMalformed MalformedPolicy = iota
	// AbortOnMalformed refuses the record; callers treat the returned
	// error as fatal for the whole ingest.
	AbortOnMalformed
)

// String returns the policy name as used in configuration files.
func (p MalformedPolicy) String() string {
	switch p {
	case SkipMalformed:
		return "skip"
	case AbortOnMalformed:
		return "abort"
	default:
		return "unknown"
	}
}

// ParseMalformedPolicy converts a config string to a policy.
// Unknown strings map to SkipMalformed.
func ParseMalformedPolicy(s string) MalformedPolicy {
	if s == "abort" {
		return AbortOnMalformed
	}
	return SkipMalformed
}

// Options configures a Graph.
type Options struct {
	Malformed MalformedPolicy
}

// Stats is a point-in-time summary of graph contents.
type Stats struct {
	NodeCount        uint64 `json:"node_count"`
	EdgeCount        uint64 `json:"edge_count"`
	MalformedSkipped uint64 `json:"malformed_skipped"`
	UniquePairs      int    `json:"unique_pairs"`
}

// Graph is the in-memory flow multigraph.
type Graph struct {
	mu sync.RWMutex

	edges   map[uint64]*flow.Edge
	edgeIDs []uint64 // ascending insertion order
	nodes   map[string]struct{}
	pairs   *PairIndex

	nextEdgeID uint64
	frozen     bool
	policy     MalformedPolicy

	// Counters are atomic so Stats never blocks behind a writer.
	nodeCount        uint64
	edgeCount        uint64
	malformedSkipped uint64
}

// NewGraph creates an empty graph with the default skip-and-count policy.
func NewGraph() *Graph {
	return NewGraphWithOptions(Options{Malformed: SkipMalformed})
}

// NewGraphWithOptions creates an empty graph with explicit options.
func NewGraphWithOptions(opts Options) *Graph {
	return &Graph{
		edges:      make(map[uint64]*flow.Edge),
		edgeIDs:    make([]uint64, 0),
		nodes:      make(map[string]struct{}),
		pairs:      NewPairIndex(),
		nextEdgeID: 1,
		policy:     opts.Malformed,
	}
}

// Policy returns the graph's malformed-edge policy.
func (g *Graph) Policy() MalformedPolicy {
	return g.policy
}

// AddEdge validates and stores one flow record, creating its endpoint
// nodes as needed and indexing it by ordered pair. The edge's ID field is
// assigned by the graph; any caller-provided ID is ignored. The stored
// copy is returned.
//
// A malformed record is never stored. Under SkipMalformed the skipped
// counter is incremented and the validation error is returned so callers
// can log it; under AbortOnMalformed the same error is returned and the
// caller is expected to stop ingesting.
func (g *Graph) AddEdge(e flow.Edge) (*flow.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return nil, flow.NewError("AddEdge").Edge(e.ID).Cause(flow.ErrGraphFrozen).Err()
	}

	if err := e.Valid(); err != nil {
		if g.policy == SkipMalformed {
			atomic.AddUint64(&g.malformedSkipped, 1)
		}
		return nil, err
	}

	id := g.nextEdgeID
	g.nextEdgeID++

	stored := e.Clone()
	stored.ID = id

	g.edges[id] = stored
	g.edgeIDs = append(g.edgeIDs, id)

	for _, key := range [2]string{stored.SourceID, stored.TargetID} {
		if _, exists := g.nodes[key]; !exists {
			g.nodes[key] = struct{}{}
			atomic.AddUint64(&g.nodeCount, 1)
		}
	}

	g.pairs.Insert(stored.SourceID, stored.TargetID, id)
	atomic.AddUint64(&g.edgeCount, 1)

	return stored.Clone(), nil
}

// Freeze marks the graph immutable. Further AddEdge calls fail with
// ErrGraphFrozen. Idempotent.
func (g *Graph) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frozen = true
}

// Frozen reports whether the graph has been frozen.
func (g *Graph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// Edge returns a copy of the edge with the given ID.
func (g *Graph) Edge(id uint64) (*flow.Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, exists := g.edges[id]
	if !exists {
		return nil, flow.NewError("Edge").Edge(id).Cause(flow.ErrEdgeNotFound).Err()
	}
	return e.Clone(), nil
}

// Edges returns copies of all edges in ascending ID order.
func (g *Graph) Edges() []*flow.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*flow.Edge, 0, len(g.edgeIDs))
	for _, id := range g.edgeIDs {
		result = append(result, g.edges[id].Clone())
	}
	return result
}

// EdgeIDs returns all edge IDs in ascending insertion order.
func (g *Graph) EdgeIDs() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]uint64, len(g.edgeIDs))
	copy(result, g.edgeIDs)
	return result
}

// EdgesBetween returns the IDs of edges going source -> target.
func (g *Graph) EdgesBetween(source, target string) []uint64 {
	return g.pairs.Lookup(source, target)
}

// HasNode reports whether a node key exists in the graph.
func (g *Graph) HasNode(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, exists := g.nodes[key]
	return exists
}

// Nodes returns all node keys in lexical order.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]string, 0, len(g.nodes))
	for key := range g.nodes {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

// PairStatistics returns shape statistics for the pair index.
func (g *Graph) PairStatistics() PairIndexStatistics {
	return g.pairs.Statistics()
}

// Stats returns current graph counters.
func (g *Graph) Stats() Stats {
	return Stats{
		NodeCount:        atomic.LoadUint64(&g.nodeCount),
		EdgeCount:        atomic.LoadUint64(&g.edgeCount),
		MalformedSkipped: atomic.LoadUint64(&g.malformedSkipped),
		UniquePairs:      g.pairs.Statistics().UniquePairs,
	}
}
