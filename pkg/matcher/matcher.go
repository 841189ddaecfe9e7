// Package matcher implements the cyclic-flow pattern match: find every
// pair of directed edges forming a two-cycle A->B->A whose legs satisfy
// time-order, duration-ratio, and protocol constraints.
//
// The scan is a pure read-only computation. The graph's reverse-pair
// index is built during ingestion and frozen before scanning, so for
// each candidate first leg e1 = (A->B) the return-leg candidates are a
// single index lookup of the ordered pair (B, A).
package matcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
)

// ctxCheckInterval is how many candidate edges a scan processes between
// context cancellation checks.
const ctxCheckInterval = 512

// Result is the outcome of one scan.
type Result struct {
	// Matches holds every qualifying two-cycle. Order is unspecified.
	Matches []flow.Match

	// VisitedEdges counts every edge examined as a candidate first leg
	// plus every return-leg candidate probed through the pair index.
	// It reflects work done, not matches found.
	VisitedEdges uint64

	// SkippedEdges reports how many malformed records the graph dropped
	// during ingestion under the skip-and-count policy.
	SkippedEdges uint64

	// RunID identifies the scan when run through an Engine; zero
	// otherwise.
	RunID uuid.UUID

	Elapsed time.Duration
}

// Rows flattens the matches into the exportable table form.
func (r *Result) Rows() []flow.MatchRow {
	rows := make([]flow.MatchRow, len(r.Matches))
	for i := range r.Matches {
		rows[i] = r.Matches[i].Row()
	}
	return rows
}

// FindTwoCycles scans the graph sequentially for qualifying two-cycles.
// The graph is frozen on entry; the scan itself performs no writes.
// The freeze is one-way: any AddEdge after the first scan returns
// ErrGraphFrozen.
//
// Returns InvalidConstraint before any scan work when the constraint
// set is malformed, and ErrScanAborted when ctx is cancelled mid-scan.
func FindTwoCycles(ctx context.Context, g *flowgraph.Graph, c Constraints) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	g.Freeze()
	start := time.Now()

	edges := g.Edges()
	byID := make(map[uint64]*flow.Edge, len(edges))
	for _, e := range edges {
		byID[e.ID] = e
	}

	matches := make([]flow.Match, 0)
	var visited uint64

	for i, e1 := range edges {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, flow.NewError("FindTwoCycles").Constraint("scan").
					Cause(flow.ErrScanAborted).Context(err.Error()).Err()
			}
		}

		visited++
		if e1.Protocol != c.ProtoFirst {
			continue
		}

		for _, id2 := range g.EdgesBetween(e1.TargetID, e1.SourceID) {
			visited++
			e2 := byID[id2]
			if e2.ID == e1.ID {
				// A single edge cannot serve as both legs, even on a
				// self-loop pair.
				continue
			}
			if !c.admit(e1, e2) {
				continue
			}
			matches = append(matches, flow.Match{
				A:  e1.SourceID,
				E1: *e1,
				B:  e1.TargetID,
				E2: *e2,
			})
		}
	}

	return &Result{
		Matches:      matches,
		VisitedEdges: visited,
		SkippedEdges: g.Stats().MalformedSkipped,
		Elapsed:      time.Since(start),
	}, nil
}
