package matcher

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
)

// FindTwoCyclesParallel runs the same scan as FindTwoCycles with the
// candidate first-leg edges partitioned into contiguous shards, one
// worker goroutine per shard. Workers only read the frozen graph and
// its pair index, so no coordination is needed beyond merging each
// shard's matches and adding up the visited counters at the end.
//
// workers <= 0 selects runtime.NumCPU(). The result set equals the
// sequential scan's for the same graph and constraints; only ordering
// may differ.
func FindTwoCyclesParallel(ctx context.Context, g *flowgraph.Graph, c Constraints, workers int) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers == 1 {
		return FindTwoCycles(ctx, g, c)
	}

	g.Freeze()
	start := time.Now()

	edges := g.Edges()
	byID := make(map[uint64]*flow.Edge, len(edges))
	for _, e := range edges {
		byID[e.ID] = e
	}

	if len(edges) < workers {
		workers = max(len(edges), 1)
	}
	chunkSize := (len(edges) + workers - 1) / workers

	shardMatches := make([][]flow.Match, workers)
	var visited uint64
	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	for w := 0; w < workers; w++ {
		begin := w * chunkSize
		end := begin + chunkSize
		if end > len(edges) {
			end = len(edges)
		}
		if begin >= end {
			continue
		}

		wg.Add(1)
		go func(slot int, shard []*flow.Edge) {
			defer wg.Done()

			local := make([]flow.Match, 0)
			var localVisited uint64

			for i, e1 := range shard {
				if i%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						select {
						case errChan <- err:
						default:
						}
						return
					}
				}

				localVisited++
				if e1.Protocol != c.ProtoFirst {
					continue
				}

				for _, id2 := range g.EdgesBetween(e1.TargetID, e1.SourceID) {
					localVisited++
					e2 := byID[id2]
					if e2.ID == e1.ID {
						continue
					}
					if !c.admit(e1, e2) {
						continue
					}
					local = append(local, flow.Match{
						A:  e1.SourceID,
						E1: *e1,
						B:  e1.TargetID,
						E2: *e2,
					})
				}
			}

			shardMatches[slot] = local
			atomic.AddUint64(&visited, localVisited)
		}(w, edges[begin:end])
	}

	wg.Wait()

	select {
	case err := <-errChan:
		return nil, flow.NewError("FindTwoCyclesParallel").Constraint("scan").
			Cause(flow.ErrScanAborted).Context(err.Error()).Err()
	default:
	}

	matches := make([]flow.Match, 0)
	for _, shard := range shardMatches {
		matches = append(matches, shard...)
	}

	return &Result{
		Matches:      matches,
		VisitedEdges: atomic.LoadUint64(&visited),
		SkippedEdges: g.Stats().MalformedSkipped,
		Elapsed:      time.Since(start),
	}, nil
}
