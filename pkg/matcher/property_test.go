package matcher

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
)

var propertyProtocols = []string{"tcp", "udp", "icmp"}

// randomGraph builds a deterministic pseudo-random multigraph from a
// seed: a small node set so reverse pairs actually occur, mixed
// protocols, durations spanning the ratio threshold.
func randomGraph(seed int64, edgeCount int) *flowgraph.Graph {
	r := rand.New(rand.NewSource(seed))
	g := flowgraph.NewGraph()

	nodes := make([]string, 6)
	for i := range nodes {
		nodes[i] = fmt.Sprintf("10.9.0.%d", i+1)
	}

	for i := 0; i < edgeCount; i++ {
		src := nodes[r.Intn(len(nodes))]
		dst := nodes[r.Intn(len(nodes))] // self-loops included on purpose
		g.AddEdge(flow.Edge{
			SourceID:  src,
			TargetID:  dst,
			StartTime: sec(int64(r.Intn(1000))),
			Duration:  r.Float64() * 40,
			Protocol:  propertyProtocols[r.Intn(len(propertyProtocols))],
		})
	}
	return g
}

// TestMatchInvariants verifies with property-based testing that every
// match a scan emits satisfies all constraint predicates, for arbitrary
// graphs.
func TestMatchInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20

	properties := gopter.NewProperties(parameters)

	// Property 1: every emitted match satisfies every predicate.
	properties.Property("all matches satisfy the constraint predicates", prop.ForAll(
		func(seed int64, ratio float64) bool {
			g := randomGraph(seed, 120)
			c := Constraints{
				DurationRatioMin: ratio,
				ProtoFirst:       "tcp",
				ProtoSecond:      "icmp",
				TimeOrder:        true,
			}

			result, err := FindTwoCycles(context.Background(), g, c)
			if err != nil {
				return false
			}

			for _, m := range result.Matches {
				if m.E1.SourceID != m.A || m.E1.TargetID != m.B {
					return false
				}
				if m.E2.SourceID != m.B || m.E2.TargetID != m.A {
					return false
				}
				if m.E1.ID == m.E2.ID {
					return false
				}
				if m.E1.Protocol != c.ProtoFirst || m.E2.Protocol != c.ProtoSecond {
					return false
				}
				if m.E1.StartTime > m.E2.StartTime {
					return false
				}
				if !(m.E1.Duration*c.DurationRatioMin < m.E2.Duration) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Float64Range(0.1, 20),
	))

	// Property 2: the parallel scan agrees with the sequential scan.
	properties.Property("parallel equals sequential", prop.ForAll(
		func(seed int64, workers int) bool {
			g := randomGraph(seed, 150)
			c := DefaultConstraints()

			seq, err := FindTwoCycles(context.Background(), g, c)
			if err != nil {
				return false
			}
			par, err := FindTwoCyclesParallel(context.Background(), g, c, workers)
			if err != nil {
				return false
			}

			seqKeys := matchKeys(seq.Matches)
			parKeys := matchKeys(par.Matches)
			if len(seqKeys) != len(parKeys) {
				return false
			}
			for i := range seqKeys {
				if seqKeys[i] != parKeys[i] {
					return false
				}
			}
			return seq.VisitedEdges == par.VisitedEdges
		},
		gen.Int64(),
		gen.IntRange(2, 12),
	))

	// Property 3: the visited counter is monotone in work done. Every
	// stored edge is examined as a candidate first leg, so visited can
	// never be less than the edge count.
	properties.Property("visited edges covers the full candidate scan", prop.ForAll(
		func(seed int64) bool {
			g := randomGraph(seed, 90)
			result, err := FindTwoCycles(context.Background(), g, DefaultConstraints())
			if err != nil {
				return false
			}
			return result.VisitedEdges >= g.Stats().EdgeCount
		},
		gen.Int64(),
	))

	// Property 4: tightening the ratio can only shrink the match set.
	properties.Property("larger ratio threshold never adds matches", prop.ForAll(
		func(seed int64) bool {
			g := randomGraph(seed, 120)

			loose := DefaultConstraints()
			loose.DurationRatioMin = 2
			tight := DefaultConstraints()
			tight.DurationRatioMin = 8

			looseResult, err := FindTwoCycles(context.Background(), g, loose)
			if err != nil {
				return false
			}
			tightResult, err := FindTwoCycles(context.Background(), g, tight)
			if err != nil {
				return false
			}

			looseSet := make(map[string]bool, len(looseResult.Matches))
			for _, m := range looseResult.Matches {
				looseSet[m.Key()] = true
			}
			for _, m := range tightResult.Matches {
				if !looseSet[m.Key()] {
					return false
				}
			}
			return len(tightResult.Matches) <= len(looseResult.Matches)
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
