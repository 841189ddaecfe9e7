package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
)

func main() {
	hosts := flag.Int("hosts", 2000, "Number of beaconing source hosts")
	noise := flag.Int("noise", 10000, "Number of non-matching noise flows")
	workers := flag.Int("workers", 0, "Worker goroutines for the parallel scan (0 = CPU count)")
	seed := flag.Int64("seed", 42, "Random seed for the synthetic capture")
	flag.Parse()

	if *workers == 0 {
		*workers = runtime.NumCPU()
	}

	fmt.Printf("🔬 Cluso FlowScan - Two-Cycle Matcher Benchmark\n")
	fmt.Printf("===============================================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Beacon Hosts: %d\n", *hosts)
	fmt.Printf("  Noise Flows:  %d\n", *noise)
	fmt.Printf("  CPU Cores:    %d\n", runtime.NumCPU())
	fmt.Printf("  Workers:      %d\n\n", *workers)

	// Build synthetic capture
	fmt.Printf("📊 Building synthetic flow graph...\n")
	start := time.Now()
	graph := buildCapture(*hosts, *noise, *seed)
	stats := graph.Stats()
	fmt.Printf("   %d nodes, %d edges in %v\n\n", stats.NodeCount, stats.EdgeCount, time.Since(start))

	constraints := matcher.DefaultConstraints()
	ctx := context.Background()

	// Benchmark 1: Sequential scan
	fmt.Printf("🐌 Benchmark 1: Sequential scan\n")
	start = time.Now()
	seq, err := matcher.FindTwoCycles(ctx, graph, constraints)
	if err != nil {
		log.Fatalf("Sequential scan failed: %v", err)
	}
	seqDur := time.Since(start)
	fmt.Printf("✅ Completed in %v\n", seqDur)
	fmt.Printf("   Matches:       %d\n", len(seq.Matches))
	fmt.Printf("   Edges Visited: %d\n", seq.VisitedEdges)
	fmt.Printf("   Throughput:    %.0f edges/sec\n\n", float64(seq.VisitedEdges)/seqDur.Seconds())

	// Benchmark 2+: Parallel scan at increasing worker counts
	bench := 2
	for _, w := range workerSteps(*workers) {
		fmt.Printf("⚡ Benchmark %d: Parallel scan (%d workers)\n", bench, w)
		start = time.Now()
		par, err := matcher.FindTwoCyclesParallel(ctx, graph, constraints, w)
		if err != nil {
			log.Fatalf("Parallel scan failed: %v", err)
		}
		parDur := time.Since(start)
		fmt.Printf("✅ Completed in %v\n", parDur)
		fmt.Printf("   Matches:       %d\n", len(par.Matches))
		fmt.Printf("   Throughput:    %.0f edges/sec\n", float64(par.VisitedEdges)/parDur.Seconds())
		fmt.Printf("   Speedup:       %.2fx\n\n", seqDur.Seconds()/parDur.Seconds())

		if len(par.Matches) != len(seq.Matches) {
			log.Fatalf("Result mismatch: sequential found %d matches, %d workers found %d",
				len(seq.Matches), w, len(par.Matches))
		}
		bench++
	}

	fmt.Printf("🎉 All scans agree on %d matches\n", len(seq.Matches))
}

// workerSteps picks the worker counts to benchmark: 2, 4, then the
// requested maximum, without duplicates.
func workerSteps(max int) []int {
	steps := []int{}
	for _, w := range []int{2, 4, max} {
		if w > max {
			continue
		}
		if len(steps) > 0 && steps[len(steps)-1] == w {
			continue
		}
		steps = append(steps, w)
	}
	return steps
}

// buildCapture produces a graph where every other host has a qualifying
// tcp probe answered by a long icmp return flow, mixed with udp noise
// between random host pairs.
func buildCapture(hosts, noise int, seed int64) *flowgraph.Graph {
	rng := rand.New(rand.NewSource(seed))
	g := flowgraph.NewGraph()
	sink := "147.32.80.9"

	for i := 0; i < hosts; i++ {
		src := fmt.Sprintf("10.%d.%d.%d", i/65536, (i/256)%256, i%256)
		base := int64(i) * 1_000_000

		g.AddEdge(flow.Edge{
			SourceID:  src,
			TargetID:  sink,
			StartTime: base,
			Duration:  0.2 + rng.Float64(),
			Protocol:  "tcp",
		})
		if i%2 == 0 {
			g.AddEdge(flow.Edge{
				SourceID:  sink,
				TargetID:  src,
				StartTime: base + 5_000_000,
				Duration:  30 + rng.Float64()*60,
				Protocol:  "icmp",
			})
		}
	}

	for i := 0; i < noise; i++ {
		a := rng.Intn(hosts)
		b := rng.Intn(hosts)
		g.AddEdge(flow.Edge{
			SourceID:  fmt.Sprintf("10.%d.%d.%d", a/65536, (a/256)%256, a%256),
			TargetID:  fmt.Sprintf("10.%d.%d.%d", b/65536, (b/256)%256, b%256),
			StartTime: int64(rng.Intn(hosts)) * 1_000_000,
			Duration:  rng.Float64() * 10,
			Protocol:  "udp",
		})
	}

	return g
}
