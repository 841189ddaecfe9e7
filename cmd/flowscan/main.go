// flowscan loads a flow capture, runs one two-cycle beacon scan, and
// prints the match table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dd0wney/cluso-flowscan/pkg/binetflow"
	"github.com/dd0wney/cluso-flowscan/pkg/dataset"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
	"github.com/dd0wney/cluso-flowscan/pkg/report"
	"github.com/dd0wney/cluso-flowscan/pkg/segment"
)

func main() {
	input := flag.String("input", "", "Capture to scan: binetflow CSV path or s3://bucket/key URL")
	seg := flag.String("segment", "", "Scan a compressed flow segment instead of CSV")
	ratio := flag.Float64("ratio", matcher.DefaultDurationRatio, "Minimum duration ratio k (return leg must last more than k x the probe)")
	protoFirst := flag.String("proto1", "tcp", "Required protocol of the probe leg")
	protoSecond := flag.String("proto2", "icmp", "Required protocol of the return leg")
	noTimeOrder := flag.Bool("no-time-order", false, "Drop the probe-before-return time constraint")
	workers := flag.Int("workers", 0, "Parallel scan workers (0 = sequential)")
	format := flag.String("format", "table", "Output format: table, csv, or json")
	malformed := flag.String("malformed", "skip", "Malformed row policy: skip or abort")
	reportDSN := flag.String("report-db", "", "Postgres DSN; when set the scan is persisted as a report")
	datasetName := flag.String("dataset", "", "Dataset label for persisted reports (defaults to the input name)")
	region := flag.String("s3-region", "", "AWS region for s3:// inputs")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *input == "" && *seg == "" {
		fmt.Fprintln(os.Stderr, "Usage: flowscan -input capture.binetflow [flags]")
		fmt.Fprintln(os.Stderr, "       flowscan -input s3://bucket/capture.binetflow -s3-region eu-west-1")
		fmt.Fprintln(os.Stderr, "       flowscan -segment capture.seg")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := logging.WarnLevel
	if *verbose {
		level = logging.DebugLevel
	}
	logger := logging.NewJSONLogger(os.Stderr, level)

	ctx := context.Background()

	graph, source, err := loadGraph(ctx, *input, *seg, *malformed, *region, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowscan: %v\n", err)
		os.Exit(1)
	}

	constraints := matcher.Constraints{
		DurationRatioMin: *ratio,
		ProtoFirst:       strings.ToLower(*protoFirst),
		ProtoSecond:      strings.ToLower(*protoSecond),
		TimeOrder:        !*noTimeOrder,
	}

	engine := matcher.NewEngine(graph, matcher.EngineConfig{
		Workers: *workers,
		Logger:  logger,
	})
	result, err := engine.Scan(ctx, constraints)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowscan: scan failed: %v\n", err)
		os.Exit(1)
	}

	if err := printResult(result, *format); err != nil {
		fmt.Fprintf(os.Stderr, "flowscan: %v\n", err)
		os.Exit(1)
	}

	stats := graph.Stats()
	fmt.Fprintf(os.Stderr, "\n%d matches, %d edges visited, %d malformed rows skipped (%d nodes, %d edges)\n",
		len(result.Matches), result.VisitedEdges, result.SkippedEdges,
		stats.NodeCount, stats.EdgeCount)

	if *reportDSN != "" {
		name := *datasetName
		if name == "" {
			name = source
		}
		if err := saveReport(ctx, *reportDSN, name, constraints, result); err != nil {
			fmt.Fprintf(os.Stderr, "flowscan: failed to save report: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "report saved for run %s\n", result.RunID)
	}
}

// loadGraph builds the graph from a segment, a local CSV, or an S3
// object. Returns the graph and a short source label.
func loadGraph(ctx context.Context, input, seg, malformed, region string, logger logging.Logger) (*flowgraph.Graph, string, error) {
	policy := flowgraph.ParseMalformedPolicy(malformed)

	if seg != "" {
		g, err := segment.LoadGraph(seg, policy)
		if err != nil {
			return nil, "", err
		}
		return g, filepath.Base(seg), nil
	}

	path := input
	if dataset.IsURL(input) {
		fetcher, err := dataset.NewFetcher(ctx, dataset.Config{Region: region, Logger: logger})
		if err != nil {
			return nil, "", err
		}
		tmp, err := os.CreateTemp("", "flowscan-*.binetflow")
		if err != nil {
			return nil, "", err
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := fetcher.Fetch(ctx, input, tmp.Name()); err != nil {
			return nil, "", err
		}
		path = tmp.Name()
	}

	g := flowgraph.NewGraphWithOptions(flowgraph.Options{Malformed: policy})
	loader := binetflow.NewLoader(g, binetflow.LoaderConfig{Logger: logger})
	if _, err := loader.LoadFile(path); err != nil {
		return nil, "", err
	}
	return g, filepath.Base(input), nil
}

func printResult(result *matcher.Result, format string) error {
	rows := result.Rows()

	switch format {
	case "table":
		fmt.Printf("%-18s %-28s %10s   %-18s %-28s %10s\n",
			"A", "timestamp1", "dur1", "B", "timestamp2", "dur2")
		for _, row := range rows {
			fmt.Printf("%-18s %-28s %10.3f   %-18s %-28s %10.3f\n",
				row.A, row.Timestamp1, row.Dur1, row.B, row.Timestamp2, row.Dur2)
		}
		return nil

	case "csv":
		return binetflow.WriteMatchesCSV(os.Stdout, rows)

	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":        result.RunID.String(),
			"match_count":   len(result.Matches),
			"visited_edges": result.VisitedEdges,
			"skipped_edges": result.SkippedEdges,
			"matches":       rows,
		})

	default:
		return fmt.Errorf("unknown format %q (want table, csv, or json)", format)
	}
}

func saveReport(ctx context.Context, dsn, name string, constraints matcher.Constraints, result *matcher.Result) error {
	store, err := report.NewPGStore(ctx, dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveReport(ctx, report.NewReport(name, constraints, result))
}
