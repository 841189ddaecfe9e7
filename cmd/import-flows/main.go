// import-flows converts a binetflow CSV capture into a compressed flow
// segment for fast server bootstraps and repeated scans.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dd0wney/cluso-flowscan/pkg/binetflow"
	"github.com/dd0wney/cluso-flowscan/pkg/segment"
)

func main() {
	in := flag.String("in", "", "Path to binetflow CSV capture")
	out := flag.String("out", "", "Path of the segment file to write")
	progressEvery := flag.Uint64("progress", 100000, "Log progress every N rows")
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Println("Usage: import-flows --in capture.binetflow --out capture.seg")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("flow capture importer", "in", *in, "out", *out)

	reader, closeFn, err := binetflow.OpenFile(*in)
	if err != nil {
		logger.Error("failed to open capture", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	writer, err := segment.Create(*out)
	if err != nil {
		logger.Error("failed to create segment", "error", err)
		os.Exit(1)
	}

	var rows, skipped uint64
	for {
		record, readErr := reader.Read()
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			logger.Error("capture read failed", "row", reader.Row(), "error", readErr)
			os.Exit(1)
		}

		edge := record.ToEdge()
		if validErr := edge.Valid(); validErr != nil {
			skipped++
			continue
		}

		if appendErr := writer.Append(&edge); appendErr != nil {
			logger.Error("segment append failed", "row", reader.Row(), "error", appendErr)
			os.Exit(1)
		}

		rows++
		if *progressEvery > 0 && rows%*progressEvery == 0 {
			logger.Info("import progress", "rows", rows, "skipped", skipped)
		}
	}

	if err := writer.Close(); err != nil {
		logger.Error("failed to finish segment", "error", err)
		os.Exit(1)
	}

	stats := writer.Stats()
	logger.Info("segment written",
		"edges", stats.Edges,
		"skipped", skipped,
		"blocks", stats.Blocks,
		"bytes_uncompressed", stats.BytesUncompressed,
		"bytes_compressed", stats.BytesCompressed,
		"compression_ratio", fmt.Sprintf("%.2f", stats.CompressionRatio),
	)
}
