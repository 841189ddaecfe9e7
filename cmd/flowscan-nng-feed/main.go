//go:build nng
// +build nng

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/binetflow"
	"github.com/dd0wney/cluso-flowscan/pkg/feed"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
)

func main() {
	mode := flag.String("mode", "", "pub or sub")
	addr := flag.String("addr", "tcp://0.0.0.0:9611", "Bind address (pub) or publisher endpoint (sub)")
	input := flag.String("input", "", "binetflow CSV to stream (pub mode)")
	rate := flag.Int("rate", 1000, "Records per second to publish (0 = unthrottled)")
	flag.Parse()

	fmt.Printf("🚀 Cluso FlowScan - NNG Flow Feed (Pure Go)\n")
	fmt.Printf("===========================================\n\n")

	logger := logging.NewJSONLogger(os.Stdout, logging.InfoLevel)
	factory := feed.NewNNGSocketFactory()

	switch *mode {
	case "pub":
		runPublisher(factory, logger, *addr, *input, *rate)
	case "sub":
		runSubscriber(factory, logger, *addr)
	default:
		fmt.Println("Usage: flowscan-nng-feed --mode pub --input capture.binetflow [--addr tcp://0.0.0.0:9611]")
		fmt.Println("       flowscan-nng-feed --mode sub [--addr tcp://localhost:9611]")
		os.Exit(1)
	}
}

func runPublisher(factory feed.SocketFactory, logger logging.Logger, addr, input string, rate int) {
	if input == "" {
		log.Fatalf("pub mode requires --input")
	}

	fmt.Printf("📡 Publishing %s on %s\n\n", input, addr)

	pub, err := feed.NewPublisher(factory, feed.PublisherConfig{
		Address: addr,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}
	if err := pub.Start(); err != nil {
		log.Fatalf("Failed to start publisher: %v", err)
	}
	defer pub.Stop()

	time.Sleep(500 * time.Millisecond)

	reader, closeFn, err := binetflow.OpenFile(input)
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer closeFn()

	var throttle <-chan time.Time
	if rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
		throttle = ticker.C
	}

	var sent, skipped uint64
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Fatalf("Capture read failed at row %d: %v", reader.Row(), err)
		}

		edge := record.ToEdge()
		if edge.Valid() != nil {
			skipped++
			continue
		}

		if throttle != nil {
			<-throttle
		}
		pub.Publish(&edge)
		sent++
	}

	time.Sleep(time.Second)
	published, dropped := pub.Stats()
	fmt.Printf("\n✅ Stream complete\n")
	fmt.Printf("  Queued:    %d\n", sent)
	fmt.Printf("  Published: %d\n", published)
	fmt.Printf("  Dropped:   %d\n", dropped)
	fmt.Printf("  Malformed: %d\n", skipped)
}

func runSubscriber(factory feed.SocketFactory, logger logging.Logger, addr string) {
	fmt.Printf("📥 Subscribing to %s\n", addr)
	fmt.Printf("   Press Ctrl+C to stop the feed and scan\n\n")

	sub, err := feed.NewSubscriber(factory, feed.SubscriberConfig{
		Address: addr,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	graph := flowgraph.NewGraph()
	added, err := sub.ConsumeInto(ctx, graph)
	if err != nil {
		log.Fatalf("Feed consumption failed: %v", err)
	}

	stats := graph.Stats()
	fmt.Printf("\n📊 Feed stopped: %d records, %d nodes\n", added, stats.NodeCount)

	result, err := matcher.FindTwoCycles(context.Background(), graph, matcher.DefaultConstraints())
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	fmt.Printf("✅ Scan complete in %v\n", result.Elapsed)
	fmt.Printf("  Matches:       %d\n", len(result.Matches))
	fmt.Printf("  Edges Visited: %d\n", result.VisitedEdges)
	for _, m := range result.Matches {
		fmt.Printf("    %s ⇄ %s (ratio %.1fx)\n", m.A, m.B, m.E2.Duration/m.E1.Duration)
	}
}
