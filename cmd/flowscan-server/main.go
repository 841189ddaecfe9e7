// flowscan-server serves the scan API: ingest at boot from a capture
// file, segment, or S3 dataset, then answer scan, stats, report, and
// GraphQL queries until shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/api"
	"github.com/dd0wney/cluso-flowscan/pkg/auth"
	"github.com/dd0wney/cluso-flowscan/pkg/binetflow"
	"github.com/dd0wney/cluso-flowscan/pkg/config"
	"github.com/dd0wney/cluso-flowscan/pkg/dataset"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
	"github.com/dd0wney/cluso-flowscan/pkg/metrics"
	"github.com/dd0wney/cluso-flowscan/pkg/report"
	"github.com/dd0wney/cluso-flowscan/pkg/segment"
	"github.com/dd0wney/cluso-flowscan/pkg/server"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	input := flag.String("input", "", "Capture to serve: binetflow CSV path or s3:// URL")
	seg := flag.String("segment", "", "Serve a compressed flow segment instead of CSV")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowscan-server: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.Log.Level))
	logging.SetDefaultLogger(logger)
	reg := metrics.DefaultRegistry()

	logger.Info("flowscan server starting",
		logging.String("version", version),
		logging.String("addr", cfg.Addr()))

	ctx := context.Background()

	graph := flowgraph.NewGraphWithOptions(cfg.GraphOptions())
	if err := bootstrapGraph(ctx, graph, cfg, *input, *seg, logger, reg); err != nil {
		logger.Error("bootstrap ingest failed", logging.Error(err))
		os.Exit(1)
	}

	stats := graph.Stats()
	reg.UpdateGraphStats(stats.NodeCount, stats.EdgeCount, stats.MalformedSkipped, stats.UniquePairs)
	logger.Info("graph loaded",
		logging.Uint64("nodes", stats.NodeCount),
		logging.Uint64("edges", stats.EdgeCount),
		logging.Skipped(stats.MalformedSkipped))

	engine := matcher.NewEngine(graph, matcher.EngineConfig{
		Workers: cfg.Scan.Workers,
		Logger:  logger,
		Metrics: reg,
	})

	var store report.Store
	if cfg.Database.URL != "" {
		pgStore, err := report.NewPGStore(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("report store unavailable", logging.Error(err))
			os.Exit(1)
		}
		defer pgStore.Close()
		store = pgStore
		logger.Info("report store connected")
	}

	var jwtManager *auth.JWTManager
	var userStore *auth.UserStore
	var apiKeys *auth.APIKeyStore
	if cfg.Auth.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(cfg.Auth.JWTSecret,
			time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
		if err != nil {
			logger.Error("invalid JWT configuration", logging.Error(err))
			os.Exit(1)
		}
		userStore = auth.NewUserStore()
		if err := seedAdminUser(userStore, logger); err != nil {
			logger.Error("failed to seed admin user", logging.Error(err))
			os.Exit(1)
		}
		// API keys are hashed under the same server secret.
		apiKeys, err = auth.NewAPIKeyStore([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			logger.Error("invalid API key configuration", logging.Error(err))
			os.Exit(1)
		}
	} else {
		logger.Warn("token auth disabled; API is open")
	}

	apiServer, err := api.NewServer(api.Config{
		Engine:      engine,
		Defaults:    cfg.Constraints(),
		Store:       store,
		JWTManager:  jwtManager,
		UserStore:   userStore,
		APIKeys:     apiKeys,
		Logger:      logger,
		Metrics:     reg,
		CORSOrigins: cfg.Server.CORSOrigins,
		Version:     version,
	})
	if err != nil {
		logger.Error("failed to build API server", logging.Error(err))
		os.Exit(1)
	}

	gs := server.NewGracefulServer(cfg.Addr(), apiServer.Handler(), logger)
	if *configPath != "" {
		gs.SetConfigReloadFunc(func() error {
			_, err := config.Load(*configPath)
			// Validated only; live reconfiguration is not supported.
			return err
		})
	}

	if err := gs.Start(); err != nil {
		logger.Error("server error", logging.Error(err))
		os.Exit(1)
	}
}

// bootstrapGraph loads the initial dataset, when one is configured.
// With no input the server starts empty and waits for /api/v1/ingest.
func bootstrapGraph(ctx context.Context, g *flowgraph.Graph, cfg *config.Config, input, seg string, logger logging.Logger, reg *metrics.Registry) error {
	if seg != "" {
		loaded, err := segment.LoadGraph(seg, g.Policy())
		if err != nil {
			return err
		}
		// Replay the segment's edges into the server graph.
		for _, e := range loaded.Edges() {
			if _, err := g.AddEdge(*e); err != nil {
				continue
			}
		}
		return nil
	}

	if input == "" {
		logger.Info("no input capture; starting with an empty graph")
		return nil
	}

	path := input
	if dataset.IsURL(input) {
		fetcher, err := dataset.NewFetcher(ctx, dataset.Config{
			Region:   cfg.Dataset.S3Region,
			Endpoint: cfg.Dataset.S3Endpoint,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		tmp, err := os.CreateTemp("", "flowscan-*.binetflow")
		if err != nil {
			return err
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := fetcher.Fetch(ctx, input, tmp.Name()); err != nil {
			return err
		}
		path = tmp.Name()
	}

	loader := binetflow.NewLoader(g, binetflow.LoaderConfig{Logger: logger, Metrics: reg})
	_, err := loader.LoadFile(path)
	return err
}

// seedAdminUser creates the bootstrap admin account from environment
// credentials.
func seedAdminUser(users *auth.UserStore, logger logging.Logger) error {
	username := os.Getenv("FLOWSCAN_ADMIN_USER")
	password := os.Getenv("FLOWSCAN_ADMIN_PASSWORD")
	if username == "" || password == "" {
		return fmt.Errorf("FLOWSCAN_ADMIN_USER and FLOWSCAN_ADMIN_PASSWORD must be set when auth is enabled")
	}
	if _, err := users.CreateUser(username, password, auth.RoleAdmin); err != nil {
		return err
	}
	logger.Info("admin user created", logging.String("username", username))
	return nil
}
