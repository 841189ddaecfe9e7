// Package api is the HTTP surface over the flow graph and scan engine:
// ingest, scan, stats, reports, GraphQL, health, and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/auth"
	gql "github.com/dd0wney/cluso-flowscan/pkg/graphql"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
	"github.com/dd0wney/cluso-flowscan/pkg/metrics"
	"github.com/dd0wney/cluso-flowscan/pkg/report"
)

// Request body limits. Scan and login bodies are small JSON; ingest
// accepts whole capture files.
const (
	maxJSONBody   = 1 << 20  // 1 MB
	maxIngestBody = 256 << 20 // 256 MB
)

// Server handles the HTTP API.
type Server struct {
	engine         *matcher.Engine
	defaults       matcher.Constraints
	store          report.Store
	jwtManager     *auth.JWTManager
	userStore      *auth.UserStore
	apiKeys        *auth.APIKeyStore
	logger         logging.Logger
	metrics        *metrics.Registry
	graphqlHandler *gql.Handler
	corsOrigins    []string
	startTime      time.Time
	version        string
}

// Config wires a Server's collaborators. Engine is required; a nil
// Store disables report endpoints and a nil JWTManager disables auth.
// APIKeys adds X-API-Key authentication alongside bearer tokens.
type Config struct {
	Engine      *matcher.Engine
	Defaults    matcher.Constraints
	Store       report.Store
	JWTManager  *auth.JWTManager
	UserStore   *auth.UserStore
	APIKeys     *auth.APIKeyStore
	Logger      logging.Logger
	Metrics     *metrics.Registry
	CORSOrigins []string
	Version     string
}

// NewServer creates the API server and its GraphQL schema.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry()
	}
	defaults := cfg.Defaults
	if defaults.DurationRatioMin == 0 {
		defaults = matcher.DefaultConstraints()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	schema, err := gql.NewSchema(cfg.Engine)
	if err != nil {
		return nil, err
	}

	return &Server{
		engine:         cfg.Engine,
		defaults:       defaults,
		store:          cfg.Store,
		jwtManager:     cfg.JWTManager,
		userStore:      cfg.UserStore,
		apiKeys:        cfg.APIKeys,
		logger:         logger.With(logging.Component("api")),
		metrics:        reg,
		graphqlHandler: gql.NewHandler(schema),
		corsOrigins:    cfg.CORSOrigins,
		startTime:      time.Now(),
		version:        version,
	}, nil
}

// Handler builds the full route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())

	mux.HandleFunc("/api/v1/auth/login", s.bodyLimit(maxJSONBody, s.handleLogin))
	mux.HandleFunc("/api/v1/auth/keys", s.requireRole(auth.RoleAdmin,
		s.bodyLimit(maxJSONBody, s.handleAPIKeys)))
	mux.HandleFunc("/api/v1/auth/keys/", s.requireRole(auth.RoleAdmin, s.handleAPIKey))

	mux.HandleFunc("/api/v1/scan", s.requireRole(auth.RoleAnalyst,
		s.bodyLimit(maxJSONBody, s.handleScan)))
	mux.HandleFunc("/api/v1/ingest", s.requireRole(auth.RoleAnalyst,
		s.bodyLimit(maxIngestBody, s.handleIngest)))
	mux.HandleFunc("/api/v1/graph/stats", s.handleStats)

	mux.HandleFunc("/api/v1/reports", s.requireRole(auth.RoleViewer, s.handleReports))
	mux.HandleFunc("/api/v1/reports/", s.requireRole(auth.RoleViewer, s.handleReport))

	mux.Handle("/graphql", s.graphqlHandler)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.panicRecoveryMiddleware(handler)
	return handler
}

// AuthEnabled reports whether token auth is configured.
func (s *Server) AuthEnabled() bool {
	return s.jwtManager != nil && s.userStore != nil
}
