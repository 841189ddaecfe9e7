package api

import (
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/auth"
	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
)

// HealthResponse reports server liveness and graph shape.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Timestamp time.Time       `json:"timestamp"`
	Graph     flowgraph.Stats `json:"graph"`
}

// ScanRequest asks for one two-cycle scan. Zero-valued constraint
// fields fall back to the server's configured defaults.
type ScanRequest struct {
	DurationRatioMin float64 `json:"duration_ratio_min,omitempty"`
	ProtoFirst       string  `json:"proto_first,omitempty"`
	ProtoSecond      string  `json:"proto_second,omitempty"`
	TimeOrder        *bool   `json:"time_order,omitempty"`
	Workers          int     `json:"workers,omitempty"`

	// Dataset labels the scan in persisted reports. Save requests
	// persistence; it is ignored when no report store is configured.
	Dataset string `json:"dataset,omitempty"`
	Save    bool   `json:"save,omitempty"`
}

// ScanResponse carries one scan outcome with the flattened match table.
type ScanResponse struct {
	RunID        string              `json:"run_id"`
	Constraints  matcher.Constraints `json:"constraints"`
	MatchCount   int                 `json:"match_count"`
	VisitedEdges uint64              `json:"visited_edges"`
	SkippedEdges uint64              `json:"skipped_edges"`
	ElapsedMS    int64               `json:"elapsed_ms"`
	Matches      []flow.MatchRow     `json:"matches"`
}

// IngestResponse summarizes one CSV ingest.
type IngestResponse struct {
	Loaded    uint64          `json:"loaded"`
	Malformed uint64          `json:"malformed"`
	ElapsedMS int64           `json:"elapsed_ms"`
	Graph     flowgraph.Stats `json:"graph"`
}

// StatsResponse reports graph shape on demand.
type StatsResponse struct {
	Graph  flowgraph.Stats `json:"graph"`
	Frozen bool            `json:"frozen"`
}

// LoginRequest authenticates a user for token issue.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}

// CreateKeyRequest asks for a new API key with the given label and role.
type CreateKeyRequest struct {
	Label string `json:"label"`
	Role  string `json:"role"`
}

// CreateKeyResponse returns the issued key. The plaintext key string
// appears here once and is never retrievable again.
type CreateKeyResponse struct {
	Key    string       `json:"key"`
	APIKey *auth.APIKey `json:"api_key"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
