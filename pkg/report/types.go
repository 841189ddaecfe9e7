// Package report persists scan results so analysts can revisit which
// two-cycles a dataset produced under which constraints.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
)

var ErrReportNotFound = errors.New("report not found")

// ScanReport is one persisted scan outcome.
type ScanReport struct {
	ID           uuid.UUID           `json:"id"`
	RunID        uuid.UUID           `json:"run_id"`
	Dataset      string              `json:"dataset"`
	Constraints  matcher.Constraints `json:"constraints"`
	MatchCount   int                 `json:"match_count"`
	VisitedEdges uint64              `json:"visited_edges"`
	SkippedEdges uint64              `json:"skipped_edges"`
	ElapsedMS    int64               `json:"elapsed_ms"`
	Matches      []flow.MatchRow     `json:"matches"`
	CreatedAt    time.Time           `json:"created_at"`
}

// NewReport builds a report from a finished scan.
func NewReport(dataset string, constraints matcher.Constraints, result *matcher.Result) *ScanReport {
	return &ScanReport{
		ID:           uuid.New(),
		RunID:        result.RunID,
		Dataset:      dataset,
		Constraints:  constraints,
		MatchCount:   len(result.Matches),
		VisitedEdges: result.VisitedEdges,
		SkippedEdges: result.SkippedEdges,
		ElapsedMS:    result.Elapsed.Milliseconds(),
		Matches:      result.Rows(),
		CreatedAt:    time.Now().UTC(),
	}
}

// Store defines report persistence.
type Store interface {
	SaveReport(ctx context.Context, report *ScanReport) error
	GetReport(ctx context.Context, id uuid.UUID) (*ScanReport, error)
	ListReports(ctx context.Context, limit int) ([]*ScanReport, error)
	DeleteReport(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
	Close() error
}
