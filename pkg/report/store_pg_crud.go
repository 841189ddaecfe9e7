package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveReport stores a new report.
func (s *PGStore) SaveReport(ctx context.Context, r *ScanReport) error {
	constraintsJSON, err := json.Marshal(r.Constraints)
	if err != nil {
		return fmt.Errorf("failed to marshal constraints: %w", err)
	}
	matchesJSON, err := json.Marshal(r.Matches)
	if err != nil {
		return fmt.Errorf("failed to marshal matches: %w", err)
	}

	query := `
		INSERT INTO scan_reports (id, run_id, dataset, constraints, match_count, visited_edges, skipped_edges, elapsed_ms, matches, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		r.ID,
		r.RunID,
		r.Dataset,
		constraintsJSON,
		r.MatchCount,
		int64(r.VisitedEdges),
		int64(r.SkippedEdges),
		r.ElapsedMS,
		matchesJSON,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID.
func (s *PGStore) GetReport(ctx context.Context, id uuid.UUID) (*ScanReport, error) {
	query := `
		SELECT id, run_id, dataset, constraints, match_count, visited_edges, skipped_edges, elapsed_ms, matches, created_at
		FROM scan_reports
		WHERE id = $1
	`

	r := &ScanReport{}
	var constraintsJSON, matchesJSON []byte
	var visited, skipped int64

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID,
		&r.RunID,
		&r.Dataset,
		&constraintsJSON,
		&r.MatchCount,
		&visited,
		&skipped,
		&r.ElapsedMS,
		&matchesJSON,
		&r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	r.VisitedEdges = uint64(visited)
	r.SkippedEdges = uint64(skipped)
	if len(constraintsJSON) > 0 {
		if err := json.Unmarshal(constraintsJSON, &r.Constraints); err != nil {
			return nil, fmt.Errorf("failed to unmarshal constraints: %w", err)
		}
	}
	if len(matchesJSON) > 0 {
		if err := json.Unmarshal(matchesJSON, &r.Matches); err != nil {
			return nil, fmt.Errorf("failed to unmarshal matches: %w", err)
		}
	}
	return r, nil
}

// ListReports returns reports newest first, up to limit. A limit of
// zero or less returns everything.
func (s *PGStore) ListReports(ctx context.Context, limit int) ([]*ScanReport, error) {
	query := `
		SELECT id, run_id, dataset, constraints, match_count, visited_edges, skipped_edges, elapsed_ms, matches, created_at
		FROM scan_reports
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*ScanReport
	for rows.Next() {
		r := &ScanReport{}
		var constraintsJSON, matchesJSON []byte
		var visited, skipped int64

		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.Dataset,
			&constraintsJSON,
			&r.MatchCount,
			&visited,
			&skipped,
			&r.ElapsedMS,
			&matchesJSON,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		r.VisitedEdges = uint64(visited)
		r.SkippedEdges = uint64(skipped)
		if len(constraintsJSON) > 0 {
			if err := json.Unmarshal(constraintsJSON, &r.Constraints); err != nil {
				return nil, fmt.Errorf("failed to unmarshal constraints: %w", err)
			}
		}
		if len(matchesJSON) > 0 {
			if err := json.Unmarshal(matchesJSON, &r.Matches); err != nil {
				return nil, fmt.Errorf("failed to unmarshal matches: %w", err)
			}
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}

// DeleteReport removes a report.
func (s *PGStore) DeleteReport(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM scan_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return nil
}
