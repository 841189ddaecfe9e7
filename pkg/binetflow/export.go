package binetflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
)

// matchHeader is the column order of the exported match table.
var matchHeader = []string{"A", "timestamp1", "dur1", "B", "timestamp2", "dur2"}

// WriteMatchesCSV writes match rows as a CSV table: one row per match,
// timestamps in sortable ISO 8601 UTC, durations in seconds.
func WriteMatchesCSV(w io.Writer, rows []flow.MatchRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(matchHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, row := range rows {
		record := []string{
			row.A,
			row.Timestamp1,
			strconv.FormatFloat(row.Dur1, 'f', -1, 64),
			row.B,
			row.Timestamp2,
			strconv.FormatFloat(row.Dur2, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
