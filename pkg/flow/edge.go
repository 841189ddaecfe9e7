// Package flow defines the core domain types for network flow records:
// directed, timestamped, protocol-typed edges between host addresses.
package flow

import (
	"fmt"
	"math"
	"time"
)

// TimestampUnset marks a missing start time. Zero is a legal timestamp
// (the epoch), so absence needs an explicit sentinel.
const TimestampUnset = int64(math.MinInt64)

// DurationUnset marks a missing duration.
func DurationUnset() float64 { return math.NaN() }

// Edge is one directed flow record between two host addresses.
// Multiple edges between the same ordered pair are allowed.
type Edge struct {
	ID        uint64  `json:"id,omitempty"`
	SourceID  string  `json:"source_id"`
	TargetID  string  `json:"target_id"`
	StartTime int64   `json:"start_time"` // microseconds since the Unix epoch
	Duration  float64 `json:"duration"`   // seconds
	Protocol  string  `json:"protocol"`

	// Fields carries attributes not used in matching (ports, byte
	// counts, state, label). Passed through untouched.
	Fields map[string]string `json:"fields,omitempty"`
}

// Timestamp converts a time.Time to the microsecond representation
// used on edges.
func Timestamp(t time.Time) int64 {
	return t.UnixMicro()
}

// TimestampTime converts a microsecond timestamp back to time.Time (UTC).
func TimestampTime(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// FormatTimestamp renders a microsecond timestamp as a sortable
// ISO-8601 string with microsecond precision.
func FormatTimestamp(us int64) string {
	return TimestampTime(us).Format("2006-01-02T15:04:05.000000Z")
}

// StartISO returns the edge's start time in sortable ISO-8601 form.
func (e *Edge) StartISO() string {
	return FormatTimestamp(e.StartTime)
}

// Valid reports whether the edge is structurally usable for matching.
// A nil return means all required attributes are present and sane.
func (e *Edge) Valid() error {
	switch {
	case e.SourceID == "":
		return MalformedEdgeError(e.ID, "source_id", fmt.Errorf("missing source address"))
	case e.TargetID == "":
		return MalformedEdgeError(e.ID, "target_id", fmt.Errorf("missing target address"))
	case e.StartTime == TimestampUnset:
		return MalformedEdgeError(e.ID, "start_time", fmt.Errorf("missing start time"))
	case math.IsNaN(e.Duration):
		return MalformedEdgeError(e.ID, "duration", fmt.Errorf("missing duration"))
	case e.Duration < 0:
		return MalformedEdgeError(e.ID, "duration", fmt.Errorf("negative duration %v", e.Duration))
	case e.Protocol == "":
		return MalformedEdgeError(e.ID, "protocol", fmt.Errorf("missing protocol"))
	}
	return nil
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	clone := *e
	if e.Fields != nil {
		clone.Fields = make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			clone.Fields[k] = v
		}
	}
	return &clone
}

// Match is one qualifying two-cycle: e1 goes A to B, e2 goes B back to A.
type Match struct {
	A  string
	E1 Edge
	B  string
	E2 Edge
}

// MatchRow is the flat table form consumed by exporters and the API:
// source, first-leg time and duration, target, return-leg time and duration.
type MatchRow struct {
	A          string  `json:"a"`
	Timestamp1 string  `json:"timestamp1"`
	Dur1       float64 `json:"dur1"`
	B          string  `json:"b"`
	Timestamp2 string  `json:"timestamp2"`
	Dur2       float64 `json:"dur2"`
}

// Row flattens the match into its table form.
func (m *Match) Row() MatchRow {
	return MatchRow{
		A:          m.A,
		Timestamp1: m.E1.StartISO(),
		Dur1:       m.E1.Duration,
		B:          m.B,
		Timestamp2: m.E2.StartISO(),
		Dur2:       m.E2.Duration,
	}
}

// Key returns a canonical identity for the match, useful for comparing
// result sets that carry no ordering guarantee.
func (m *Match) Key() string {
	return fmt.Sprintf("%s|%d|%s|%d", m.A, m.E1.ID, m.B, m.E2.ID)
}
