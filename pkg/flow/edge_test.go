package flow

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validEdge() Edge {
	return Edge{
		ID:        1,
		SourceID:  "147.32.84.165",
		TargetID:  "147.32.80.9",
		StartTime: Timestamp(time.Date(2011, 8, 16, 10, 30, 5, 289899000, time.UTC)),
		Duration:  1.026539,
		Protocol:  "tcp",
	}
}

func TestEdgeValid(t *testing.T) {
	e := validEdge()
	if err := e.Valid(); err != nil {
		t.Fatalf("valid edge rejected: %v", err)
	}
}

func TestEdgeValidZeroStartTime(t *testing.T) {
	// The epoch is a legal start time; only the unset sentinel is missing.
	e := validEdge()
	e.StartTime = 0
	if err := e.Valid(); err != nil {
		t.Fatalf("epoch start time rejected: %v", err)
	}
}

func TestEdgeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Edge)
		field  string
	}{
		{"missing source", func(e *Edge) { e.SourceID = "" }, "source_id"},
		{"missing target", func(e *Edge) { e.TargetID = "" }, "target_id"},
		{"missing start time", func(e *Edge) { e.StartTime = TimestampUnset }, "start_time"},
		{"missing duration", func(e *Edge) { e.Duration = DurationUnset() }, "duration"},
		{"negative duration", func(e *Edge) { e.Duration = -0.5 }, "duration"},
		{"missing protocol", func(e *Edge) { e.Protocol = "" }, "protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEdge()
			tt.mutate(&e)
			err := e.Valid()
			if err == nil {
				t.Fatal("expected malformed edge error, got nil")
			}
			if !IsMalformedEdge(err) {
				t.Errorf("error is not ErrMalformedEdge: %v", err)
			}
			var fe *FlowError
			if !errors.As(err, &fe) {
				t.Fatalf("error is not a *FlowError: %v", err)
			}
			if fe.Field != tt.field {
				t.Errorf("field = %q, want %q", fe.Field, tt.field)
			}
		})
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	orig := time.Date(2011, 8, 16, 10, 30, 5, 289899000, time.UTC)
	us := Timestamp(orig)
	back := TimestampTime(us)
	if !back.Equal(orig) {
		t.Errorf("round trip: got %v, want %v", back, orig)
	}
}

func TestFormatTimestampSortable(t *testing.T) {
	early := FormatTimestamp(Timestamp(time.Date(2011, 8, 16, 10, 30, 5, 0, time.UTC)))
	late := FormatTimestamp(Timestamp(time.Date(2011, 8, 16, 10, 30, 5, 289899000, time.UTC)))
	if !(early < late) {
		t.Errorf("formatted timestamps not lexically sortable: %q vs %q", early, late)
	}
	if !strings.Contains(early, "2011-08-16T10:30:05") {
		t.Errorf("unexpected ISO rendering: %q", early)
	}
}

func TestEdgeClone(t *testing.T) {
	e := validEdge()
	e.Fields = map[string]string{"Sport": "1025", "Label": "flow=Background"}

	clone := e.Clone()
	clone.Fields["Sport"] = "9999"
	clone.SourceID = "changed"

	if e.Fields["Sport"] != "1025" {
		t.Error("clone shares Fields map with original")
	}
	if e.SourceID != "147.32.84.165" {
		t.Error("clone shares scalar state with original")
	}
}

func TestMatchRow(t *testing.T) {
	e1 := validEdge()
	e2 := validEdge()
	e2.ID = 2
	e2.SourceID, e2.TargetID = e1.TargetID, e1.SourceID
	e2.Duration = 15.0
	e2.Protocol = "icmp"

	m := Match{A: e1.SourceID, E1: e1, B: e1.TargetID, E2: e2}
	row := m.Row()

	if row.A != "147.32.84.165" || row.B != "147.32.80.9" {
		t.Errorf("row endpoints wrong: %+v", row)
	}
	if row.Dur1 != e1.Duration || row.Dur2 != 15.0 {
		t.Errorf("row durations wrong: %+v", row)
	}
	if row.Timestamp1 != e1.StartISO() {
		t.Errorf("row timestamp1 = %q, want %q", row.Timestamp1, e1.StartISO())
	}
}

func TestMatchKeyDistinguishesEdgePairs(t *testing.T) {
	e1 := validEdge()
	e2 := validEdge()
	e2.ID = 2
	e3 := validEdge()
	e3.ID = 3

	m1 := Match{A: "a", E1: e1, B: "b", E2: e2}
	m2 := Match{A: "a", E1: e1, B: "b", E2: e3}
	if m1.Key() == m2.Key() {
		t.Error("distinct edge pairs produced identical match keys")
	}
}

func TestErrorBuilder(t *testing.T) {
	cause := errors.New("underlying")
	err := NewError("AddEdge").Edge(42).Field("duration").Cause(cause).Err()

	var fe *FlowError
	if !errors.As(err, &fe) {
		t.Fatalf("builder did not produce *FlowError")
	}
	if fe.Op != "AddEdge" || fe.Entity != "edge" || fe.ID != 42 {
		t.Errorf("unexpected error fields: %+v", fe)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is does not reach the cause")
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Errorf("error text missing field name: %q", err.Error())
	}
}

func TestInvalidConstraintError(t *testing.T) {
	err := InvalidConstraintError("duration_ratio_min", errors.New("must be > 0"))
	if !IsInvalidConstraint(err) {
		t.Errorf("IsInvalidConstraint = false for %v", err)
	}
	if IsMalformedEdge(err) {
		t.Error("constraint error misclassified as malformed edge")
	}
}
