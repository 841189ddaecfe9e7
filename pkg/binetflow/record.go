// Package binetflow reads binetflow-style CSV flow captures and loads
// them into a flow graph. The matcher consumes StartTime, Dur, Proto,
// SrcAddr, and DstAddr; the remaining columns ride along as passthrough
// edge fields.
package binetflow

import (
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
)

// binetflow CSV schema:
// StartTime, Dur, Proto, SrcAddr, Sport, Dir, DstAddr, Dport, State,
// sTos, dTos, TotPkts, TotBytes, SrcBytes, Label

// Column names as they appear in the CSV header.
const (
	ColStartTime = "StartTime"
	ColDur       = "Dur"
	ColProto     = "Proto"
	ColSrcAddr   = "SrcAddr"
	ColSport     = "Sport"
	ColDir       = "Dir"
	ColDstAddr   = "DstAddr"
	ColDport     = "Dport"
	ColState     = "State"
	ColSTos      = "sTos"
	ColDTos      = "dTos"
	ColTotPkts   = "TotPkts"
	ColTotBytes  = "TotBytes"
	ColSrcBytes  = "SrcBytes"
	ColLabel     = "Label"
)

// requiredColumns must be present in the header; without them no edge
// can be formed.
var requiredColumns = []string{ColStartTime, ColDur, ColProto, ColSrcAddr, ColDstAddr}

// passthroughColumns are carried on the edge but never matched on.
var passthroughColumns = []string{
	ColSport, ColDir, ColDport, ColState, ColSTos, ColDTos,
	ColTotPkts, ColTotBytes, ColSrcBytes, ColLabel,
}

// Record is one raw CSV row.
type Record struct {
	StartTime string
	Dur       string
	Proto     string
	SrcAddr   string
	Sport     string
	Dir       string
	DstAddr   string
	Dport     string
	State     string
	STos      string
	DTos      string
	TotPkts   string
	TotBytes  string
	SrcBytes  string
	Label     string
}

// startTimeLayouts are the accepted input stamp formats, tried in
// order. Capture files use the slash form; already-normalized data uses
// the ISO forms. Stamps carry no zone and are read as UTC.
var startTimeLayouts = []string{
	"2006/01/02 15:04:05.000000",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05.000000Z",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.000000",
}

// ParseStartTime normalizes a raw StartTime stamp to microseconds since
// the Unix epoch.
func ParseStartTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, flow.NewError("ParseStartTime").Field(ColStartTime).
			Cause(flow.ErrMalformedEdge).Context("empty stamp").Err()
	}

	var lastErr error
	for _, layout := range startTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return flow.Timestamp(t), nil
		}
		lastErr = err
	}

	return 0, flow.NewError("ParseStartTime").Field(ColStartTime).
		Cause(lastErr).Context(s).Err()
}

// ToEdge converts the raw record to a flow edge. Unparseable start
// times and durations become the unset sentinels so the graph's
// malformed-edge policy decides their fate; this keeps row conversion
// total and pushes the skip-or-abort decision to one place.
func (r *Record) ToEdge() flow.Edge {
	e := flow.Edge{
		SourceID: strings.TrimSpace(r.SrcAddr),
		TargetID: strings.TrimSpace(r.DstAddr),
		Protocol: strings.ToLower(strings.TrimSpace(r.Proto)),
	}

	if us, err := ParseStartTime(r.StartTime); err == nil {
		e.StartTime = us
	} else {
		e.StartTime = flow.TimestampUnset
	}

	if dur, err := strconv.ParseFloat(strings.TrimSpace(r.Dur), 64); err == nil {
		e.Duration = dur
	} else {
		e.Duration = flow.DurationUnset()
	}

	fields := map[string]string{
		ColSport:    r.Sport,
		ColDir:      r.Dir,
		ColDport:    r.Dport,
		ColState:    r.State,
		ColSTos:     r.STos,
		ColDTos:     r.DTos,
		ColTotPkts:  r.TotPkts,
		ColTotBytes: r.TotBytes,
		ColSrcBytes: r.SrcBytes,
		ColLabel:    r.Label,
	}
	for k, v := range fields {
		if strings.TrimSpace(v) == "" {
			delete(fields, k)
		}
	}
	if len(fields) > 0 {
		e.Fields = fields
	}

	return e
}
