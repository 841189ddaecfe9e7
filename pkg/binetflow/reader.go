package binetflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
)

// Reader streams records from a binetflow CSV. The header row is read
// eagerly so column order in the file does not matter.
type Reader struct {
	csv      *csv.Reader
	colIndex map[string]int
	row      int
}

// NewReader wraps r and consumes the header row.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, flow.NewError("NewReader").Field(strings.Join(missing, ",")).
			Cause(flow.ErrMalformedEdge).Context("missing header columns").Err()
	}

	return &Reader{csv: cr, colIndex: colIndex, row: 1}, nil
}

// Row reports the 1-based line number of the most recently read record.
func (r *Reader) Row() int {
	return r.row
}

// Read returns the next record, or io.EOF when the file is exhausted.
func (r *Reader) Read() (Record, error) {
	record, err := r.csv.Read()
	if err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("row %d: %w", r.row+1, err)
	}
	r.row++

	return Record{
		StartTime: r.field(record, ColStartTime),
		Dur:       r.field(record, ColDur),
		Proto:     r.field(record, ColProto),
		SrcAddr:   r.field(record, ColSrcAddr),
		Sport:     r.field(record, ColSport),
		Dir:       r.field(record, ColDir),
		DstAddr:   r.field(record, ColDstAddr),
		Dport:     r.field(record, ColDport),
		State:     r.field(record, ColState),
		STos:      r.field(record, ColSTos),
		DTos:      r.field(record, ColDTos),
		TotPkts:   r.field(record, ColTotPkts),
		TotBytes:  r.field(record, ColTotBytes),
		SrcBytes:  r.field(record, ColSrcBytes),
		Label:     r.field(record, ColLabel),
	}, nil
}

func (r *Reader) field(record []string, col string) string {
	idx, ok := r.colIndex[col]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// OpenFile opens path and returns a Reader plus a close function.
func OpenFile(path string) (*Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f.Close, nil
}
