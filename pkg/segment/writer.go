package segment

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
)

// Writer appends edges to a segment file, batching them into
// snappy-compressed blocks.
type Writer struct {
	file    *os.File
	writer  *bufio.Writer
	pending bytes.Buffer
	mu      sync.Mutex

	edgeCount         uint64
	blockCount        uint64
	bytesUncompressed uint64
	bytesCompressed   uint64
}

// WriteStats holds counters for one finished segment.
type WriteStats struct {
	Edges             uint64  `json:"edges"`
	Blocks            uint64  `json:"blocks"`
	BytesUncompressed uint64  `json:"bytes_uncompressed"`
	BytesCompressed   uint64  `json:"bytes_compressed"`
	CompressionRatio  float64 `json:"compression_ratio"`
}

// Create creates a segment file at path, truncating any existing file,
// and writes the format header.
func Create(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file: %w", err)
	}

	w := &Writer{
		file:   file,
		writer: bufio.NewWriter(file),
	}
	if _, err := w.writer.Write(encodeHeader()); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write segment header: %w", err)
	}
	return w, nil
}

// Append adds one edge to the segment. The edge is buffered and written
// out as part of a compressed block.
func (w *Writer) Append(e *flow.Edge) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode edge %d: %w", e.ID, err)
	}
	w.pending.Write(data)
	w.pending.WriteByte('\n')
	w.edgeCount++

	if w.pending.Len() >= blockFlushSize {
		return w.flushBlock()
	}
	return nil
}

// flushBlock compresses and writes the pending payload. Caller holds mu.
func (w *Writer) flushBlock() error {
	if w.pending.Len() == 0 {
		return nil
	}

	compressed := snappy.Encode(nil, w.pending.Bytes())

	// Format: [BlockLen:4][compressed block][CRC32:4]
	if err := binary.Write(w.writer, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := w.writer.Write(compressed); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.BigEndian, crc32.ChecksumIEEE(compressed)); err != nil {
		return err
	}

	w.blockCount++
	w.bytesUncompressed += uint64(w.pending.Len())
	w.bytesCompressed += uint64(len(compressed))
	w.pending.Reset()

	return nil
}

// Flush writes any pending block and syncs the file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.flushBlock(); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes pending data and closes the file.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Stats returns counters for the data written so far.
func (w *Writer) Stats() WriteStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	ratio := 0.0
	if w.bytesUncompressed > 0 {
		ratio = 1.0 - (float64(w.bytesCompressed) / float64(w.bytesUncompressed))
	}
	return WriteStats{
		Edges:             w.edgeCount,
		Blocks:            w.blockCount,
		BytesUncompressed: w.bytesUncompressed,
		BytesCompressed:   w.bytesCompressed,
		CompressionRatio:  ratio,
	}
}

// WriteGraph saves every edge of g to a new segment file at path.
func WriteGraph(path string, g *flowgraph.Graph) (WriteStats, error) {
	w, err := Create(path)
	if err != nil {
		return WriteStats{}, err
	}

	for _, e := range g.Edges() {
		if err := w.Append(e); err != nil {
			w.file.Close()
			return WriteStats{}, err
		}
	}

	if err := w.Close(); err != nil {
		return WriteStats{}, err
	}
	return w.Stats(), nil
}
