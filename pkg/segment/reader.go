package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"golang.org/x/exp/mmap"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
)

// Reader reads a segment file through memory-mapped I/O.
type Reader struct {
	path   string
	mmap   *mmap.ReaderAt
	header header
	offset int64
}

// Open memory-maps the segment at path and validates its header.
func Open(path string) (*Reader, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	headerBuf := make([]byte, headerSize)
	if _, err := reader.ReadAt(headerBuf, 0); err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("failed to read segment header: %w", err)
	}

	h, err := decodeHeader(headerBuf)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	return &Reader{
		path:   path,
		mmap:   reader,
		header: h,
		offset: headerSize,
	}, nil
}

// Version returns the format version of the open segment.
func (r *Reader) Version() uint16 {
	return r.header.Version
}

// Next returns the edges of the next block, or io.EOF after the last
// block. A checksum mismatch or truncated block fails the read.
func (r *Reader) Next() ([]flow.Edge, error) {
	if r.offset >= int64(r.mmap.Len()) {
		return nil, io.EOF
	}

	lenBuf := make([]byte, 4)
	if _, err := r.mmap.ReadAt(lenBuf, r.offset); err != nil {
		return nil, fmt.Errorf("failed to read block length: %w", err)
	}
	blockLen := binary.BigEndian.Uint32(lenBuf)

	compressed := make([]byte, blockLen)
	if _, err := r.mmap.ReadAt(compressed, r.offset+4); err != nil {
		return nil, fmt.Errorf("truncated block at offset %d: %w", r.offset, err)
	}

	crcBuf := make([]byte, 4)
	if _, err := r.mmap.ReadAt(crcBuf, r.offset+4+int64(blockLen)); err != nil {
		return nil, fmt.Errorf("truncated checksum at offset %d: %w", r.offset, err)
	}
	if got := crc32.ChecksumIEEE(compressed); got != binary.BigEndian.Uint32(crcBuf) {
		return nil, fmt.Errorf("checksum mismatch in block at offset %d", r.offset)
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress block at offset %d: %w", r.offset, err)
	}

	r.offset += 4 + int64(blockLen) + 4

	var edges []flow.Edge
	dec := json.NewDecoder(bytes.NewReader(payload))
	for {
		var e flow.Edge
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// Close unmaps the segment file.
func (r *Reader) Close() error {
	if r.mmap != nil {
		return r.mmap.Close()
	}
	return nil
}

var _ io.Closer = (*Reader)(nil)

// LoadGraph reads the segment at path into a fresh graph using the
// given malformed-edge policy. Edge IDs are reassigned on load.
func LoadGraph(path string, policy flowgraph.MalformedPolicy) (*flowgraph.Graph, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	g := flowgraph.NewGraphWithOptions(flowgraph.Options{Malformed: policy})
	for {
		edges, err := r.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		for _, e := range edges {
			e.ID = 0
			if _, err := g.AddEdge(e); err != nil {
				if flow.IsMalformedEdge(err) && policy == flowgraph.SkipMalformed {
					continue
				}
				return nil, err
			}
		}
	}
	return g, nil
}
