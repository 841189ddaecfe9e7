// Package segment persists flow graphs as compressed edge segments.
//
// A segment file starts with an 8-byte header followed by a sequence of
// snappy-compressed blocks until EOF:
//
//	[Magic:4][Version:2][Reserved:2]
//	[BlockLen:4][compressed block][CRC32:4] ...
//
// All integers are big-endian. The checksum covers the compressed block
// bytes. Each block decompresses to a run of JSON-encoded edges.
package segment

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic identifies a flow segment file.
	Magic uint32 = 0x464C5347 // "FLSG"

	// Version is the current format version.
	Version uint16 = 1

	headerSize = 8

	// blockFlushSize is the uncompressed block size threshold. Blocks
	// flush once their JSON payload crosses it.
	blockFlushSize = 256 * 1024
)

type header struct {
	Magic    uint32
	Version  uint16
	Reserved uint16
}

func encodeHeader() []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], Version)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("segment header too short: %d bytes", len(buf))
	}
	h := header{
		Magic:    binary.BigEndian.Uint32(buf[0:4]),
		Version:  binary.BigEndian.Uint16(buf[4:6]),
		Reserved: binary.BigEndian.Uint16(buf[6:8]),
	}
	if h.Magic != Magic {
		return header{}, fmt.Errorf("invalid segment magic: %x", h.Magic)
	}
	if h.Version != Version {
		return header{}, fmt.Errorf("unsupported segment version: %d", h.Version)
	}
	return h, nil
}
