// Package feed streams flow records between processes over a pub/sub
// transport, so capture collectors can push edges into a remote graph.
//
// The wire format is one topic-prefixed JSON line per edge. Transports
// are selected at build time: the zmq tag wires ZeroMQ, the nng tag
// wires nanomsg/mangos. The Socket interfaces keep the publisher and
// subscriber transport-agnostic and testable with in-memory mocks.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
)

// Topic is the pub/sub topic flow records are published under.
const Topic = "FLOW"

// Socket is a messaging socket that can send and receive framed messages.
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket binds to an address and accepts connections.
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket connects to a remote address.
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// SubscribeSocket is a SUB socket that filters by topic.
type SubscribeSocket interface {
	DialSocket
	Subscribe(topic []byte) error
}

// SocketFactory creates sockets for the pub/sub pattern. Build-tagged
// implementations provide ZeroMQ or NNG sockets; tests provide mocks.
type SocketFactory interface {
	NewPubSocket() (ListenSocket, error)
	NewSubSocket() (SubscribeSocket, error)
}

var topicPrefix = []byte(Topic + " ")

// EncodeEdge frames one edge as a topic-prefixed JSON line.
func EncodeEdge(e *flow.Edge) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode edge %d: %w", e.ID, err)
	}
	msg := make([]byte, 0, len(topicPrefix)+len(payload))
	msg = append(msg, topicPrefix...)
	msg = append(msg, payload...)
	return msg, nil
}

// DecodeEdge parses a framed message back into an edge.
func DecodeEdge(msg []byte) (*flow.Edge, error) {
	if !bytes.HasPrefix(msg, topicPrefix) {
		return nil, fmt.Errorf("message missing %q topic prefix", Topic)
	}
	var e flow.Edge
	if err := json.Unmarshal(msg[len(topicPrefix):], &e); err != nil {
		return nil, fmt.Errorf("failed to decode edge: %w", err)
	}
	return &e, nil
}
