package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
)

// recvDeadline bounds each Recv so the consume loop can notice
// cancellation on an otherwise idle feed.
const recvDeadline = 500 * time.Millisecond

// Subscriber receives flow records from a publisher.
type Subscriber struct {
	socket SubscribeSocket
	addr   string
	logger logging.Logger

	closeOnce sync.Once
}

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	// Address to dial, e.g. "tcp://collector:9610".
	Address string
	Logger  logging.Logger
}

// NewSubscriber dials the publisher and subscribes to the flow topic.
func NewSubscriber(factory SocketFactory, config SubscriberConfig) (*Subscriber, error) {
	socket, err := factory.NewSubSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if err := socket.Dial(config.Address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Address, err)
	}
	if err := socket.Subscribe([]byte(Topic)); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := socket.SetRecvDeadline(recvDeadline); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set receive deadline: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Subscriber{
		socket: socket,
		addr:   config.Address,
		logger: logger.With(logging.Component("feed")),
	}, nil
}

// Receive blocks for the next flow record. A deadline expiry on an idle
// feed is reported as a transient error; callers in a loop should retry.
func (s *Subscriber) Receive() (*flow.Edge, error) {
	msg, err := s.socket.Recv()
	if err != nil {
		return nil, err
	}
	return DecodeEdge(msg)
}

// ConsumeInto pumps received records into the graph until ctx is done.
// Deadline expiries are treated as idle periods; decode failures and
// malformed records are logged and skipped. Returns how many edges were
// added.
func (s *Subscriber) ConsumeInto(ctx context.Context, g *flowgraph.Graph) (uint64, error) {
	var added uint64
	for {
		if err := ctx.Err(); err != nil {
			return added, nil
		}

		msg, err := s.socket.Recv()
		if err != nil {
			// Transport deadline expiry means the feed was idle.
			continue
		}

		edge, err := DecodeEdge(msg)
		if err != nil {
			s.logger.Warn("dropping undecodable feed message", logging.Error(err))
			continue
		}

		if _, err := g.AddEdge(*edge); err != nil {
			if errors.Is(err, flow.ErrGraphFrozen) {
				return added, err
			}
			s.logger.Debug("dropping malformed feed record", logging.Error(err))
			continue
		}
		added++
	}
}

// Close shuts the subscriber down. Safe to call more than once.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.socket.Close()
	})
	return err
}
