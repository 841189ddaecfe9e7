package feed

import (
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/logging"
)

// Publisher fans flow records out to subscribers.
type Publisher struct {
	socket    ListenSocket
	addr      string
	stream    chan *flow.Edge
	stopCh    chan struct{}
	wg        sync.WaitGroup
	logger    logging.Logger
	running   bool
	runningMu sync.Mutex

	published uint64
	dropped   uint64
	statsMu   sync.Mutex
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Address to bind, e.g. "tcp://*:9610".
	Address string
	// BufferSize is the publish queue depth; records beyond it are
	// dropped rather than blocking the producer.
	BufferSize int
	Logger     logging.Logger
}

// NewPublisher creates a publisher using the factory's PUB socket.
func NewPublisher(factory SocketFactory, config PublisherConfig) (*Publisher, error) {
	socket, err := factory.NewPubSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = 1000
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Publisher{
		socket: socket,
		addr:   config.Address,
		stream: make(chan *flow.Edge, bufSize),
		stopCh: make(chan struct{}),
		logger: logger.With(logging.Component("feed")),
	}, nil
}

// Start binds the socket and begins draining the publish queue.
func (p *Publisher) Start() error {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return fmt.Errorf("publisher already running")
	}

	if err := p.socket.Listen(p.addr); err != nil {
		return fmt.Errorf("failed to bind PUB socket to %s: %w", p.addr, err)
	}

	p.running = true
	p.wg.Add(1)
	go p.publishLoop()

	p.logger.Info("flow publisher started", logging.String("addr", p.addr))
	return nil
}

// Stop drains and closes the publisher.
func (p *Publisher) Stop() error {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if !p.running {
		return nil
	}

	close(p.stopCh)
	p.running = false
	p.wg.Wait()

	if err := p.socket.Close(); err != nil {
		p.logger.Warn("failed to close publisher socket", logging.Error(err))
	}

	published, dropped := p.Stats()
	p.logger.Info("flow publisher stopped",
		logging.Uint64("published", published),
		logging.Uint64("dropped", dropped))
	return nil
}

// Publish queues one edge for delivery. Returns false when the queue is
// full and the record was dropped.
func (p *Publisher) Publish(e *flow.Edge) bool {
	select {
	case p.stream <- e.Clone():
		return true
	default:
		p.statsMu.Lock()
		p.dropped++
		p.statsMu.Unlock()
		return false
	}
}

// Stats reports how many records were published and dropped.
func (p *Publisher) Stats() (published, dropped uint64) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.published, p.dropped
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case e := <-p.stream:
					p.send(e)
				default:
					return
				}
			}
		case e := <-p.stream:
			p.send(e)
		}
	}
}

func (p *Publisher) send(e *flow.Edge) {
	msg, err := EncodeEdge(e)
	if err != nil {
		p.logger.Warn("failed to encode edge", logging.EdgeID(e.ID), logging.Error(err))
		return
	}
	if err := p.socket.Send(msg); err != nil {
		p.logger.Warn("failed to publish edge", logging.EdgeID(e.ID), logging.Error(err))
		return
	}
	p.statsMu.Lock()
	p.published++
	p.statsMu.Unlock()
}
