// Package memory provides in-process implementations of the store
// interfaces for single-node deployments and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/internal/metrics"
)

// ErrClosed is returned by operations on a closed feed or broker.
var ErrClosed = errors.New("memory: closed")

const feedBuffer = 64

// Broker fans payloads out to feeds in the same process. A feed whose
// buffer is full drops the message rather than blocking the publisher; every
// drop is logged and counted.
type Broker struct {
	metrics *metrics.Metrics
	feeds   atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex
	topics map[string]map[*feed]struct{}
	closed bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithMetrics counts dropped messages in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{topics: make(map[string]map[*feed]struct{})}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("memory.Broker.Publish: %w", ErrClosed)
	}

	for f := range b.topics[topic] {
		f.deliver(domain.BrokerMessage{Topic: topic, Payload: slices.Clone(payload)})
	}
	return nil
}

func (b *Broker) Open(_ context.Context) (domain.Feed, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("memory.Broker.Open: %w", ErrClosed)
	}

	return &feed{
		id:     b.feeds.Add(1),
		broker: b,
		joined: make(map[string]struct{}),
		out:    make(chan domain.BrokerMessage, feedBuffer),
	}, nil
}

// Dropped returns how many messages were discarded for full feeds.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of feeds joined to topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close detaches every feed and rejects further use.
func (b *Broker) Close() error {
	b.mu.Lock()
	feeds := make(map[*feed]struct{})
	for _, set := range b.topics {
		for f := range set {
			feeds[f] = struct{}{}
		}
	}
	b.topics = make(map[string]map[*feed]struct{})
	b.closed = true
	b.mu.Unlock()

	for f := range feeds {
		f.shutdown()
	}
	return nil
}

func (b *Broker) join(f *feed, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[*feed]struct{})
		b.topics[topic] = set
	}
	set[f] = struct{}{}
	return nil
}

func (b *Broker) leave(f *feed, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.topics[topic]
	delete(set, f)
	if len(set) == 0 {
		delete(b.topics, topic)
	}
}

// feed locks are always taken after the broker lock, never before.
type feed struct {
	id     uint64
	broker *Broker

	mu     sync.Mutex
	joined map[string]struct{}
	out    chan domain.BrokerMessage
	closed bool
}

func (f *feed) Join(_ context.Context, topic string) error {
	if f.isClosed() {
		return fmt.Errorf("memory.feed.Join: %w", ErrClosed)
	}
	if err := f.broker.join(f, topic); err != nil {
		return fmt.Errorf("memory.feed.Join: %w", err)
	}

	f.mu.Lock()
	closed := f.closed
	if !closed {
		f.joined[topic] = struct{}{}
	}
	f.mu.Unlock()

	if closed {
		f.broker.leave(f, topic)
		return fmt.Errorf("memory.feed.Join: %w", ErrClosed)
	}
	return nil
}

func (f *feed) Leave(_ context.Context, topic string) error {
	if f.isClosed() {
		return fmt.Errorf("memory.feed.Leave: %w", ErrClosed)
	}
	f.broker.leave(f, topic)

	f.mu.Lock()
	delete(f.joined, topic)
	f.mu.Unlock()
	return nil
}

func (f *feed) Messages() <-chan domain.BrokerMessage {
	return f.out
}

func (f *feed) Close() error {
	f.mu.Lock()
	topics := make([]string, 0, len(f.joined))
	for t := range f.joined {
		topics = append(topics, t)
	}
	f.mu.Unlock()

	for _, t := range topics {
		f.broker.leave(f, t)
	}
	f.shutdown()
	return nil
}

func (f *feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *feed) shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.joined = nil
	close(f.out)
}

// deliver is called with the broker read lock held.
func (f *feed) deliver(msg domain.BrokerMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	select {
	case f.out <- msg:
	default:
		f.broker.dropped.Add(1)
		ns, _, _ := domain.ParseTopic(msg.Topic)
		f.broker.metrics.BrokerDrop("memory", ns)
		log.Warn().
			Str("topic", msg.Topic).
			Uint64("feed_id", f.id).
			Int("buffer", cap(f.out)).
			Msg("memory broker feed full, dropping message")
	}
}
