package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/gosuda/fanout/internal/domain"
)

// DefaultChannelPrefix namespaces fanout channels on a shared Redis.
const DefaultChannelPrefix = "fanout:"

// feedBuffer is the per-feed delivery buffer.
const feedBuffer = 64

type PubSub struct {
	client *redis.Client
	prefix string
}

func New(ctx context.Context, addr, password string, db int, prefix string) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client. An empty prefix uses
// DefaultChannelPrefix.
func NewWithClient(client *redis.Client, prefix string) *PubSub {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &PubSub{client: client, prefix: prefix}
}

// Client returns the underlying Redis client.
func (ps *PubSub) Client() *redis.Client {
	return ps.client
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ps.client.Publish(ctx, ps.Channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

// Open starts a feed backed by a single Redis subscription connection.
func (ps *PubSub) Open(ctx context.Context) (domain.Feed, error) {
	sub := ps.client.Subscribe(ctx)

	f := &feed{
		ps:   ps,
		sub:  sub,
		out:  make(chan domain.BrokerMessage, feedBuffer),
		done: make(chan struct{}),
	}
	go f.pump(sub.Channel())

	return f, nil
}

// Channel returns the Redis channel name for a topic.
func (ps *PubSub) Channel(topic string) string {
	return ps.prefix + topic
}

// Topic maps a Redis channel name back to its topic.
func (ps *PubSub) Topic(channel string) (string, bool) {
	return strings.CutPrefix(channel, ps.prefix)
}

type feed struct {
	ps   *PubSub
	sub  *redis.PubSub
	out  chan domain.BrokerMessage
	done chan struct{}
	once sync.Once
}

func (f *feed) Join(ctx context.Context, topic string) error {
	if err := f.sub.Subscribe(ctx, f.ps.Channel(topic)); err != nil {
		return fmt.Errorf("redis.feed.Join: %w", err)
	}
	return nil
}

func (f *feed) Leave(ctx context.Context, topic string) error {
	if err := f.sub.Unsubscribe(ctx, f.ps.Channel(topic)); err != nil {
		return fmt.Errorf("redis.feed.Leave: %w", err)
	}
	return nil
}

func (f *feed) Messages() <-chan domain.BrokerMessage {
	return f.out
}

func (f *feed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.sub.Close()
	})
	if err != nil {
		return fmt.Errorf("redis.feed.Close: %w", err)
	}
	return nil
}

func (f *feed) pump(in <-chan *redis.Message) {
	defer close(f.out)
	for {
		select {
		case <-f.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			topic, ok := f.ps.Topic(msg.Channel)
			if !ok {
				continue
			}
			select {
			case f.out <- domain.BrokerMessage{Topic: topic, Payload: []byte(msg.Payload)}:
			case <-f.done:
				return
			}
		}
	}
}
