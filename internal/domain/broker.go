package domain

import "context"

// BrokerMessage is one payload delivered on a topic.
type BrokerMessage struct {
	Topic   string
	Payload []byte
}

// Broker fans payloads out to every feed joined to a topic.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Open(ctx context.Context) (Feed, error)
}

// Feed is one subscriber's view of a Broker. Topics are joined and left
// dynamically; Messages is closed after Close.
type Feed interface {
	Join(ctx context.Context, topic string) error
	Leave(ctx context.Context, topic string) error
	Messages() <-chan BrokerMessage
	Close() error
}
