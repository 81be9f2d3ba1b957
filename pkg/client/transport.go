package client

import (
	"context"
	"errors"

	"github.com/gosuda/fanout/pkg/protocol"
)

var (
	// ErrNotConnected is returned when a frame is sent without an open connection.
	ErrNotConnected = errors.New("client: not connected")
	// ErrClosed is returned after the client has been closed.
	ErrClosed = errors.New("client: closed")
)

// Transport opens realtime connections.
type Transport interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// Conn is one open realtime connection. Send may be called concurrently with
// Receive; Receive is only called from one goroutine.
type Conn interface {
	Send(ctx context.Context, f protocol.Frame) error
	Receive(ctx context.Context) (protocol.Frame, error)
	Close() error
}
