package client_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gosuda/fanout/pkg/clock"
	"github.com/gosuda/fanout/pkg/protocol"
	"github.com/gosuda/fanout/pkg/client"
)

var (
	errDial   = errors.New("dial refused")
	errClosed = errors.New("connection closed")
	epoch     = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// frameMarker is pushed after an automatic pong so tests can tell when the
// pong has been consumed.
const frameMarker protocol.FrameType = "marker"

type fakeConn struct {
	in       chan protocol.Frame
	closed   chan struct{}
	once     sync.Once
	autoPong bool

	mu   sync.Mutex
	sent []protocol.Frame
}

func newFakeConn(autoPong bool) *fakeConn {
	return &fakeConn{
		in:       make(chan protocol.Frame, 64),
		closed:   make(chan struct{}),
		autoPong: autoPong,
	}
}

func (c *fakeConn) Send(_ context.Context, f protocol.Frame) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}

	c.mu.Lock()
	c.sent = append(c.sent, f)
	c.mu.Unlock()

	if c.autoPong && f.Type == protocol.FramePing {
		c.push(protocol.Frame{Type: protocol.FramePong})
		c.push(protocol.Frame{Type: frameMarker})
	}
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (protocol.Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return protocol.Frame{}, errClosed
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// push delivers a frame from the server side.
func (c *fakeConn) push(f protocol.Frame) {
	c.in <- f
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Sent() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

// Count returns how many frames of type t were sent for channel.
func (c *fakeConn) Count(t protocol.FrameType, channel string) int {
	n := 0
	for _, f := range c.Sent() {
		if f.Type == t && f.Channel == channel {
			n++
		}
	}
	return n
}

type fakeTransport struct {
	autoPong bool

	mu       sync.Mutex
	failures int
	tokens   []string
	conns    []*fakeConn
}

func (t *fakeTransport) Dial(_ context.Context, token string) (client.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens = append(t.tokens, token)
	if t.failures > 0 {
		t.failures--
		return nil, errDial
	}
	c := newFakeConn(t.autoPong)
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) FailNext(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = n
}

func (t *fakeTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tokens)
}

func (t *fakeTransport) Tokens() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.tokens...)
}

func (t *fakeTransport) Conns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) Conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

// recordingListener collects manager events.
type recordingListener struct {
	mu     sync.Mutex
	states []client.State
	frames []protocol.Frame
}

func (l *recordingListener) OnStateChange(st client.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, st)
}

func (l *recordingListener) OnFrame(f protocol.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
}

func (l *recordingListener) FrameCount(t protocol.FrameType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, f := range l.frames {
		if f.Type == t {
			n++
		}
	}
	return n
}

func (l *recordingListener) States() []client.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]client.State(nil), l.states...)
}

func fakeClock() *clock.FakeClock {
	return clock.Fake(epoch)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
