package client

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/pkg/clock"
	"github.com/gosuda/fanout/pkg/protocol"
)

// State is the connection state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

var errHeartbeatTimeout = errors.New("client: heartbeat not answered")

// Listener receives connection events. Calls are made without any Manager
// lock held; OnFrame is called from the connection's receive goroutine.
type Listener interface {
	OnStateChange(st State)
	OnFrame(f protocol.Frame)
}

// Backoff returns the reconnect delay before the given attempt (1-based):
// base doubled attempt-1 times, capped at maxDelay.
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift >= 62 {
		return maxDelay
	}
	d := base << shift
	if d <= 0 || d > maxDelay || d>>shift != base {
		return maxDelay
	}
	return d
}

// Manager owns one logical realtime connection. It dials through a
// Transport, keeps it alive with heartbeats, reconnects with exponential
// backoff and re-requests every desired topic each time it connects.
//
// Every session (one dial and the connection it produces) is tagged with an
// epoch. Timers and goroutines carry the epoch they were started under and do
// nothing once it is stale, so teardown never races a late callback.
type Manager struct {
	transport Transport
	clock     clock.Clock
	cfg       settings

	mu           sync.Mutex
	listener     Listener
	state        State
	token        string
	attempts     int
	epoch        uint64
	dialing      bool
	conn         Conn
	sessionCtx   context.Context
	cancel       context.CancelFunc
	reconnect    clock.Timer
	heartbeat    clock.Timer
	awaitingPong bool
	desired      map[string]struct{}
	closed       bool
}

// NewManager creates a disconnected Manager.
func NewManager(t Transport, opts ...Option) *Manager {
	cfg := newSettings(opts)
	return &Manager{
		transport: t,
		clock:     cfg.clock,
		cfg:       cfg,
		token:     cfg.token,
		desired:   make(map[string]struct{}),
	}
}

// SetListener installs the receiver of state changes and inbound frames.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of reconnect attempts since the last
// successful connection.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Token returns the current auth token.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Topics returns the desired topics in sorted order.
func (m *Manager) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topicsLocked()
}

// Connect starts connecting. It is a no-op while connected or while a dial
// is in flight; a pending reconnect is cancelled and replaced by an immediate
// dial with a fresh attempt budget.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateConnected || m.dialing {
		m.mu.Unlock()
		return nil
	}
	stopTimer(&m.reconnect)
	m.attempts = 0
	launch := m.startDialLocked()
	l := m.listener
	m.mu.Unlock()

	m.notifyState(l, StateConnecting)
	launch()
	return nil
}

// SetAuth replaces the auth token. An unchanged token is a no-op. A changed
// token tears down any live or pending connection and dials again with the
// new token, keeping the desired topics.
func (m *Manager) SetAuth(token string) {
	m.mu.Lock()
	if m.closed || token == m.token {
		m.mu.Unlock()
		return
	}
	m.token = token
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	old := m.teardownLocked()
	m.attempts = 0
	launch := m.startDialLocked()
	l := m.listener
	m.mu.Unlock()

	closeConn(old)
	log.Debug().Msg("realtime auth changed, reconnecting")
	m.notifyState(l, StateConnecting)
	launch()
}

// Disconnect cancels every timer, closes the connection and forgets the
// desired topics. The Manager can be connected again afterwards.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	old := m.teardownLocked()
	changed := m.state != StateDisconnected
	m.state = StateDisconnected
	m.attempts = 0
	clear(m.desired)
	l := m.listener
	m.mu.Unlock()

	closeConn(old)
	if changed {
		m.notifyState(l, StateDisconnected)
	}
}

// Close disconnects and rejects further Connect calls.
func (m *Manager) Close() error {
	m.Disconnect()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Send writes f on the live connection.
func (m *Manager) Send(ctx context.Context, f protocol.Frame) error {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	conn, epoch := m.conn, m.epoch
	m.mu.Unlock()

	if err := conn.Send(ctx, f); err != nil {
		m.drop(epoch, err)
		return err
	}
	return nil
}

// AddTopic records topic as desired. It reports whether a subscribe request
// went out now; otherwise the topic is requested on the next connection.
func (m *Manager) AddTopic(topic string) bool {
	m.mu.Lock()
	if _, ok := m.desired[topic]; ok {
		m.mu.Unlock()
		return false
	}
	m.desired[topic] = struct{}{}
	if m.state != StateConnected {
		m.mu.Unlock()
		return false
	}
	conn, ctx, epoch := m.conn, m.sessionCtx, m.epoch
	m.mu.Unlock()

	if err := conn.Send(ctx, protocol.Subscribe(topic)); err != nil {
		m.drop(epoch, err)
		return false
	}
	return true
}

// RemoveTopic forgets topic, sending an unsubscribe request when connected.
func (m *Manager) RemoveTopic(topic string) bool {
	m.mu.Lock()
	if _, ok := m.desired[topic]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.desired, topic)
	if m.state != StateConnected {
		m.mu.Unlock()
		return true
	}
	conn, ctx, epoch := m.conn, m.sessionCtx, m.epoch
	m.mu.Unlock()

	if err := conn.Send(ctx, protocol.Unsubscribe(topic)); err != nil {
		m.drop(epoch, err)
	}
	return true
}

// ClearTopics forgets every desired topic.
func (m *Manager) ClearTopics() {
	for _, topic := range m.Topics() {
		m.RemoveTopic(topic)
	}
}

func (m *Manager) topicsLocked() []string {
	topics := make([]string, 0, len(m.desired))
	for t := range m.desired {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

// startDialLocked begins a new session. The returned func launches the dial
// and is called after the lock is released and Connecting has been reported.
func (m *Manager) startDialLocked() (launch func()) {
	m.epoch++
	epoch := m.epoch
	ctx, cancel := context.WithCancel(context.Background())
	m.sessionCtx = ctx
	m.cancel = cancel
	m.state = StateConnecting
	m.dialing = true
	token := m.token

	return func() { go m.dial(ctx, epoch, token) }
}

func (m *Manager) dial(ctx context.Context, epoch uint64, token string) {
	conn, err := m.transport.Dial(ctx, token)

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.dialing = false

	if err != nil {
		log.Warn().Err(err).Msg("realtime dial failed")
		st := m.scheduleReconnectLocked()
		l := m.listener
		m.mu.Unlock()
		if st == StateDisconnected {
			m.notifyState(l, st)
		}
		return
	}

	m.conn = conn
	m.state = StateConnected
	m.attempts = 0
	m.awaitingPong = false
	m.scheduleHeartbeatLocked(epoch)
	topics := m.topicsLocked()
	l := m.listener
	m.mu.Unlock()

	log.Info().Int("topics", len(topics)).Msg("realtime connected")
	m.notifyState(l, StateConnected)

	for _, topic := range topics {
		if err := conn.Send(ctx, protocol.Subscribe(topic)); err != nil {
			m.drop(epoch, err)
			return
		}
	}

	m.receive(ctx, epoch, conn, l)
}

func (m *Manager) receive(ctx context.Context, epoch uint64, conn Conn, l Listener) {
	for {
		f, err := conn.Receive(ctx)
		if err != nil {
			m.drop(epoch, err)
			return
		}

		if f.Type == protocol.FramePong {
			m.mu.Lock()
			if epoch == m.epoch {
				m.awaitingPong = false
			}
			m.mu.Unlock()
			continue
		}

		if l != nil {
			l.OnFrame(f)
		}
	}
}

// drop handles an involuntary loss of the session tagged epoch.
func (m *Manager) drop(epoch uint64, cause error) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	old := m.teardownLocked()
	st := m.scheduleReconnectLocked()
	l := m.listener
	m.mu.Unlock()

	closeConn(old)
	if !errors.Is(cause, context.Canceled) {
		log.Info().Err(cause).Msg("realtime connection dropped")
	}
	m.notifyState(l, st)
}

// scheduleReconnectLocked arms the backoff timer, or gives up once the
// attempt ceiling is reached. It returns the resulting state.
func (m *Manager) scheduleReconnectLocked() State {
	stopTimer(&m.heartbeat)
	stopTimer(&m.reconnect)

	if m.cfg.maxAttempts > 0 && m.attempts >= m.cfg.maxAttempts {
		m.state = StateDisconnected
		log.Warn().Int("attempts", m.attempts).Msg("realtime reconnect attempts exhausted")
		return m.state
	}

	m.attempts++
	delay := Backoff(m.cfg.backoffBase, m.cfg.backoffMax, m.attempts)
	m.state = StateConnecting
	epoch := m.epoch
	m.reconnect = m.clock.AfterFunc(delay, func() { m.fireReconnect(epoch) })

	log.Debug().Int("attempt", m.attempts).Dur("delay", delay).Msg("realtime reconnect scheduled")
	return m.state
}

func (m *Manager) fireReconnect(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnecting || m.dialing || m.closed {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	launch := m.startDialLocked()
	m.mu.Unlock()

	launch()
}

func (m *Manager) scheduleHeartbeatLocked(epoch uint64) {
	stopTimer(&m.heartbeat)
	m.heartbeat = m.clock.AfterFunc(m.cfg.heartbeat, func() { m.beat(epoch) })
}

// beat sends a ping. A ping still unanswered from the previous beat means
// the connection is dead.
func (m *Manager) beat(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	if m.awaitingPong {
		m.mu.Unlock()
		log.Warn().Msg("realtime heartbeat timed out")
		m.drop(epoch, errHeartbeatTimeout)
		return
	}
	m.awaitingPong = true
	conn, ctx := m.conn, m.sessionCtx
	m.scheduleHeartbeatLocked(epoch)
	m.mu.Unlock()

	if err := conn.Send(ctx, protocol.Ping()); err != nil {
		m.drop(epoch, err)
	}
}

// teardownLocked ends the current session and returns its connection, which
// the caller closes after releasing the lock.
func (m *Manager) teardownLocked() Conn {
	m.epoch++
	stopTimer(&m.reconnect)
	stopTimer(&m.heartbeat)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.dialing = false
	m.awaitingPong = false
	conn := m.conn
	m.conn = nil
	return conn
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func closeConn(c Conn) {
	if c != nil {
		_ = c.Close()
	}
}

func (m *Manager) notifyState(l Listener, st State) {
	if m.cfg.onState != nil {
		m.cfg.onState(st)
	}
	if l != nil {
		l.OnStateChange(st)
	}
}
