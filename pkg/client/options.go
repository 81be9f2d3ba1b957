package client

import (
	"time"

	"github.com/gosuda/fanout/pkg/clock"
)

const (
	DefaultHeartbeat   = 30 * time.Second
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
	DefaultMaxAttempts = 10
	DefaultJoinTimeout = 10 * time.Second
)

type settings struct {
	clock       clock.Clock
	token       string
	heartbeat   time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration
	maxAttempts int
	joinTimeout time.Duration
	onState     func(State)
	onStatus    func(topic string, st SubscriptionState)
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:       clock.Real(),
		heartbeat:   DefaultHeartbeat,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		maxAttempts: DefaultMaxAttempts,
		joinTimeout: DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.backoffMax < s.backoffBase {
		s.backoffMax = s.backoffBase
	}
	return s
}

// Option configures a Manager, Registry or Client. Options that do not
// apply to a component are ignored by it.
type Option func(*settings)

// WithClock replaces the wall clock driving every timer.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithToken sets the initial auth token.
func WithToken(token string) Option {
	return func(s *settings) { s.token = token }
}

// WithHeartbeat sets the ping interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithBackoff sets the first reconnect delay and its cap.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(s *settings) {
		if base > 0 {
			s.backoffBase = base
		}
		if maxDelay > 0 {
			s.backoffMax = maxDelay
		}
	}
}

// WithMaxAttempts bounds consecutive reconnect attempts. Zero means no limit.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// WithJoinTimeout sets how long a subscribe may wait for its acknowledgement.
func WithJoinTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.joinTimeout = d
		}
	}
}

// WithStateHandler observes connection state transitions.
func WithStateHandler(fn func(State)) Option {
	return func(s *settings) { s.onState = fn }
}

// WithStatusHandler observes subscription state changes.
func WithStatusHandler(fn func(topic string, st SubscriptionState)) Option {
	return func(s *settings) { s.onStatus = fn }
}
