package client

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/pkg/clock"
	"github.com/gosuda/fanout/pkg/protocol"
)

// SubscriptionState tracks a topic's standing with the server.
type SubscriptionState string

const (
	SubscriptionClosed       SubscriptionState = "CLOSED"
	SubscriptionSubscribed   SubscriptionState = "SUBSCRIBED"
	SubscriptionTimedOut     SubscriptionState = "TIMED_OUT"
	SubscriptionChannelError SubscriptionState = "CHANNEL_ERROR"
)

// Connection is the part of a Manager the Registry drives.
type Connection interface {
	AddTopic(topic string) bool
	RemoveTopic(topic string) bool
	ClearTopics()
	SetListener(l Listener)
}

// TopicStore persists desired topics under a key.
type TopicStore interface {
	SaveTopics(ctx context.Context, key string, topics []string) error
	LoadTopics(ctx context.Context, key string) ([]string, error)
}

type subscription struct {
	topic     string
	bindings  []*Binding
	state     SubscriptionState
	joinTimer clock.Timer
	joinSeq   uint64
}

// Registry is the set of desired topics and the bindings attached to each.
// Topics outlive the connection: they are requested again every time the
// Connection reaches CONNECTED.
type Registry struct {
	conn        Connection
	clock       clock.Clock
	joinTimeout time.Duration
	onStatus    func(topic string, st SubscriptionState)

	mu   sync.Mutex
	subs map[string]*subscription
}

// NewRegistry creates a Registry and installs it as conn's listener.
func NewRegistry(conn Connection, opts ...Option) *Registry {
	cfg := newSettings(opts)
	r := &Registry{
		conn:        conn,
		clock:       cfg.clock,
		joinTimeout: cfg.joinTimeout,
		onStatus:    cfg.onStatus,
		subs:        make(map[string]*subscription),
	}
	conn.SetListener(r)
	return r
}

// Subscribe makes topic desired with the given bindings. Subscribing to a
// topic that is already desired is a no-op and reports false.
func (r *Registry) Subscribe(topic string, bindings ...Binding) bool {
	r.mu.Lock()
	if _, ok := r.subs[topic]; ok {
		r.mu.Unlock()
		return false
	}
	sub := &subscription{topic: topic, state: SubscriptionClosed}
	for i := range bindings {
		b := bindings[i]
		sub.bindings = append(sub.bindings, &b)
	}
	r.subs[topic] = sub
	r.mu.Unlock()

	if r.conn.AddTopic(topic) {
		r.startJoin(topic)
	}
	return true
}

// Bind attaches b to an existing subscription and returns a function that
// removes it again.
func (r *Registry) Bind(topic string, b Binding) (remove func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, found := r.subs[topic]
	if !found {
		return func() {}, false
	}
	bp := &b
	sub.bindings = append(sub.bindings, bp)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			removed := false
			if cur, ok := r.subs[topic]; ok && cur == sub {
				if i := slices.Index(cur.bindings, bp); i >= 0 {
					cur.bindings = slices.Delete(cur.bindings, i, i+1)
					removed = true
				}
			}
			r.mu.Unlock()
			if removed && bp.OnRemove != nil {
				bp.OnRemove()
			}
		})
	}, true
}

// Unsubscribe forgets topic and its bindings. Unknown topics report false.
func (r *Registry) Unsubscribe(topic string) bool {
	r.mu.Lock()
	sub, ok := r.subs[topic]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.subs, topic)
	stopTimer(&sub.joinTimer)
	bindings := sub.bindings
	sub.bindings = nil
	r.mu.Unlock()

	r.conn.RemoveTopic(topic)
	removeBindings(bindings)
	r.notify(topic, SubscriptionClosed)
	return true
}

// UnsubscribeAll forgets every topic.
func (r *Registry) UnsubscribeAll() {
	r.mu.Lock()
	subs := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		stopTimer(&sub.joinTimer)
		subs = append(subs, sub)
	}
	clear(r.subs)
	r.mu.Unlock()

	r.conn.ClearTopics()
	for _, sub := range subs {
		removeBindings(sub.bindings)
		r.notify(sub.topic, SubscriptionClosed)
	}
}

// Topics returns the desired topics in sorted order.
func (r *Registry) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := make([]string, 0, len(r.subs))
	for t := range r.subs {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

// State returns the state of topic's subscription.
func (r *Registry) State(topic string) (SubscriptionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[topic]
	if !ok {
		return "", false
	}
	return sub.state, true
}

// Persist stores the desired topics under key.
func (r *Registry) Persist(ctx context.Context, store TopicStore, key string) error {
	if err := store.SaveTopics(ctx, key, r.Topics()); err != nil {
		return fmt.Errorf("client.Registry.Persist: %w", err)
	}
	return nil
}

// Restore subscribes to every topic stored under key, asking factory for the
// bindings of each. It returns the topics that were newly subscribed.
func (r *Registry) Restore(ctx context.Context, store TopicStore, key string, factory func(topic string) []Binding) ([]string, error) {
	topics, err := store.LoadTopics(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("client.Registry.Restore: %w", err)
	}

	var restored []string
	for _, topic := range topics {
		var bindings []Binding
		if factory != nil {
			bindings = factory(topic)
		}
		if r.Subscribe(topic, bindings...) {
			restored = append(restored, topic)
		}
	}
	return restored, nil
}

// OnStateChange implements Listener.
func (r *Registry) OnStateChange(st State) {
	switch st {
	case StateConnected:
		// Re-adding is a no-op for topics the connection still holds and
		// restores those an explicit Disconnect dropped.
		for _, topic := range r.Topics() {
			r.conn.AddTopic(topic)
			r.startJoin(topic)
		}
	default:
		var closed []string
		r.mu.Lock()
		for _, sub := range r.subs {
			stopTimer(&sub.joinTimer)
			sub.joinSeq++
			if sub.state != SubscriptionClosed {
				sub.state = SubscriptionClosed
				closed = append(closed, sub.topic)
			}
		}
		r.mu.Unlock()
		for _, topic := range closed {
			r.notify(topic, SubscriptionClosed)
		}
	}
}

// OnFrame implements Listener.
func (r *Registry) OnFrame(f protocol.Frame) {
	switch f.Type {
	case protocol.FrameChange:
		msg, err := f.DecodeChange()
		if err != nil {
			log.Warn().Err(err).Str("topic", f.Channel).Msg("undecodable change frame")
			return
		}
		r.mu.Lock()
		sub, ok := r.subs[f.Channel]
		var bindings []*Binding
		if ok {
			bindings = slices.Clone(sub.bindings)
		}
		r.mu.Unlock()
		dispatch(bindings, Event{Topic: f.Channel, Message: msg})

	case protocol.FrameSubscribed:
		r.setState(f.Channel, SubscriptionSubscribed)

	case protocol.FrameError:
		if f.Channel == "" {
			log.Warn().Str("message", f.Message).Msg("realtime server error")
			return
		}
		log.Warn().Str("topic", f.Channel).Str("message", f.Message).Msg("realtime channel error")
		r.setState(f.Channel, SubscriptionChannelError)

	case protocol.FrameConnected, protocol.FrameUnsubscribed, protocol.FramePong:
	default:
		log.Debug().Str("type", string(f.Type)).Msg("unknown realtime frame")
	}
}

// startJoin marks topic as awaiting acknowledgement and arms its join timer.
func (r *Registry) startJoin(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[topic]
	// Every drop resets state to CLOSED, so SUBSCRIBED here means the ack for
	// this connection already arrived.
	if !ok || sub.state == SubscriptionSubscribed {
		return
	}
	stopTimer(&sub.joinTimer)
	sub.joinSeq++
	seq := sub.joinSeq
	sub.joinTimer = r.clock.AfterFunc(r.joinTimeout, func() { r.joinExpired(sub, seq) })
}

func (r *Registry) joinExpired(sub *subscription, seq uint64) {
	r.mu.Lock()
	if r.subs[sub.topic] != sub || sub.joinSeq != seq || sub.state == SubscriptionSubscribed {
		r.mu.Unlock()
		return
	}
	sub.state = SubscriptionTimedOut
	sub.joinTimer = nil
	r.mu.Unlock()

	log.Warn().Str("topic", sub.topic).Msg("realtime subscribe timed out")
	r.notify(sub.topic, SubscriptionTimedOut)
}

func (r *Registry) setState(topic string, st SubscriptionState) {
	r.mu.Lock()
	sub, ok := r.subs[topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	stopTimer(&sub.joinTimer)
	changed := sub.state != st
	sub.state = st
	r.mu.Unlock()

	if changed {
		r.notify(topic, st)
	}
}

func (r *Registry) notify(topic string, st SubscriptionState) {
	if r.onStatus != nil {
		r.onStatus(topic, st)
	}
}

func removeBindings(bindings []*Binding) {
	for _, b := range bindings {
		if b.OnRemove != nil {
			b.OnRemove()
		}
	}
}
