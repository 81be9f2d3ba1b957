package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/pkg/protocol"
)

// session is one realtime connection. Only the write loop touches conn for
// writing; only the read loop mutates topics and the feed.
type session struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	feed    domain.Feed
	userID  string
	service bool

	mu     sync.RWMutex
	topics map[string]struct{}

	out chan protocol.Frame
}

func (s *session) run(ctx context.Context, cancel context.CancelFunc) error {
	var (
		wg       sync.WaitGroup
		writeErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		writeErr = s.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.forward(ctx)
	}()

	s.send(ctx, protocol.Frame{Type: protocol.FrameConnected})

	err := s.readLoop(ctx)
	cancel()
	wg.Wait()

	if writeErr != nil && !errors.Is(writeErr, context.Canceled) {
		return writeErr
	}
	return err
}

func (s *session) readLoop(ctx context.Context) error {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			s.send(ctx, protocol.Error("", "binary frames are not supported"))
			continue
		}

		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.send(ctx, protocol.Error("", "malformed frame"))
			continue
		}
		s.handle(ctx, f)
	}
}

func (s *session) handle(ctx context.Context, f protocol.Frame) {
	switch f.Type {
	case protocol.FrameSubscribe:
		s.subscribe(ctx, f.Channel)
	case protocol.FrameUnsubscribe:
		s.unsubscribe(ctx, f.Channel)
	case protocol.FramePing:
		s.send(ctx, protocol.Frame{Type: protocol.FramePong})
	default:
		log.Debug().Str("conn_id", s.id).Str("type", string(f.Type)).Msg("unknown frame")
		s.send(ctx, protocol.Error(f.Channel, "unknown frame type"))
	}
}

func (s *session) subscribe(ctx context.Context, topic string) {
	if topic == "" {
		s.send(ctx, protocol.Error("", "channel required"))
		return
	}

	if s.subscribed(topic) {
		s.send(ctx, protocol.Frame{Type: protocol.FrameSubscribed, Channel: topic})
		return
	}

	if err := s.hub.authorize(ctx, topic, s.userID, s.service); err != nil {
		if !errors.Is(err, domain.ErrForbidden) {
			log.Warn().Err(err).Str("conn_id", s.id).Str("topic", topic).Msg("authorize subscription")
		}
		s.send(ctx, protocol.Error(topic, err.Error()))
		return
	}

	if err := s.feed.Join(ctx, topic); err != nil {
		log.Warn().Err(err).Str("conn_id", s.id).Str("topic", topic).Msg("join topic")
		s.send(ctx, protocol.Error(topic, "subscribe failed"))
		return
	}

	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
	s.hub.metrics.SubscriptionAdded()

	log.Debug().Str("conn_id", s.id).Str("topic", topic).Msg("subscribed")
	s.send(ctx, protocol.Frame{Type: protocol.FrameSubscribed, Channel: topic})
}

func (s *session) unsubscribe(ctx context.Context, topic string) {
	if s.subscribed(topic) {
		s.mu.Lock()
		delete(s.topics, topic)
		s.mu.Unlock()
		s.hub.metrics.SubscriptionsRemoved(1)

		if err := s.feed.Leave(ctx, topic); err != nil {
			log.Warn().Err(err).Str("conn_id", s.id).Str("topic", topic).Msg("leave topic")
		}
	}
	s.send(ctx, protocol.Frame{Type: protocol.FrameUnsubscribed, Channel: topic})
}

// forward relays broker messages for topics the session still holds.
func (s *session) forward(ctx context.Context) {
	messages := s.feed.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if !s.subscribed(msg.Topic) {
				continue
			}
			s.send(ctx, protocol.Change(msg.Topic, msg.Payload))
		}
	}
}

func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.out:
			wctx, cancel := context.WithTimeout(ctx, s.hub.writeTimeout)
			err := wsjson.Write(wctx, s.conn, f)
			cancel()
			if err != nil {
				return err
			}
			s.hub.metrics.FrameSent(string(f.Type))
		}
	}
}

func (s *session) send(ctx context.Context, f protocol.Frame) {
	select {
	case s.out <- f:
	case <-ctx.Done():
	}
}

func (s *session) subscribed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.topics[topic]
	return ok
}

func (s *session) subscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.topics)
}
