package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/internal/metrics"
	"github.com/gosuda/fanout/pkg/protocol"
	"github.com/gosuda/fanout/internal/server/middleware"
)

const (
	defaultWriteTimeout = 10 * time.Second
	outboundBuffer      = 64
)

// Hub bridges WebSocket connections to a Broker. Each connection gets its own
// Feed, so topics are joined and left as the client subscribes.
type Hub struct {
	broker       domain.Broker
	members      domain.MembershipRepository
	metrics      *metrics.Metrics
	origins      []string
	writeTimeout time.Duration
}

// Option configures a Hub.
type Option func(*Hub)

// WithMembership enables workspace topics for non-service callers.
func WithMembership(repo domain.MembershipRepository) Option {
	return func(h *Hub) { h.members = repo }
}

// WithMetrics records connection, subscription and frame counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithOriginPatterns sets the origins allowed to open cross-origin connections.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) { h.writeTimeout = d }
}

// NewHub creates a new WebSocket hub.
func NewHub(broker domain.Broker, opts ...Option) *Hub {
	h := &Hub{
		broker:       broker,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeRealtime upgrades an authenticated request and runs the subscription
// protocol until either side closes.
func (h *Hub) ServeRealtime(w http.ResponseWriter, r *http.Request) {
	role, ok := middleware.RoleFromContext(r.Context())
	if !ok || role == "" {
		http.Error(w, `{"title":"Unauthorized","status":401,"detail":"authentication required"}`, http.StatusUnauthorized)
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed, err := h.broker.Open(ctx)
	if err != nil {
		log.Error().Err(err).Msg("websocket open feed")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	s := &session{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		feed:    feed,
		userID:  userID,
		service: role == middleware.RoleService,
		topics:  make(map[string]struct{}),
		out:     make(chan protocol.Frame, outboundBuffer),
	}

	h.metrics.ConnectionOpened()
	log.Info().Str("conn_id", s.id).Str("user_id", userID).Str("role", role).Msg("realtime connection opened")

	err = s.run(ctx, cancel)

	h.metrics.ConnectionClosed()
	h.metrics.SubscriptionsRemoved(s.subscriptionCount())
	if closeErr := feed.Close(); closeErr != nil {
		log.Debug().Err(closeErr).Str("conn_id", s.id).Msg("close feed")
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
	case websocket.CloseStatus(err) != -1:
	default:
		log.Debug().Err(err).Str("conn_id", s.id).Msg("realtime connection ended")
		_ = conn.Close(websocket.StatusInternalError, "connection error")
	}
	log.Info().Str("conn_id", s.id).Msg("realtime connection closed")
}

// authorize reports whether the caller may subscribe to topic.
func (h *Hub) authorize(ctx context.Context, topic, userID string, service bool) error {
	ns, id, ok := domain.ParseTopic(topic)
	if !ok {
		return fmt.Errorf("invalid channel %q", topic)
	}

	switch ns {
	case domain.TopicNamespaceGlobal:
		return nil
	case domain.TopicNamespaceUser:
		if service || (userID != "" && id == userID) {
			return nil
		}
		return domain.ErrForbidden
	case domain.TopicNamespaceWorkspace:
		if service {
			return nil
		}
		if userID == "" || h.members == nil {
			return domain.ErrForbidden
		}
		member, err := h.members.IsWorkspaceMember(ctx, id, userID)
		if err != nil {
			return fmt.Errorf("ws.Hub.authorize: %w", err)
		}
		if !member {
			return domain.ErrForbidden
		}
		return nil
	default:
		return domain.ErrForbidden
	}
}
