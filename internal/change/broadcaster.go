package change

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/internal/metrics"
	"github.com/gosuda/fanout/pkg/protocol"
)

// Publisher delivers a payload to every connection subscribed to channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type publisherBox struct{ p Publisher }

// Broadcaster is the single ingress for mutation reports. It never returns an
// error to producers; failures are logged.
type Broadcaster struct {
	publisher atomic.Pointer[publisherBox]
	resolver  *WorkspaceResolver
	metrics   *metrics.Metrics
	timeout   time.Duration
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithPublisher attaches the transport at construction time.
func WithPublisher(p Publisher) Option {
	return func(b *Broadcaster) { b.SetPublisher(p) }
}

// WithMetrics records emit and publish counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

// WithTimeout bounds the time spent resolving and publishing one change.
func WithTimeout(d time.Duration) Option {
	return func(b *Broadcaster) { b.timeout = d }
}

// NewBroadcaster creates a Broadcaster resolving workspaces through resolver.
func NewBroadcaster(resolver *WorkspaceResolver, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		resolver: resolver,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetPublisher attaches or replaces the transport. Passing nil detaches it.
func (b *Broadcaster) SetPublisher(p Publisher) {
	if p == nil {
		b.publisher.Store(nil)
		return
	}
	b.publisher.Store(&publisherBox{p: p})
}

// Resolver returns the workspace resolver used by the broadcaster.
func (b *Broadcaster) Resolver() *WorkspaceResolver {
	return b.resolver
}

// EmitChange reports a completed mutation.
func (b *Broadcaster) EmitChange(ctx context.Context, table string, op domain.Operation, newRecord, oldRecord domain.Record, boardIDHint string) {
	b.Emit(ctx, domain.ChangeNotice{
		Table:       table,
		Operation:   op,
		New:         newRecord,
		Old:         oldRecord,
		BoardIDHint: boardIDHint,
	})
}

// Emit reports a completed mutation described by n.
func (b *Broadcaster) Emit(ctx context.Context, n domain.ChangeNotice) {
	b.metrics.ChangeEmitted(NormalizeTable(n.Table), string(n.Operation))

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	entity := ResolveEntity(n.Table, n.New, n.Old)
	present := n.Present()

	// Invalidate before any resolution for this change.
	for _, boardID := range invalidations(n, entity) {
		b.resolver.Invalidate(boardID)
	}

	box := b.publisher.Load()
	if box == nil {
		log.Warn().Str("table", n.Table).Str("operation", string(n.Operation)).Msg("realtime transport not initialized, change not broadcast")
		return
	}

	hints := hintsFor(n, entity, present)
	workspaceID, resolved := b.resolver.Resolve(ctx, hints)

	topics := topicsFor(n, entity, present, workspaceID, resolved)

	data, err := json.Marshal(buildMessage(n, entity, workspaceID))
	if err != nil {
		log.Warn().Err(err).Str("table", n.Table).Msg("encode change message")
		return
	}

	for _, topic := range topics {
		pubErr := box.p.Publish(ctx, topic, data)
		ns, _, _ := domain.ParseTopic(topic)
		b.metrics.Published(ns, pubErr)
		if pubErr != nil {
			log.Warn().Err(pubErr).Str("topic", topic).Str("table", n.Table).Msg("publish change")
		}
	}
}

// invalidations lists the boards whose cached ownership the change makes stale.
func invalidations(n domain.ChangeNotice, entity domain.ResolvedEntity) []string {
	if IsMembershipTable(n.Table) {
		boardID := n.Present().String("board_id")
		if boardID == "" {
			boardID = n.Old.String("board_id")
		}
		if boardID == "" {
			boardID = n.BoardIDHint
		}
		if boardID == "" {
			return nil
		}
		return []string{boardID}
	}

	if entity.Type == domain.EntityBoard && NormalizeTable(n.Table) == "boards" && entity.ID != "" {
		if n.Operation == domain.OperationDelete || movedFrom(n) != "" {
			return []string{entity.ID}
		}
	}

	return nil
}

// movedFrom returns the previous workspace of a board whose workspace changed.
func movedFrom(n domain.ChangeNotice) string {
	if n.Operation != domain.OperationUpdate || NormalizeTable(n.Table) != "boards" {
		return ""
	}
	before := n.Old.String("workspace_id")
	after := n.New.String("workspace_id")
	if before == "" || after == "" || before == after {
		return ""
	}
	return before
}

func hintsFor(n domain.ChangeNotice, entity domain.ResolvedEntity, present domain.Record) Hints {
	h := Hints{
		EntityType:  entity.Type,
		EntityID:    entity.ID,
		WorkspaceID: present.String("workspace_id"),
		BoardID:     present.String("board_id"),
		ColumnID:    present.String("column_id"),
		CardID:      present.String("card_id"),
	}
	if h.BoardID == "" {
		h.BoardID = n.BoardIDHint
	}
	return h
}

// topicsFor lists destinations in publish order. The owning workspace always
// comes first when it is known.
func topicsFor(n domain.ChangeNotice, entity domain.ResolvedEntity, present domain.Record, workspaceID string, resolved bool) []string {
	topics := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}

	if resolved {
		add(domain.WorkspaceTopic(workspaceID))
	}
	if prev := movedFrom(n); prev != "" {
		add(domain.WorkspaceTopic(prev))
	}
	if entity.Type == domain.EntityMember {
		if userID := present.String("user_id"); userID != "" {
			add(domain.UserTopic(userID))
		}
	}
	if !resolved {
		add(domain.GlobalTopic)
	}

	return topics
}

func buildMessage(n domain.ChangeNotice, entity domain.ResolvedEntity, workspaceID string) protocol.ChangeMessage {
	payload := protocol.ChangePayload{
		ID:          entity.ID,
		EntityType:  entity.Type,
		ParentID:    entity.ParentID,
		WorkspaceID: workspaceID,
	}

	switch n.Operation {
	case domain.OperationUpdate:
		payload.New = n.New
		payload.Old = n.Old
	case domain.OperationDelete:
		payload.Old = n.Old
	case domain.OperationInsert:
		payload.New = n.New
	}

	return protocol.ChangeMessage{
		Event:   n.Operation,
		Table:   n.Table,
		Payload: payload,
	}
}
