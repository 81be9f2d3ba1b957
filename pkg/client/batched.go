package client

import (
	"time"
)

// UpdatedAtField is the record field used as an event's observed time.
const UpdatedAtField = "updated_at"

// NewBatchedBinding returns a Binding whose events are coalesced by entity
// and delivered to handler in batches. Removing the binding flushes and stops
// its batcher.
func NewBatchedBinding(event, table, filter string, handler func([]Event), opts ...BatchOption[Event]) Binding {
	base := []BatchOption[Event]{
		WithDedupKey(func(ev Event) string { return ev.Message.EntityKey() }),
		WithTimestamp(func(ev Event) (time.Time, bool) {
			return ev.Message.Record().Time(UpdatedAtField)
		}),
	}
	b := NewBatcher(handler, append(base, opts...)...)

	return Binding{
		Event:    event,
		Table:    table,
		Filter:   filter,
		Handler:  b.Add,
		OnRemove: b.Stop,
	}
}
