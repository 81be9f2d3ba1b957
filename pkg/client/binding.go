package client

import (
	"strings"

	"github.com/gosuda/fanout/pkg/protocol"
)

// EventAll matches every operation.
const EventAll = "*"

// Event is one change delivered on a topic.
type Event struct {
	Topic   string
	Message protocol.ChangeMessage
}

// Binding routes matching changes on a topic to Handler.
type Binding struct {
	// Event is an operation name or EventAll. Empty matches everything.
	Event string
	// Table matches the changed table in any spelling. Empty or "*" matches all.
	Table string
	// Filter is a record filter of the form field=eq.value or field=neq.value.
	// Anything else matches every record.
	Filter  string
	Handler func(Event)
	// OnRemove runs once when the binding is removed from its subscription.
	OnRemove func()
}

// Matches reports whether the binding accepts msg.
func (b Binding) Matches(msg protocol.ChangeMessage) bool {
	if b.Event != "" && b.Event != EventAll {
		op, ok := protocol.ParseOperation(b.Event)
		if !ok || op != msg.Event {
			return false
		}
	}
	if b.Table != "" && b.Table != "*" && protocol.SnakeCase(b.Table) != protocol.SnakeCase(msg.Table) {
		return false
	}
	return ParseFilter(b.Filter).Match(msg.Record())
}

// Filter is a parsed record filter. The zero value matches everything.
type Filter struct {
	Field  string
	Negate bool
	Value  string
	valid  bool
}

// ParseFilter parses field=eq.value or field=neq.value. Unrecognized input
// yields a filter that matches everything.
func ParseFilter(s string) Filter {
	field, expr, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok || field == "" {
		return Filter{}
	}
	switch {
	case strings.HasPrefix(expr, "eq."):
		return Filter{Field: field, Value: strings.TrimPrefix(expr, "eq."), valid: true}
	case strings.HasPrefix(expr, "neq."):
		return Filter{Field: field, Negate: true, Value: strings.TrimPrefix(expr, "neq."), valid: true}
	default:
		return Filter{}
	}
}

// Match evaluates the filter against rec.
func (f Filter) Match(rec protocol.Record) bool {
	if !f.valid {
		return true
	}
	eq := rec.String(f.Field) == f.Value
	return eq != f.Negate
}

// dispatch delivers ev to every binding that matches it.
func dispatch(bindings []*Binding, ev Event) {
	for _, b := range bindings {
		if b.Handler != nil && b.Matches(ev.Message) {
			b.Handler(ev)
		}
	}
}
