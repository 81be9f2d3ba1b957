package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Operation is the kind of mutation a producer reports.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// ParseOperation accepts an operation name in any case.
func ParseOperation(s string) (Operation, bool) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete:
		return op, true
	default:
		return "", false
	}
}

// Record is a row image as reported by a producer. Keys may be snake_case or
// camelCase; lookups through the helper methods accept either.
type Record map[string]any

// Value returns the raw value stored under field, trying the name as given
// and then its snake_case and camelCase spellings.
func (r Record) Value(field string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r[field]; ok {
		return v, true
	}
	snake := SnakeCase(field)
	if v, ok := r[snake]; ok {
		return v, true
	}
	if v, ok := r[CamelCase(snake)]; ok {
		return v, true
	}
	return nil, false
}

// String returns the field rendered as a string, or "" when it is absent or null.
func (r Record) String(field string) string {
	v, ok := r.Value(field)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Time parses the field as an RFC 3339 timestamp.
func (r Record) Time(field string) (time.Time, bool) {
	v, ok := r.Value(field)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}


// EntityType is the coarse classification clients route on.
type EntityType string

const (
	EntityBoard      EntityType = "board"
	EntityColumn     EntityType = "column"
	EntityCard       EntityType = "card"
	EntityCardDetail EntityType = "cardDetail"
	EntityMember     EntityType = "member"
	EntityWorkspace  EntityType = "workspace"
)

// SnakeCase normalizes "boardMembers", "BoardMembers", "board-members" and
// "board_members" to "board_members".
func SnakeCase(s string) string {
	runes := []rune(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(runes) + 4)
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CamelCase converts a snake_case name to lowerCamelCase.
func CamelCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.Grow(len(s))
	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if first {
			b.WriteString(p)
			first = false
			continue
		}
		runes := []rune(p)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}
