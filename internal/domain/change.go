package domain

import "github.com/gosuda/fanout/pkg/protocol"

// Operation is the kind of mutation a producer reports.
type Operation = protocol.Operation

const (
	OperationInsert = protocol.OperationInsert
	OperationUpdate = protocol.OperationUpdate
	OperationDelete = protocol.OperationDelete
)

// ParseOperation accepts an operation name in any case.
func ParseOperation(s string) (Operation, bool) {
	return protocol.ParseOperation(s)
}

// Record is a row image as reported by a producer.
type Record = protocol.Record

// ChangeNotice is what a producer hands to the broadcaster after a mutation.
type ChangeNotice struct {
	Table       string
	Operation   Operation
	New         Record
	Old         Record
	BoardIDHint string
}

// Present returns the record that describes the row after the change: the new
// image when there is one, else the old image.
func (n ChangeNotice) Present() Record {
	if n.New != nil {
		return n.New
	}
	return n.Old
}

// SnakeCase normalizes a table or field name to snake_case.
func SnakeCase(s string) string { return protocol.SnakeCase(s) }

// CamelCase converts a snake_case name to lowerCamelCase.
func CamelCase(s string) string { return protocol.CamelCase(s) }
