// Package change turns producer mutation reports into topic broadcasts: it
// classifies the changed row, finds the owning workspace and publishes a
// normalized payload to every interested topic.
package change

import "github.com/gosuda/fanout/internal/domain"

// tableRule describes how rows of one table are classified.
type tableRule struct {
	entity domain.EntityType
	// idFields are tried in order for the entity id.
	idFields []string
	// parentFields are tried in order for the parent id.
	parentFields []string
}

var tableRules = map[string]tableRule{ //nolint:gochecknoglobals // static lookup table
	"workspaces": {entity: domain.EntityWorkspace, idFields: []string{"id"}},
	"boards":     {entity: domain.EntityBoard, idFields: []string{"id"}, parentFields: []string{"workspace_id"}},
	"columns":    {entity: domain.EntityColumn, idFields: []string{"id"}, parentFields: []string{"board_id"}},
	"lists":      {entity: domain.EntityColumn, idFields: []string{"id"}, parentFields: []string{"board_id"}},
	"cards":      {entity: domain.EntityCard, idFields: []string{"id"}, parentFields: []string{"column_id"}},

	"card_details": {entity: domain.EntityCardDetail, idFields: []string{"id"}, parentFields: []string{"card_id", "board_id"}},
	"labels":       {entity: domain.EntityCardDetail, idFields: []string{"id"}, parentFields: []string{"card_id", "board_id"}},
	"card_labels":  {entity: domain.EntityCardDetail, idFields: []string{"id", "label_id"}, parentFields: []string{"card_id", "board_id"}},
	"subtasks":     {entity: domain.EntityCardDetail, idFields: []string{"id"}, parentFields: []string{"card_id", "board_id"}},
	"comments":     {entity: domain.EntityCardDetail, idFields: []string{"id"}, parentFields: []string{"card_id", "board_id"}},
	"attachments":  {entity: domain.EntityCardDetail, idFields: []string{"id"}, parentFields: []string{"card_id", "board_id"}},
	"checklists":   {entity: domain.EntityCardDetail, idFields: []string{"id"}, parentFields: []string{"card_id", "board_id"}},

	domain.BoardMembersTable:     {entity: domain.EntityMember, idFields: []string{"id", "user_id"}, parentFields: []string{"board_id"}},
	domain.WorkspaceMembersTable: {entity: domain.EntityMember, idFields: []string{"id", "user_id"}, parentFields: []string{"workspace_id"}},
}

// NormalizeTable returns the canonical snake_case form of a table name.
func NormalizeTable(table string) string {
	return domain.SnakeCase(table)
}

// IsMembershipTable reports whether table is the board membership table,
// whose changes invalidate cached ownership for the board.
func IsMembershipTable(table string) bool {
	return NormalizeTable(table) == domain.BoardMembersTable
}

// ResolveEntity classifies a changed row. It never fails: unknown tables are
// reported as a board with no ids.
func ResolveEntity(table string, newRecord, oldRecord domain.Record) domain.ResolvedEntity {
	rule, ok := tableRules[NormalizeTable(table)]
	if !ok {
		return domain.ResolvedEntity{Type: domain.EntityBoard}
	}

	record := newRecord
	if record == nil {
		record = oldRecord
	}

	return domain.ResolvedEntity{
		Type:     rule.entity,
		ID:       firstField(record, rule.idFields),
		ParentID: firstField(record, rule.parentFields),
	}
}

func firstField(r domain.Record, fields []string) string {
	for _, f := range fields {
		if v := r.String(f); v != "" {
			return v
		}
	}
	return ""
}
