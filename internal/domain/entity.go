package domain

import "github.com/gosuda/fanout/pkg/protocol"

// EntityType is the coarse classification clients route on.
type EntityType = protocol.EntityType

const (
	EntityBoard      = protocol.EntityBoard
	EntityColumn     = protocol.EntityColumn
	EntityCard       = protocol.EntityCard
	EntityCardDetail = protocol.EntityCardDetail
	EntityMember     = protocol.EntityMember
	EntityWorkspace  = protocol.EntityWorkspace
)

// ResolvedEntity is derived from a ChangeNotice; ids are empty when unknown.
type ResolvedEntity struct {
	Type     EntityType
	ID       string
	ParentID string
}

// Membership tables. Changes on BoardMembersTable invalidate cached ownership
// for the affected board.
const (
	BoardMembersTable     = "board_members"
	WorkspaceMembersTable = "workspace_members"
)
