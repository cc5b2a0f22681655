package model

import "time"

// Role is a row in the `roles` table. The three fixed names (admin,
// teacher, student) are seeded; staff sub-roles are created on demand with
// arbitrary names.
type Role struct {
	ID        uint64
	Name      string
	CreatedAt time.Time
}

// Permission is immutable reference data: a named capability inside a
// group, e.g. group "classes", name "create_classes". Roles are granted
// permissions through the permission_role join table.
type Permission struct {
	ID    uint64
	Group string // permissions.group_name
	Name  string // permissions.name
}

// RoleAssignment links a principal to exactly one role. The pair
// (principal_kind, principal_id) is unique, so re-assignment updates
// role_id in place rather than inserting a second row.
type RoleAssignment struct {
	ID        uint64
	Principal PrincipalRef
	RoleID    uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}
