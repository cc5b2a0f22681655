package model

import "time"

// Kind identifies which of the four principal tables an identity lives in.
// It doubles as the "role" claim inside access and refresh tokens. Staff
// members may carry a custom role name (see RoleName) but their kind is
// always KindStaff.
type Kind string

const (
	KindAdmin   Kind = "admin"
	KindTeacher Kind = "teacher"
	KindStudent Kind = "student"
	KindStaff   Kind = "staff"
)

// Kinds lists every valid principal kind. Used to validate request input
// and to iterate in tests.
var Kinds = []Kind{KindAdmin, KindTeacher, KindStudent, KindStaff}

// ParseKind validates a raw role string from a request body or token claim.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindAdmin, KindTeacher, KindStudent, KindStaff:
		return Kind(s), true
	}
	return "", false
}

// KindForRole maps a role name onto the principal kind that owns it. The
// three fixed names map to themselves; every other name is a dynamically
// created staff sub-role (e.g. "accountant", "librarian").
func KindForRole(roleName string) Kind {
	switch roleName {
	case "admin":
		return KindAdmin
	case "teacher":
		return KindTeacher
	case "student":
		return KindStudent
	}
	return KindStaff
}

// PrincipalRef is a tagged reference to a principal row. Join tables
// (role_assignments, sessions, verification_tokens) store the pair
// (principal_kind, principal_id) instead of four mutually exclusive
// nullable foreign keys, so data access switches on the tag exactly once.
type PrincipalRef struct {
	Kind Kind
	ID   uint64
}

// Principal is a resolved identity from one of the four principal tables,
// together with its current role assignment and the full permission list of
// that role. Exactly one kind is active per authenticated session.
//
// Fields:
//
//	ID              – primary key inside the kind's own table.
//	Kind            – which table the row came from.
//	School          – tenant name, present on admins only.
//	Image           – stored profile image path, optional.
//	Name            – display name.
//	Email           – unique login email (unique per table).
//	PasswordHash    – bcrypt hash, cost 12.
//	Suspended       – account lock flag; suspended principals fail every
//	                  authorization check with 423.
//	EmailVerifiedAt – when the email was verified, nil if never.
//	RoleName        – name of the assigned role (admin/teacher/student or a
//	                  custom staff sub-role).
//	Permissions     – permission names granted to the role.
type Principal struct {
	ID              uint64
	Kind            Kind
	School          string
	Image           string
	Name            string
	Email           string
	PasswordHash    string
	Suspended       bool
	EmailVerifiedAt *time.Time
	RoleName        string
	Permissions     []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Ref returns the tagged reference used by join tables.
func (p *Principal) Ref() PrincipalRef {
	return PrincipalRef{Kind: p.Kind, ID: p.ID}
}

// HasPermission reports whether the resolved permission set contains name.
func (p *Principal) HasPermission(name string) bool {
	for _, perm := range p.Permissions {
		if perm == name {
			return true
		}
	}
	return false
}
