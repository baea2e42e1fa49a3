// Package auth authenticates callers by bearer credential and authorizes
// operations against a static role to permission table.
package auth

import (
	"fmt"
	"strings"
)

// Role is a closed enumeration. Unknown role strings never authenticate.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleAuditor      Role = "auditor"
	RoleInvestigator Role = "investigator"
)

type Permission string

const (
	PermWrite          Permission = "write"
	PermRead           Permission = "read"
	PermExportUnmasked Permission = "export_unmasked"
	PermExportMasked   Permission = "export_masked"
	PermReport         Permission = "report"
)

// rolePerms is the whole authorization model: flat set membership, no
// hierarchy or inheritance between roles.
var rolePerms = map[Role]map[Permission]struct{}{
	RoleAdmin:        permSet(PermWrite, PermRead, PermExportUnmasked, PermReport),
	RoleAuditor:      permSet(PermRead, PermExportUnmasked, PermReport),
	RoleInvestigator: permSet(PermWrite, PermRead, PermExportMasked),
}

func permSet(perms ...Permission) map[Permission]struct{} {
	s := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func ParseRole(v string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(v))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleAuditor:
		return RoleAuditor, nil
	case RoleInvestigator:
		return RoleInvestigator, nil
	default:
		return "", fmt.Errorf("unknown role %q", v)
	}
}

func (r Role) Can(p Permission) bool {
	_, ok := rolePerms[r][p]
	return ok
}

// User is an authenticated caller. Rows are provisioned out-of-band; this
// package only reads them.
type User struct {
	ID    int64
	Email string
	Role  Role
}

// Authorize fails unless the user's role holds every required permission.
func Authorize(u User, required ...Permission) error {
	for _, p := range required {
		if !u.Role.Can(p) {
			return &AuthorizationError{Role: u.Role, Missing: p}
		}
	}
	return nil
}
