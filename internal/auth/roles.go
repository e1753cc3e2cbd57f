// Package auth holds the role hierarchy, the request Principal, the token
// verifier and the credential cache used by the HTTP auth middleware.
package auth

import (
	"fmt"
	"slices"
	"strings"
)

// Role is one of the fixed, ordered role names.
type Role string

const (
	RoleGuest      Role = "guest"
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// WildcardPermission grants every named permission.
const WildcardPermission = "*"

// Permission names granted by the default role table.
const (
	PermProfileRead     = "profile.read"
	PermProfileWrite    = "profile.write"
	PermRecordsRead     = "records.read"
	PermRecordsWrite    = "records.write"
	PermContentModerate = "content.moderate"
	PermUsersManage     = "users.manage"
	PermDBStats         = "db.stats"
)

var roleRanks = map[Role]int{
	RoleGuest:      0,
	RoleUser:       1,
	RoleModerator:  2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

var defaultPermissions = map[Role][]string{
	RoleGuest:     {PermProfileRead},
	RoleUser:      {PermProfileRead, PermProfileWrite, PermRecordsRead},
	RoleModerator: {PermProfileRead, PermProfileWrite, PermRecordsRead, PermRecordsWrite, PermContentModerate},
	RoleAdmin: {PermProfileRead, PermProfileWrite, PermRecordsRead, PermRecordsWrite, PermContentModerate,
		PermUsersManage, PermDBStats},
	RoleSuperAdmin: {WildcardPermission},
}

// Roles returns every role ordered by rank, lowest first.
func Roles() []Role {
	return []Role{RoleGuest, RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin}
}

// ParseRole resolves a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleRanks[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is in the role table.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the privilege rank of r, or -1 for an unknown role.
func (r Role) Rank() int {
	rank, ok := roleRanks[r]
	if !ok {
		return -1
	}
	return rank
}

// Satisfies reports whether r covers a requirement for role required.
// Unknown roles never satisfy and are never satisfied.
func (r Role) Satisfies(required Role) bool {
	req := required.Rank()
	return req >= 0 && r.Rank() >= req
}

// IsAdminTier reports whether r is admin or above.
func (r Role) IsAdminTier() bool { return r.Satisfies(RoleAdmin) }

// DefaultPermissions returns a copy of the permission set granted to r.
func DefaultPermissions(r Role) []string {
	return slices.Clone(defaultPermissions[r])
}

// HasPermission reports whether perms contains the wildcard or perm.
func HasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == WildcardPermission || p == perm {
			return true
		}
	}
	return false
}
