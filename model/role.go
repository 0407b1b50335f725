// Package model provides role-based backend selection for the Model
// Router. Instead of reviewers hardcoding a model name, each reviewer
// specifies its role (architect, auditor, builder, mediator) and the
// registry resolves that role to a primary backend plus a fallback chain.
package model

// Role identifies which of the four reviewer variants is asking the
// router for a backend.
type Role string

const (
	// RoleArchitect reviews high-level structure and design issues.
	RoleArchitect Role = "architect"

	// RoleAuditor focuses on correctness, security, and bug-hunting.
	RoleAuditor Role = "auditor"

	// RoleBuilder additionally executes plans and applies fix-up changes.
	RoleBuilder Role = "builder"

	// RoleMediator synthesises unified plans and issues final decisions.
	RoleMediator Role = "mediator"
)

// IsValid reports whether r is one of the four known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleArchitect, RoleAuditor, RoleBuilder, RoleMediator:
		return true
	}
	return false
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a string to a Role, returning "" for unrecognized
// values.
func ParseRole(s string) Role {
	r := Role(s)
	if r.IsValid() {
		return r
	}
	return ""
}
