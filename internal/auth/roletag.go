package auth

import (
	"fmt"
	"strings"
)

// RoleTag is the denormalized role label carried by an account. The five
// built-in tags are the only ones accepted from self-registration; applying
// a role template may produce additional tags derived from the template name.
type RoleTag string

const (
	RoleAdmin        RoleTag = "admin"
	RoleAttorney     RoleTag = "attorney"
	RoleParalegal    RoleTag = "paralegal"
	RoleStaff        RoleTag = "staff"
	RolePendingAdmin RoleTag = "pending_admin"
)

var builtinRoles = []RoleTag{RoleAdmin, RoleAttorney, RoleParalegal, RoleStaff, RolePendingAdmin}

// BuiltinRoles lists the closed set of built-in tags.
func BuiltinRoles() []RoleTag {
	out := make([]RoleTag, len(builtinRoles))
	copy(out, builtinRoles)
	return out
}

// ParseRoleTag normalizes s and accepts only built-in tags.
func ParseRoleTag(s string) (RoleTag, error) {
	tag := RoleTag(strings.ToLower(strings.TrimSpace(s)))
	if !tag.Builtin() {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
	return tag, nil
}

// RoleTagFromName derives the tag written by applyRole: the lower-cased
// template name.
func RoleTagFromName(name string) RoleTag {
	return RoleTag(strings.ToLower(strings.TrimSpace(name)))
}

func (r RoleTag) String() string { return string(r) }

func (r RoleTag) Builtin() bool {
	for _, b := range builtinRoles {
		if r == b {
			return true
		}
	}
	return false
}

// RequiresProvisioning reports whether self-registration with this tag needs
// a matching administrator-provisioned record.
func (r RoleTag) RequiresProvisioning() bool {
	return r == RoleAttorney || r == RoleParalegal
}

// RequiresApproval reports whether self-registration with this tag is parked
// as pending_admin.
func (r RoleTag) RequiresApproval() bool {
	return r == RoleAdmin
}
