package auth

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// AccountStatus is the administrative state of an account.
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
)

func ParseAccountStatus(s string) (AccountStatus, error) {
	switch st := AccountStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Account is a user identity, either administrator-provisioned or
// self-registered.
type Account struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Name           string        `json:"name,omitempty"`
	CredentialHash string        `json:"-"`
	Role           RoleTag       `json:"role"`
	Permissions    PermissionSet `json:"permissions"`
	Verified       bool          `json:"verified"`
	Status         AccountStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActiveAt   time.Time     `json:"last_active_at,omitempty"`
}

func (a Account) Active() bool { return a.Status != StatusInactive }

// Profile is the input for creating a provisioned account.
type Profile struct {
	Email      string
	Name       string
	Credential string
	Role       RoleTag
	Verified   bool
}

// AccountPatch holds the fields an update may change; nil means unchanged.
type AccountPatch struct {
	Email      *string
	Name       *string
	Credential *string
	Role       *RoleTag
	Status     *AccountStatus
	Verified   *bool
}

// Role is a reusable permission template.
type Role struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Permissions PermissionSet `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// RolePatch holds role fields to change; nil means unchanged.
type RolePatch struct {
	Name        *string
	Description *string
	Permissions *[]string
}

// RoleTemplate is a role definition used for seeding.
type RoleTemplate struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Permissions []string `yaml:"permissions" json:"permissions"`
}

// Session binds an account snapshot to the moment it authenticated.
type Session struct {
	Account         Account   `json:"account"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// NormalizeEmail trims and lower-cases an email and checks its shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", ErrValidation, email)
	}
	return email, nil
}
