package auth

import (
	"context"
	"time"
)

// AccountRepository stores accounts. Email lookups are case-insensitive and
// email is unique within one repository.
type AccountRepository interface {
	CreateAccount(ctx context.Context, a Account) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	FindAccountByEmail(ctx context.Context, email string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateAccount(ctx context.Context, a Account) (Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// RoleRepository stores role templates.
type RoleRepository interface {
	CreateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, r Role) (Role, error)
	DeleteRole(ctx context.Context, id string) error
}

// KV is the string key-value persistence boundary used for session
// restoration and the self-registration table.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Challenge is handed to the verification dispatcher after registration.
type Challenge struct {
	AccountID string  `json:"account_id"`
	Email     string  `json:"email"`
	Role      RoleTag `json:"role"`
	Token     string  `json:"token,omitempty"`
}

// VerificationDispatcher delivers verification challenges out of band.
type VerificationDispatcher interface {
	SendVerification(ctx context.Context, c Challenge) error
}

// ApprovalRequest asks the administrator contact to promote an account.
type ApprovalRequest struct {
	To            string    `json:"to"`
	AccountID     string    `json:"account_id"`
	Email         string    `json:"email"`
	RequestedRole RoleTag   `json:"requested_role"`
	RequestedAt   time.Time `json:"requested_at"`
}

// ApprovalNotifier delivers approval requests.
type ApprovalNotifier interface {
	NotifyApproval(ctx context.Context, r ApprovalRequest) error
}

// AuditEntry is one audit log record.
type AuditEntry struct {
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	Details    string    `json:"details"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditSink records audit entries. Callers treat failures as best-effort.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

// Notifier is the user-facing toast channel.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}
