package auth

import "time"

// accountRecord is the persisted CBOR form of an account.
type accountRecord struct {
	ID             string    `cbor:"id"`
	Email          string    `cbor:"email"`
	Name           string    `cbor:"name,omitempty"`
	CredentialHash string    `cbor:"credential,omitempty"`
	Role           string    `cbor:"role"`
	Permissions    []string  `cbor:"permissions"`
	Verified       bool      `cbor:"verified"`
	Status         string    `cbor:"status"`
	CreatedAt      time.Time `cbor:"created_at"`
	LastActiveAt   time.Time `cbor:"last_active_at"`
}

func recordOf(a Account) accountRecord {
	return accountRecord{
		ID:             a.ID,
		Email:          a.Email,
		Name:           a.Name,
		CredentialHash: a.CredentialHash,
		Role:           string(a.Role),
		Permissions:    a.Permissions.IDs(),
		Verified:       a.Verified,
		Status:         string(a.Status),
		CreatedAt:      a.CreatedAt,
		LastActiveAt:   a.LastActiveAt,
	}
}

func (r accountRecord) account() Account {
	status := AccountStatus(r.Status)
	if status == "" {
		status = StatusActive
	}
	return Account{
		ID:             r.ID,
		Email:          r.Email,
		Name:           r.Name,
		CredentialHash: r.CredentialHash,
		Role:           RoleTag(r.Role),
		Permissions:    NewPermissionSet(r.Permissions...),
		Verified:       r.Verified,
		Status:         status,
		CreatedAt:      r.CreatedAt,
		LastActiveAt:   r.LastActiveAt,
	}
}

// sessionSnapshot is what gets persisted under the current-account key. The
// credential hash is never part of it.
type sessionSnapshot struct {
	Account         accountRecord `cbor:"account"`
	AuthenticatedAt time.Time     `cbor:"authenticated_at"`
}

func snapshotOf(s Session) sessionSnapshot {
	rec := recordOf(s.Account)
	rec.CredentialHash = ""
	return sessionSnapshot{Account: rec, AuthenticatedAt: s.AuthenticatedAt}
}

func (s sessionSnapshot) session() Session {
	return Session{Account: s.Account.account(), AuthenticatedAt: s.AuthenticatedAt}
}
