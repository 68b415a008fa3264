package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lawdesk.org/internal/auth"
)

// Account tables. Provisioned accounts form the administrator directory;
// registered accounts can replace the KV-backed self-registration table.
const (
	ProvisionedAccounts = "provisioned_accounts"
	RegisteredAccounts  = "registered_accounts"
)

// AccountStore is an auth.AccountRepository over one account table.
type AccountStore struct {
	db    *sql.DB
	table string
}

var _ auth.AccountRepository = (*AccountStore)(nil)

func NewAccountStore(db *sql.DB, table string) (*AccountStore, error) {
	switch table {
	case ProvisionedAccounts, RegisteredAccounts:
	default:
		return nil, fmt.Errorf("unknown account table %q", table)
	}
	return &AccountStore{db: db, table: table}, nil
}

func (s *AccountStore) columns() string {
	return `id, email, coalesce(name, ''), coalesce(credential_hash, ''), role, permissions,
		verified, status, created_at, last_active_at`
}

func (s *AccountStore) CreateAccount(ctx context.Context, a auth.Account) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	perms, err := json.Marshal(a.Permissions)
	if err != nil {
		return auth.Account{}, fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		insert into %s (id, email, name, credential_hash, role, permissions, verified, status, created_at, last_active_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.table), a.ID, a.Email, a.Name, a.CredentialHash, string(a.Role), perms, a.Verified, string(a.Status), a.CreatedAt, nullTime(a.LastActiveAt))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Account{}, auth.ErrDuplicateAccount
		}
		return auth.Account{}, err
	}
	return a, nil
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`select %s from %s where id = $1`, s.columns(), s.table), id)
	return scanAccount(row)
}

func (s *AccountStore) FindAccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`select %s from %s where lower(email) = lower($1)`, s.columns(), s.table), email)
	return scanAccount(row)
}

func (s *AccountStore) ListAccounts(ctx context.Context) ([]auth.Account, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`select %s from %s order by created_at, id`, s.columns(), s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AccountStore) UpdateAccount(ctx context.Context, a auth.Account) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	perms, err := json.Marshal(a.Permissions)
	if err != nil {
		return auth.Account{}, fmt.Errorf("marshal permissions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		update %s
		set email = $2, name = $3, credential_hash = $4, role = $5, permissions = $6,
			verified = $7, status = $8, last_active_at = $9
		where id = $1
	`, s.table), a.ID, a.Email, a.Name, a.CredentialHash, string(a.Role), perms, a.Verified, string(a.Status), nullTime(a.LastActiveAt))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Account{}, auth.ErrDuplicateAccount
		}
		return auth.Account{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.Account{}, fmt.Errorf("%w: account %s", auth.ErrNotFound, a.ID)
	}
	return a, nil
}

func (s *AccountStore) DeleteAccount(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where id = $1`, s.table), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: account %s", auth.ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (auth.Account, error) {
	var (
		a          auth.Account
		role       string
		status     string
		rawPerms   []byte
		lastActive sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.CredentialHash, &role, &rawPerms, &a.Verified, &status, &a.CreatedAt, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	a.Role = auth.RoleTag(role)
	a.Status = auth.AccountStatus(status)
	if lastActive.Valid {
		a.LastActiveAt = lastActive.Time
	}
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &a.Permissions); err != nil {
			return auth.Account{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return a, nil
}
