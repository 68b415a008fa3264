package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"lawdesk.org/internal/codec"
	"lawdesk.org/internal/obs"
)

// RegisteredAccountsKey holds the self-registration table.
const RegisteredAccountsKey = "registered_accounts"

// KVAccountRepository keeps the whole account table as one CBOR value in a
// KV store. Writes are serialized within the process only.
type KVAccountRepository struct {
	mu    sync.Mutex
	store KV
	key   string
}

var _ AccountRepository = (*KVAccountRepository)(nil)

func NewKVAccountRepository(store KV) *KVAccountRepository {
	return &KVAccountRepository{store: store, key: RegisteredAccountsKey}
}

func (r *KVAccountRepository) load(ctx context.Context) ([]accountRecord, error) {
	raw, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("load account table: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var table []accountRecord
	if err := codec.Decode(raw, &table); err != nil {
		obs.Warn("account table unreadable, treating as empty", map[string]any{"key": r.key, "error": err})
		return nil, nil
	}
	return table, nil
}

func (r *KVAccountRepository) save(ctx context.Context, table []accountRecord) error {
	raw, err := codec.Encode(table)
	if err != nil {
		return fmt.Errorf("encode account table: %w", err)
	}
	if err := r.store.Set(ctx, r.key, raw); err != nil {
		return fmt.Errorf("save account table: %w", err)
	}
	return nil
}

func (r *KVAccountRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.load(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, rec := range table {
		if rec.ID == a.ID || strings.EqualFold(rec.Email, a.Email) {
			return Account{}, ErrDuplicateAccount
		}
	}
	table = append(table, recordOf(a))
	if err := r.save(ctx, table); err != nil {
		return Account{}, err
	}
	return cloneAccount(a), nil
}

func (r *KVAccountRepository) GetAccount(ctx context.Context, id string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.load(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, rec := range table {
		if rec.ID == id {
			return rec.account(), nil
		}
	}
	return Account{}, fmt.Errorf("%w: account %s", ErrNotFound, id)
}

func (r *KVAccountRepository) FindAccountByEmail(ctx context.Context, email string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.load(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, rec := range table {
		if strings.EqualFold(rec.Email, email) {
			return rec.account(), nil
		}
	}
	return Account{}, fmt.Errorf("%w: account with that email", ErrNotFound)
}

func (r *KVAccountRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(table))
	for _, rec := range table {
		out = append(out, rec.account())
	}
	sortAccounts(out)
	return out, nil
}

func (r *KVAccountRepository) UpdateAccount(ctx context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.load(ctx)
	if err != nil {
		return Account{}, err
	}
	idx := -1
	for i, rec := range table {
		switch {
		case rec.ID == a.ID:
			idx = i
		case strings.EqualFold(rec.Email, a.Email):
			return Account{}, ErrDuplicateAccount
		}
	}
	if idx < 0 {
		return Account{}, fmt.Errorf("%w: account %s", ErrNotFound, a.ID)
	}
	table[idx] = recordOf(a)
	if err := r.save(ctx, table); err != nil {
		return Account{}, err
	}
	return cloneAccount(a), nil
}

func (r *KVAccountRepository) DeleteAccount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.load(ctx)
	if err != nil {
		return err
	}
	for i, rec := range table {
		if rec.ID == id {
			table = append(table[:i], table[i+1:]...)
			return r.save(ctx, table)
		}
	}
	return fmt.Errorf("%w: account %s", ErrNotFound, id)
}
