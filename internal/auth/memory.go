package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryAccountRepository is a process-local AccountRepository.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

var _ AccountRepository = (*MemoryAccountRepository)(nil)

func NewMemoryAccountRepository(seed ...Account) *MemoryAccountRepository {
	r := &MemoryAccountRepository{accounts: make(map[string]Account, len(seed))}
	for _, a := range seed {
		r.accounts[a.ID] = cloneAccount(a)
	}
	return r
}

func (r *MemoryAccountRepository) CreateAccount(_ context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; ok {
		return Account{}, fmt.Errorf("%w: id %s", ErrDuplicateAccount, a.ID)
	}
	if r.emailTakenLocked(a.Email, "") {
		return Account{}, ErrDuplicateAccount
	}
	r.accounts[a.ID] = cloneAccount(a)
	return cloneAccount(a), nil
}

func (r *MemoryAccountRepository) GetAccount(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return cloneAccount(a), nil
}

func (r *MemoryAccountRepository) FindAccountByEmail(_ context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return Account{}, fmt.Errorf("%w: account with that email", ErrNotFound)
}

func (r *MemoryAccountRepository) ListAccounts(_ context.Context) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, cloneAccount(a))
	}
	sortAccounts(out)
	return out, nil
}

func (r *MemoryAccountRepository) UpdateAccount(_ context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; !ok {
		return Account{}, fmt.Errorf("%w: account %s", ErrNotFound, a.ID)
	}
	if r.emailTakenLocked(a.Email, a.ID) {
		return Account{}, ErrDuplicateAccount
	}
	r.accounts[a.ID] = cloneAccount(a)
	return cloneAccount(a), nil
}

func (r *MemoryAccountRepository) DeleteAccount(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	delete(r.accounts, id)
	return nil
}

func (r *MemoryAccountRepository) emailTakenLocked(email, exceptID string) bool {
	for id, a := range r.accounts {
		if id != exceptID && strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

// MemoryRoleRepository is a process-local RoleRepository.
type MemoryRoleRepository struct {
	mu    sync.RWMutex
	roles map[string]Role
}

var _ RoleRepository = (*MemoryRoleRepository)(nil)

func NewMemoryRoleRepository() *MemoryRoleRepository {
	return &MemoryRoleRepository{roles: make(map[string]Role)}
}

func (r *MemoryRoleRepository) CreateRole(_ context.Context, role Role) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; ok {
		return Role{}, fmt.Errorf("%w: role id %s already used", ErrValidation, role.ID)
	}
	role.Permissions = role.Permissions.Clone()
	r.roles[role.ID] = role
	return cloneRole(role), nil
}

func (r *MemoryRoleRepository) GetRole(_ context.Context, id string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	return cloneRole(role), nil
}

func (r *MemoryRoleRepository) ListRoles(_ context.Context) ([]Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, cloneRole(role))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRoleRepository) UpdateRole(_ context.Context, role Role) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; !ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, role.ID)
	}
	r.roles[role.ID] = cloneRole(role)
	return cloneRole(role), nil
}

func (r *MemoryRoleRepository) DeleteRole(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	delete(r.roles, id)
	return nil
}

func cloneAccount(a Account) Account {
	a.Permissions = a.Permissions.Clone()
	return a
}

func cloneRole(r Role) Role {
	r.Permissions = r.Permissions.Clone()
	return r
}

func sortAccounts(list []Account) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
