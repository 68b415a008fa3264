package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AccountService manages accounts across the administrator-provisioned
// directory and the self-registration store. Ids are resolved in the
// directory first.
type AccountService struct {
	directory  AccountRepository
	registered AccountRepository
	roles      RoleRepository
	catalog    *Catalog
	settings
}

func NewAccountService(directory, registered AccountRepository, roles RoleRepository, catalog *Catalog, opts ...Option) (*AccountService, error) {
	switch {
	case directory == nil:
		return nil, errors.New("account directory is required")
	case registered == nil:
		return nil, errors.New("registration store is required")
	case roles == nil:
		return nil, errors.New("role repository is required")
	}
	if catalog == nil {
		catalog = BuiltinCatalog()
	}
	return &AccountService{
		directory:  directory,
		registered: registered,
		roles:      roles,
		catalog:    catalog,
		settings:   newSettings(opts),
	}, nil
}

// Create provisions an account in the directory. Email must be unique there.
func (s *AccountService) Create(ctx context.Context, p Profile) (Account, error) {
	email, err := NormalizeEmail(p.Email)
	if err != nil {
		return Account{}, err
	}
	if p.Role == "" {
		return Account{}, fmt.Errorf("%w: role is required", ErrValidation)
	}
	role, err := ParseRoleTag(string(p.Role))
	if err != nil {
		return Account{}, err
	}
	if _, err := s.directory.FindAccountByEmail(ctx, email); err == nil {
		return Account{}, ErrDuplicateAccount
	} else if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	account := Account{
		ID:        s.newID(),
		Email:     email,
		Name:      strings.TrimSpace(p.Name),
		Role:      role,
		Verified:  p.Verified,
		Status:    StatusActive,
		CreatedAt: s.now().UTC(),
	}
	if p.Credential != "" {
		if account.CredentialHash, err = HashCredential(p.Credential); err != nil {
			return Account{}, err
		}
	}
	created, err := s.directory.CreateAccount(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.create", fmt.Sprintf("provisioned %s as %s", created.Email, created.Role))
	return created, nil
}

// Bootstrap seeds a verified administrator into the self-registration store,
// the only store login reads. An existing account with that email is left
// untouched and reported with created=false.
func (s *AccountService) Bootstrap(ctx context.Context, email, credential string) (Account, bool, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return Account{}, false, err
	}
	if credential == "" {
		return Account{}, false, fmt.Errorf("%w: credential is required", ErrValidation)
	}
	if existing, err := s.registered.FindAccountByEmail(ctx, email); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Account{}, false, err
	}
	account := Account{
		ID:        s.newID(),
		Email:     email,
		Role:      RoleAdmin,
		Verified:  true,
		Status:    StatusActive,
		CreatedAt: s.now().UTC(),
	}
	if account.CredentialHash, err = HashCredential(credential); err != nil {
		return Account{}, false, err
	}
	created, err := s.registered.CreateAccount(ctx, account)
	if err != nil {
		return Account{}, false, err
	}
	s.record(ctx, "account.bootstrap", fmt.Sprintf("bootstrapped administrator %s", created.Email))
	return created, true, nil
}

func (s *AccountService) Update(ctx context.Context, id string, patch AccountPatch) (Account, error) {
	repo, account, err := s.resolve(ctx, id)
	if err != nil {
		return Account{}, err
	}
	var changed []string
	if patch.Email != nil {
		email, err := NormalizeEmail(*patch.Email)
		if err != nil {
			return Account{}, err
		}
		account.Email = email
		changed = append(changed, "email")
	}
	if patch.Name != nil {
		account.Name = strings.TrimSpace(*patch.Name)
		changed = append(changed, "name")
	}
	if patch.Role != nil {
		tag := RoleTagFromName(string(*patch.Role))
		if tag == "" {
			return Account{}, fmt.Errorf("%w: role is required", ErrValidation)
		}
		account.Role = tag
		if tag == RolePendingAdmin {
			account.Permissions = PermissionSet{}
		}
		changed = append(changed, "role="+string(tag))
	}
	if patch.Status != nil {
		st, err := ParseAccountStatus(string(*patch.Status))
		if err != nil {
			return Account{}, err
		}
		account.Status = st
		changed = append(changed, "status="+string(st))
	}
	if patch.Verified != nil {
		account.Verified = *patch.Verified
		changed = append(changed, fmt.Sprintf("verified=%t", account.Verified))
	}
	if patch.Credential != nil {
		if account.CredentialHash, err = HashCredential(*patch.Credential); err != nil {
			return Account{}, err
		}
		changed = append(changed, "credential")
	}
	updated, err := repo.UpdateAccount(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.update", fmt.Sprintf("updated %s (%s)", updated.Email, strings.Join(changed, ", ")))
	return updated, nil
}

func (s *AccountService) Delete(ctx context.Context, id string) error {
	repo, account, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	if err := repo.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "account.delete", fmt.Sprintf("deleted %s", account.Email))
	return nil
}

// SetPermissions replaces the override set. A list containing "all"
// collapses to the wildcard. A pending_admin account holds no overrides
// until it is promoted.
func (s *AccountService) SetPermissions(ctx context.Context, id string, permissions []string) (Account, error) {
	if err := s.catalog.Validate(permissions); err != nil {
		return Account{}, err
	}
	repo, account, err := s.resolve(ctx, id)
	if err != nil {
		return Account{}, err
	}
	set := NewPermissionSet(permissions...)
	if account.Role == RolePendingAdmin && !set.Empty() {
		return Account{}, fmt.Errorf("%w: %s awaits approval and cannot hold permissions", ErrValidation, account.Email)
	}
	account.Permissions = set
	updated, err := repo.UpdateAccount(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.permissions", fmt.Sprintf("set permissions of %s to [%s]", updated.Email, strings.Join(updated.Permissions.IDs(), ", ")))
	return updated, nil
}

// ApplyRole copies a role template onto an account. The two stay decoupled
// afterwards.
func (s *AccountService) ApplyRole(ctx context.Context, id, roleID string) (Account, error) {
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return Account{}, err
	}
	repo, account, err := s.resolve(ctx, id)
	if err != nil {
		return Account{}, err
	}
	tag := RoleTagFromName(role.Name)
	if tag == RolePendingAdmin && !role.Permissions.Empty() {
		return Account{}, fmt.Errorf("%w: role %q would grant permissions to a pending administrator", ErrValidation, role.Name)
	}
	account.Role = tag
	account.Permissions = role.Permissions.Clone()
	updated, err := repo.UpdateAccount(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.apply_role", fmt.Sprintf("applied role %q to %s", role.Name, updated.Email))
	return updated, nil
}

// MarkVerified flags an account as verified.
func (s *AccountService) MarkVerified(ctx context.Context, id string) (Account, error) {
	verified := true
	return s.Update(ctx, id, AccountPatch{Verified: &verified})
}

func (s *AccountService) Get(ctx context.Context, id string) (Account, error) {
	_, account, err := s.resolve(ctx, id)
	return account, err
}

// List returns directory accounts followed by self-registered ones.
func (s *AccountService) List(ctx context.Context) ([]Account, error) {
	provisioned, err := s.directory.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	registered, err := s.registered.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return append(provisioned, registered...), nil
}

func (s *AccountService) Catalog() *Catalog { return s.catalog }

func (s *AccountService) resolve(ctx context.Context, id string) (AccountRepository, Account, error) {
	if strings.TrimSpace(id) == "" {
		return nil, Account{}, fmt.Errorf("%w: account id is required", ErrValidation)
	}
	for _, repo := range []AccountRepository{s.directory, s.registered} {
		account, err := repo.GetAccount(ctx, id)
		if err == nil {
			return repo, account, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, Account{}, err
		}
	}
	return nil, Account{}, fmt.Errorf("%w: account %s", ErrNotFound, id)
}
