package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RoleService manages role templates.
type RoleService struct {
	repo    RoleRepository
	catalog *Catalog
	settings
}

func NewRoleService(repo RoleRepository, catalog *Catalog, opts ...Option) (*RoleService, error) {
	if repo == nil {
		return nil, errors.New("role repository is required")
	}
	if catalog == nil {
		catalog = BuiltinCatalog()
	}
	return &RoleService{repo: repo, catalog: catalog, settings: newSettings(opts)}, nil
}

func (s *RoleService) Create(ctx context.Context, name, description string, permissions []string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrValidation)
	}
	if err := s.catalog.Validate(permissions); err != nil {
		return Role{}, err
	}
	now := s.now().UTC()
	role, err := s.repo.CreateRole(ctx, Role{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: NewPermissionSet(permissions...),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.create", fmt.Sprintf("created role %q with permissions [%s]", role.Name, strings.Join(role.Permissions.IDs(), ", ")))
	return role, nil
}

func (s *RoleService) Update(ctx context.Context, id string, patch RolePatch) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	var changed []string
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Role{}, fmt.Errorf("%w: role name is required", ErrValidation)
		}
		role.Name = name
		changed = append(changed, "name")
	}
	if patch.Description != nil {
		role.Description = strings.TrimSpace(*patch.Description)
		changed = append(changed, "description")
	}
	if patch.Permissions != nil {
		if err := s.catalog.Validate(*patch.Permissions); err != nil {
			return Role{}, err
		}
		role.Permissions = NewPermissionSet(*patch.Permissions...)
		changed = append(changed, "permissions")
	}
	role.UpdatedAt = s.now().UTC()
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.update", fmt.Sprintf("updated role %q (%s)", updated.Name, strings.Join(changed, ", ")))
	return updated, nil
}

// Delete removes a role. Accounts that had it applied keep their copied
// permissions.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "role.delete", fmt.Sprintf("deleted role %q", role.Name))
	return nil
}

func (s *RoleService) Get(ctx context.Context, id string) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

func (s *RoleService) List(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// Seed creates every template whose name (case-insensitive) is not present
// yet and returns the roles it created.
func (s *RoleService) Seed(ctx context.Context, templates []RoleTemplate) ([]Role, error) {
	existing, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(existing))
	for _, r := range existing {
		names[strings.ToLower(r.Name)] = true
	}
	var created []Role
	for _, t := range templates {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if names[key] {
			continue
		}
		role, err := s.Create(ctx, t.Name, t.Description, t.Permissions)
		if err != nil {
			return created, fmt.Errorf("seed role %q: %w", t.Name, err)
		}
		names[key] = true
		created = append(created, role)
	}
	return created, nil
}

func (s *RoleService) Catalog() *Catalog { return s.catalog }
