package auth

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sensitivity classifies how dangerous a permission is.
type Sensitivity string

const (
	SensitivityBasic  Sensitivity = "basic"
	SensitivityWrite  Sensitivity = "write"
	SensitivityDanger Sensitivity = "danger"
	SensitivityAdmin  Sensitivity = "admin"
)

func (s Sensitivity) valid() bool {
	switch s {
	case SensitivityBasic, SensitivityWrite, SensitivityDanger, SensitivityAdmin:
		return true
	}
	return false
}

// Permission is a catalog entry.
type Permission struct {
	ID          string      `json:"id" yaml:"id"`
	Label       string      `json:"label" yaml:"label"`
	Module      string      `json:"module" yaml:"-"`
	Sensitivity Sensitivity `json:"sensitivity" yaml:"sensitivity"`
}

// Module groups permissions shown together in the admin UI.
type Module struct {
	ID          string       `json:"id" yaml:"id"`
	Label       string       `json:"label" yaml:"label"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
}

// Catalog is the read-only registry of permission ids.
type Catalog struct {
	modules []Module
	byID    map[string]Permission
}

// NewCatalog validates modules and builds a catalog. Ids must be globally
// unique and the wildcard may not appear as a regular entry.
func NewCatalog(modules []Module) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Permission)}
	seenModules := make(map[string]bool, len(modules))
	for _, m := range modules {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("%w: module id is required", ErrValidation)
		}
		if seenModules[m.ID] {
			return nil, fmt.Errorf("%w: duplicate module %q", ErrValidation, m.ID)
		}
		seenModules[m.ID] = true

		perms := make([]Permission, 0, len(m.Permissions))
		for _, p := range m.Permissions {
			p.ID = strings.TrimSpace(p.ID)
			p.Module = m.ID
			if p.Sensitivity == "" {
				p.Sensitivity = SensitivityBasic
			}
			switch {
			case p.ID == "":
				return nil, fmt.Errorf("%w: permission id is required in module %q", ErrValidation, m.ID)
			case p.ID == Wildcard || strings.HasSuffix(p.ID, ":"+Wildcard) || strings.HasPrefix(p.ID, Wildcard+":"):
				return nil, fmt.Errorf("%w: %q is reserved", ErrValidation, p.ID)
			case !p.Sensitivity.valid():
				return nil, fmt.Errorf("%w: permission %q has unknown sensitivity %q", ErrValidation, p.ID, p.Sensitivity)
			}
			if _, dup := c.byID[p.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate permission %q", ErrValidation, p.ID)
			}
			c.byID[p.ID] = p
			perms = append(perms, p)
		}
		m.Permissions = perms
		c.modules = append(c.modules, m)
	}
	return c, nil
}

// ListModules returns modules in declaration order.
func (c *Catalog) ListModules() []Module {
	out := make([]Module, len(c.modules))
	for i, m := range c.modules {
		m.Permissions = append([]Permission(nil), m.Permissions...)
		out[i] = m
	}
	return out
}

// ListPermissions returns the permissions of one module, or of every module
// when module is empty. An unknown module yields an empty list.
func (c *Catalog) ListPermissions(module string) []Permission {
	var out []Permission
	for _, m := range c.modules {
		if module != "" && m.ID != module {
			continue
		}
		out = append(out, m.Permissions...)
	}
	if out == nil {
		out = []Permission{}
	}
	return out
}

// Exists reports whether id is a regular catalog entry.
func (c *Catalog) Exists(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Permission looks an entry up by id.
func (c *Catalog) Permission(id string) (Permission, error) {
	p, ok := c.byID[id]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrNotFound, id)
	}
	return p, nil
}

// Validate accepts the wildcard and any catalog id, and rejects the rest.
func (c *Catalog) Validate(ids []string) error {
	var unknown []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == Wildcard || c.Exists(id) {
			continue
		}
		unknown = append(unknown, id)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown permission(s) %s", ErrValidation, strings.Join(unknown, ", "))
	}
	return nil
}

// Policy is the file form of a catalog plus seed role templates.
type Policy struct {
	Modules []Module       `yaml:"modules"`
	Roles   []RoleTemplate `yaml:"roles"`
}

// ParsePolicyYAML loads a catalog and role templates from YAML. When the
// document has no modules the built-in catalog is used; templates are
// validated against whichever catalog results.
func ParsePolicyYAML(data []byte) (*Catalog, []RoleTemplate, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, nil, fmt.Errorf("%w: parse policy: %v", ErrValidation, err)
	}
	catalog := BuiltinCatalog()
	if len(p.Modules) > 0 {
		var err error
		if catalog, err = NewCatalog(p.Modules); err != nil {
			return nil, nil, err
		}
	}
	for _, t := range p.Roles {
		if strings.TrimSpace(t.Name) == "" {
			return nil, nil, fmt.Errorf("%w: role template without name", ErrValidation)
		}
		if err := catalog.Validate(t.Permissions); err != nil {
			return nil, nil, fmt.Errorf("role template %q: %w", t.Name, err)
		}
	}
	return catalog, p.Roles, nil
}
