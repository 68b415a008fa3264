package auth

import "sync"

var (
	builtinOnce    sync.Once
	builtinCatalog *Catalog
)

func perm(id, label string, s Sensitivity) Permission {
	return Permission{ID: id, Label: label, Sensitivity: s}
}

// BuiltinCatalog returns the practice-management permission catalog.
func BuiltinCatalog() *Catalog {
	builtinOnce.Do(func() {
		c, err := NewCatalog([]Module{
			{ID: "clients", Label: "Clients", Permissions: []Permission{
				perm("view:clients", "View clients", SensitivityBasic),
				perm("create:clients", "Create clients", SensitivityWrite),
				perm("edit:clients", "Edit clients", SensitivityWrite),
				perm("delete:clients", "Delete clients", SensitivityDanger),
			}},
			{ID: "cases", Label: "Cases", Permissions: []Permission{
				perm("view:cases", "View cases", SensitivityBasic),
				perm("create:cases", "Open cases", SensitivityWrite),
				perm("edit:cases", "Edit cases", SensitivityWrite),
				perm("close:cases", "Close cases", SensitivityDanger),
			}},
			{ID: "billing", Label: "Billing", Permissions: []Permission{
				perm("access:billing", "Access billing", SensitivityBasic),
				perm("edit:billing", "Edit billing entries", SensitivityWrite),
				perm("manage:invoices", "Manage invoices", SensitivityWrite),
				perm("approve:settlements", "Approve settlements", SensitivityDanger),
			}},
			{ID: "medical", Label: "Medical records", Permissions: []Permission{
				perm("view:medical", "View medical records", SensitivityBasic),
				perm("edit:medical", "Edit medical records", SensitivityWrite),
				perm("delete:medical", "Delete medical records", SensitivityDanger),
			}},
			{ID: "calendar", Label: "Calendar", Permissions: []Permission{
				perm("view:calendar", "View calendar", SensitivityBasic),
				perm("manage:calendar", "Manage events", SensitivityWrite),
			}},
			{ID: "documents", Label: "Documents", Permissions: []Permission{
				perm("view:documents", "View documents", SensitivityBasic),
				perm("upload:documents", "Upload documents", SensitivityWrite),
				perm("delete:documents", "Delete documents", SensitivityDanger),
			}},
			{ID: "admin", Label: "Administration", Permissions: []Permission{
				perm("manage:users", "Manage users", SensitivityAdmin),
				perm("manage:roles", "Manage roles", SensitivityAdmin),
				perm("view:audit", "View audit log", SensitivityAdmin),
				perm("approve:admins", "Approve administrator requests", SensitivityAdmin),
			}},
		})
		if err != nil {
			panic("auth: builtin catalog: " + err.Error())
		}
		builtinCatalog = c
	})
	return builtinCatalog
}

// DefaultRoleTemplates returns the templates seeded into an empty role store.
func DefaultRoleTemplates() []RoleTemplate {
	return []RoleTemplate{
		{Name: "Administrator", Description: "Unrestricted access", Permissions: []string{Wildcard}},
		{Name: "Attorney", Description: "Client, case and document work", Permissions: []string{
			"view:clients", "create:clients", "edit:clients",
			"view:cases", "create:cases", "edit:cases", "close:cases",
			"access:billing", "view:medical", "edit:medical",
			"view:calendar", "manage:calendar",
			"view:documents", "upload:documents",
		}},
		{Name: "Paralegal", Description: "Case support", Permissions: []string{
			"view:clients", "edit:clients", "view:cases", "edit:cases",
			"view:medical", "view:calendar", "manage:calendar",
			"view:documents", "upload:documents",
		}},
		{Name: "Staff", Description: "Front office", Permissions: []string{
			"view:clients", "view:calendar", "manage:calendar", "view:documents",
		}},
		{Name: "Billing Administrator", Description: "Invoices and settlements", Permissions: []string{
			"access:billing", "edit:billing", "manage:invoices", "approve:settlements", "view:clients",
		}},
	}
}
