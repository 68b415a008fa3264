package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRoleCreateValidatesPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := ContextWithActor(context.Background(), "admin-1")

	if _, err := f.roles.Create(ctx, "Broken", "", []string{"view:clients", "fly:plane"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.roles.Create(ctx, "  ", "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}

	role, err := f.roles.Create(ctx, "Everything", "root", []string{"view:clients", "all"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !role.Permissions.IsAll() {
		t.Fatalf("wildcard should absorb: %v", role.Permissions.IDs())
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].ActorID != "admin-1" || f.audit.entries[0].Action != "role.create" {
		t.Fatalf("unexpected audit entries: %+v", f.audit.entries)
	}
}

func TestRoleUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	role, err := f.roles.Create(ctx, "Clerk", "", []string{"view:clients"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bad := []string{"nope:nope"}
	if _, err := f.roles.Update(ctx, role.ID, RolePatch{Permissions: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	perms := []string{"view:clients", "view:calendar"}
	name := "Senior Clerk"
	updated, err := f.roles.Update(ctx, role.ID, RolePatch{Name: &name, Permissions: &perms})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != name || !reflect.DeepEqual(updated.Permissions.IDs(), []string{"view:calendar", "view:clients"}) {
		t.Fatalf("unexpected role: %+v", updated)
	}

	if err := f.roles.Delete(ctx, role.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.roles.Get(ctx, role.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.roles.Delete(ctx, role.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if got := f.audit.actions(); !reflect.DeepEqual(got, []string{"role.create", "role.update", "role.delete"}) {
		t.Fatalf("audit actions = %v", got)
	}
}

func TestRoleMutationsSurviveAuditFailure(t *testing.T) {
	f := newFixture(t)
	f.audit.err = errors.New("sink unavailable")
	role, err := f.roles.Create(context.Background(), "Clerk", "", []string{"view:clients"})
	if err != nil {
		t.Fatalf("audit failure must not block create: %v", err)
	}
	if _, err := f.roles.Get(context.Background(), role.ID); err != nil {
		t.Fatalf("role not stored: %v", err)
	}
}

func TestRoleSeedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.roles.Seed(ctx, DefaultRoleTemplates())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(created) != len(DefaultRoleTemplates()) {
		t.Fatalf("created %d roles", len(created))
	}
	again, err := f.roles.Seed(ctx, []RoleTemplate{{Name: "ATTORNEY"}, {Name: "Intern", Permissions: []string{"view:calendar"}}})
	if err != nil {
		t.Fatalf("Seed again: %v", err)
	}
	if len(again) != 1 || again[0].Name != "Intern" {
		t.Fatalf("expected only Intern to be created, got %+v", again)
	}
	all, _ := f.roles.List(ctx)
	if len(all) != len(DefaultRoleTemplates())+1 {
		t.Fatalf("List returned %d roles", len(all))
	}
}
