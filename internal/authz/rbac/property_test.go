package rbac

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEvaluatorProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	ctx := context.Background()

	e, err := NewEvaluator(DefaultRegistry(), NewMemoryStore(DefaultUsers()...))
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("admin is allowed everything", prop.ForAll(
		func(resource, action string) bool {
			ok, err := e.CheckAccess(ctx, "alice", resource, action)
			return err == nil && ok
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("user without roles is denied everything", prop.ForAll(
		func(resource, action string) bool {
			ok, err := e.CheckAccess(ctx, "erin", resource, action)
			return err == nil && !ok
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("unknown users are denied everything", prop.ForAll(
		func(user, resource, action string) bool {
			ok, err := e.CheckAccess(ctx, "unknown-"+user, resource, action)
			return err == nil && !ok
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("assign then remove restores the role list", prop.ForAll(
		func(role string) bool {
			store := NewMemoryStore(User{ID: "u", Roles: []string{"viewer"}})
			ev, err := NewEvaluator(DefaultRegistry(), store)
			if err != nil {
				return false
			}
			held, err := ev.AssignRoleToUser(ctx, "u", role)
			if err != nil || !held {
				return false
			}
			if role == "viewer" {
				u, _ := store.User(ctx, "u")
				return len(u.Roles) == 1
			}
			removed, err := ev.RemoveRoleFromUser(ctx, "u", role)
			if err != nil || !removed {
				return false
			}
			u, _ := store.User(ctx, "u")
			return len(u.Roles) == 1 && u.Roles[0] == "viewer"
		},
		gen.OneConstOf("admin", "manager", "editor", "viewer", "security-analyst"),
	))

	properties.TestingRun(t)
}
