package rbac

import (
	"fmt"
	"sort"
)

// Registry is an immutable mapping from role id to Role.
type Registry struct {
	roles map[string]Role
}

// NewRegistry builds a registry. Role ids must be unique and non-empty.
func NewRegistry(roles []Role) (*Registry, error) {
	r := &Registry{roles: make(map[string]Role, len(roles))}
	for i, role := range roles {
		if role.ID == "" {
			return nil, fmt.Errorf("roles[%d]: id is required", i)
		}
		if _, dup := r.roles[role.ID]; dup {
			return nil, fmt.Errorf("roles[%d]: duplicate role id %q", i, role.ID)
		}
		perms := make([]Permission, len(role.Permissions))
		copy(perms, role.Permissions)
		role.Permissions = perms
		r.roles[role.ID] = role
	}
	return r, nil
}

// Role returns the role registered under id.
func (r *Registry) Role(id string) (Role, bool) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, false
	}
	perms := make([]Permission, len(role.Permissions))
	copy(perms, role.Permissions)
	role.Permissions = perms
	return role, true
}

// Roles returns every role sorted by id.
func (r *Registry) Roles() []Role {
	ids := make([]string, 0, len(r.roles))
	for id := range r.roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Role, 0, len(ids))
	for _, id := range ids {
		role, _ := r.Role(id)
		out = append(out, role)
	}
	return out
}

// Len returns the number of registered roles.
func (r *Registry) Len() int {
	return len(r.roles)
}

// DefaultRoles returns the built-in role set.
func DefaultRoles() []Role {
	return []Role{
		{
			ID:          "admin",
			Name:        "Administrator",
			Description: "Full access to every resource",
			Permissions: []Permission{
				{ID: "all", Resource: Wildcard, Action: Wildcard},
			},
		},
		{
			ID:          "manager",
			Name:        "Manager",
			Description: "Manages documents and reports for a department",
			Permissions: []Permission{
				{ID: "documents:read", Resource: "documents", Action: "read"},
				{ID: "documents:write", Resource: "documents", Action: "write"},
				{ID: "documents:edit", Resource: "documents", Action: "edit"},
				{ID: "reports:read", Resource: "reports", Action: "read"},
				{ID: "reports:write", Resource: "reports", Action: "write"},
			},
		},
		{
			ID:          "editor",
			Name:        "Editor",
			Description: "Creates and edits documents",
			Permissions: []Permission{
				{ID: "documents:read", Resource: "documents", Action: "read"},
				{ID: "documents:write", Resource: "documents", Action: "write"},
				{ID: "documents:edit", Resource: "documents", Action: "edit"},
			},
		},
		{
			ID:          "viewer",
			Name:        "Viewer",
			Description: "Read-only access to documents and reports",
			Permissions: []Permission{
				{ID: "documents:read", Resource: "documents", Action: "read"},
				{ID: "reports:read", Resource: "reports", Action: "read"},
			},
		},
		{
			ID:          "security-analyst",
			Name:        "Security Analyst",
			Description: "Reads sensitive documents from trusted networks",
			Permissions: []Permission{
				{ID: "sensitive-documents:read", Resource: "sensitive-documents", Action: "read"},
			},
		},
	}
}

// DefaultUsers returns the built-in demo users.
func DefaultUsers() []User {
	return []User{
		{ID: "alice", Roles: []string{"admin"}},
		{ID: "bob", Roles: []string{"manager"}},
		{ID: "carol", Roles: []string{"editor"}},
		{ID: "dave", Roles: []string{"viewer"}},
		{ID: "erin", Roles: []string{}},
		{ID: "frank", Roles: []string{"security-analyst"}},
	}
}

// DefaultRegistry returns a registry holding DefaultRoles.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultRoles())
	if err != nil {
		panic(err)
	}
	return r
}
