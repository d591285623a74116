package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		roles   []Role
		wantLen int
		wantErr bool
	}{
		{name: "empty", roles: nil, wantLen: 0},
		{name: "defaults", roles: DefaultRoles(), wantLen: 5},
		{name: "missing id", roles: []Role{{Name: "x"}}, wantErr: true},
		{name: "duplicate id", roles: []Role{{ID: "a"}, {ID: "a"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewRegistry(tt.roles)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, r.Len())
		})
	}
}

func TestRegistry_Role(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	role, ok := r.Role("viewer")
	require.True(t, ok)
	assert.Equal(t, "Viewer", role.Name)
	assert.Equal(t, []Permission{
		{ID: "documents:read", Resource: "documents", Action: "read"},
		{ID: "reports:read", Resource: "reports", Action: "read"},
	}, role.Permissions)

	_, ok = r.Role("root")
	assert.False(t, ok)
}

func TestRegistry_RoleIsCopied(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	role, _ := r.Role("viewer")
	role.Permissions[0].Action = "delete"

	again, _ := r.Role("viewer")
	assert.Equal(t, "read", again.Permissions[0].Action)
}

func TestRegistry_RolesSorted(t *testing.T) {
	t.Parallel()

	roles := DefaultRegistry().Roles()
	ids := make([]string, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"admin", "editor", "manager", "security-analyst", "viewer"}, ids)
}

func TestPermission_Matches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		perm     Permission
		resource string
		action   string
		want     bool
	}{
		{name: "exact", perm: Permission{Resource: "documents", Action: "read"}, resource: "documents", action: "read", want: true},
		{name: "wrong action", perm: Permission{Resource: "documents", Action: "read"}, resource: "documents", action: "write", want: false},
		{name: "wrong resource", perm: Permission{Resource: "documents", Action: "read"}, resource: "reports", action: "read", want: false},
		{name: "wildcard resource", perm: Permission{Resource: Wildcard, Action: "read"}, resource: "reports", action: "read", want: true},
		{name: "wildcard action", perm: Permission{Resource: "reports", Action: Wildcard}, resource: "reports", action: "delete", want: true},
		{name: "full wildcard", perm: Permission{Resource: Wildcard, Action: Wildcard}, resource: "x", action: "y", want: true},
		{name: "literal star request is not a wildcard", perm: Permission{Resource: "documents", Action: "read"}, resource: "*", action: "read", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.perm.Matches(tt.resource, tt.action))
		})
	}
}

func TestUser_HasRole(t *testing.T) {
	t.Parallel()

	u := User{ID: "bob", Roles: []string{"manager"}}
	assert.True(t, u.HasRole("manager"))
	assert.False(t, u.HasRole("admin"))
}
