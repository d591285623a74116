package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("backend down")

// failingStore returns errBackendDown from every call.
type failingStore struct{}

func (failingStore) User(context.Context, string) (User, error) { return User{}, errBackendDown }
func (failingStore) Users(context.Context) ([]User, error)      { return nil, errBackendDown }
func (failingStore) CreateUser(context.Context, User) error     { return errBackendDown }
func (failingStore) AddRole(context.Context, string, string) (bool, error) {
	return false, errBackendDown
}
func (failingStore) RemoveRole(context.Context, string, string) (bool, error) {
	return false, errBackendDown
}
func (failingStore) Ping(context.Context) error { return errBackendDown }
func (failingStore) Close() error               { return nil }

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()

	e, err := NewEvaluator(DefaultRegistry(), NewMemoryStore(DefaultUsers()...), WithEvaluatorMetrics(NewMetrics("test")))
	require.NoError(t, err)
	return e
}

func TestNewEvaluator(t *testing.T) {
	t.Parallel()

	_, err := NewEvaluator(nil, NewMemoryStore())
	assert.Error(t, err)

	_, err = NewEvaluator(DefaultRegistry(), nil)
	assert.Error(t, err)

	e, err := NewEvaluator(DefaultRegistry(), NewMemoryStore())
	require.NoError(t, err)
	assert.NotNil(t, e.Registry())
	assert.NotNil(t, e.Store())
	assert.Equal(t, float64(5), testutil.ToFloat64(e.metrics.roleCount))
}

func TestEvaluator_CheckAccess(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)

	tests := []struct {
		user     string
		resource string
		action   string
		want     bool
	}{
		{"alice", "documents", "delete", true},
		{"alice", "anything", "whatever", true},
		{"bob", "documents", "edit", true},
		{"bob", "reports", "write", true},
		{"bob", "documents", "delete", false},
		{"bob", "sensitive-documents", "read", false},
		{"carol", "documents", "edit", true},
		{"carol", "reports", "read", false},
		{"dave", "documents", "read", true},
		{"dave", "reports", "read", true},
		{"dave", "documents", "write", false},
		{"erin", "documents", "read", false},
		{"frank", "sensitive-documents", "read", true},
		{"frank", "documents", "read", false},
		{"nobody", "documents", "read", false},
	}

	for _, tt := range tests {
		t.Run(tt.user+"/"+tt.resource+"/"+tt.action, func(t *testing.T) {
			t.Parallel()

			got, err := e.CheckAccess(context.Background(), tt.user, tt.resource, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_CheckAccess_UnknownRoleGrantsNothing(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(User{ID: "ghost", Roles: []string{"root"}})
	e, err := NewEvaluator(DefaultRegistry(), store)
	require.NoError(t, err)

	ok, err := e.CheckAccess(context.Background(), "ghost", "documents", "read")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_CheckAccess_StoreError(t *testing.T) {
	t.Parallel()

	e, err := NewEvaluator(DefaultRegistry(), failingStore{})
	require.NoError(t, err)

	ok, err := e.CheckAccess(context.Background(), "alice", "documents", "read")
	assert.False(t, ok)
	assert.ErrorIs(t, err, errBackendDown)
}

func TestEvaluator_UserPermissions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(User{ID: "both", Roles: []string{"editor", "viewer"}})
	e, err := NewEvaluator(DefaultRegistry(), store)
	require.NoError(t, err)

	perms, err := e.UserPermissions(ctx, "both")
	require.NoError(t, err)

	ids := make([]string, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"documents:read", "documents:write", "documents:edit", "reports:read"}, ids)

	perms, err = e.UserPermissions(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, perms)
	assert.Empty(t, perms)
}

func TestEvaluator_AssignRoleToUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("grants permissions", func(t *testing.T) {
		t.Parallel()
		e := newTestEvaluator(t)

		before, err := e.CheckAccess(ctx, "erin", "reports", "read")
		require.NoError(t, err)
		require.False(t, before)

		ok, err := e.AssignRoleToUser(ctx, "erin", "viewer")
		require.NoError(t, err)
		assert.True(t, ok)

		after, err := e.CheckAccess(ctx, "erin", "reports", "read")
		require.NoError(t, err)
		assert.True(t, after)
	})

	t.Run("already held role is not duplicated", func(t *testing.T) {
		t.Parallel()
		e := newTestEvaluator(t)

		ok, err := e.AssignRoleToUser(ctx, "dave", "viewer")
		require.NoError(t, err)
		assert.True(t, ok)

		u, err := e.Store().User(ctx, "dave")
		require.NoError(t, err)
		assert.Equal(t, []string{"viewer"}, u.Roles)
	})

	t.Run("unknown role", func(t *testing.T) {
		t.Parallel()
		e := newTestEvaluator(t)

		ok, err := e.AssignRoleToUser(ctx, "erin", "root")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.mutationTotal.WithLabelValues(OperationAssign, "invalid")))
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		e := newTestEvaluator(t)

		ok, err := e.AssignRoleToUser(ctx, "nobody", "viewer")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		e, err := NewEvaluator(DefaultRegistry(), failingStore{})
		require.NoError(t, err)

		ok, err := e.AssignRoleToUser(ctx, "erin", "viewer")
		assert.False(t, ok)
		assert.ErrorIs(t, err, errBackendDown)
	})
}

func TestEvaluator_RemoveRoleFromUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEvaluator(t)

	ok, err := e.RemoveRoleFromUser(ctx, "bob", "manager")
	require.NoError(t, err)
	assert.True(t, ok)

	allowed, err := e.CheckAccess(ctx, "bob", "documents", "read")
	require.NoError(t, err)
	assert.False(t, allowed)

	ok, err = e.RemoveRoleFromUser(ctx, "bob", "manager")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.RemoveRoleFromUser(ctx, "nobody", "manager")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.mutationTotal.WithLabelValues(OperationRemove, "changed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(e.metrics.mutationTotal.WithLabelValues(OperationRemove, "invalid")))
}

func TestEvaluator_SetRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newTestEvaluator(t)

	registry, err := NewRegistry([]Role{
		{ID: "viewer", Permissions: []Permission{{ID: "audit:read", Resource: "audit", Action: "read"}}},
	})
	require.NoError(t, err)
	e.SetRegistry(registry)

	ok, err := e.CheckAccess(ctx, "dave", "documents", "read")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.CheckAccess(ctx, "dave", "audit", "read")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.CheckAccess(ctx, "alice", "documents", "read")
	require.NoError(t, err)
	assert.False(t, ok, "admin role no longer exists")

	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.roleCount))
}
