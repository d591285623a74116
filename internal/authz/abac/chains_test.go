package abac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtinChains(t *testing.T) Chains {
	t.Helper()

	trusted, err := NewTrustedNetworks(DefaultTrustedNetworks)
	require.NoError(t, err)
	return BuiltinChains(trusted)
}

func TestBuiltinChains(t *testing.T) {
	t.Parallel()

	chains := builtinChains(t)
	manager := Subject{ID: "bob", Roles: []string{"manager"}}

	tests := []struct {
		name     string
		req      *Request
		allowed  bool
		policies []string
		contains []string
	}{
		{
			name:     "manager edits own department document",
			req:      &Request{Subject: manager, Resource: "documents", Action: "edit", Context: &Attributes{Department: "eng", ResourceDepartment: "eng"}},
			allowed:  true,
			policies: []string{PolicyDepartmentAccess},
		},
		{
			name:     "manager edits other department document",
			req:      &Request{Subject: manager, Resource: "documents", Action: "edit", Context: &Attributes{Department: "eng", ResourceDepartment: "sales"}},
			allowed:  false,
			policies: []string{PolicyDepartmentAccess},
			contains: []string{"eng", "sales"},
		},
		{
			name:     "document edit ignores time",
			req:      &Request{Subject: manager, Resource: "documents", Action: "edit", Context: &Attributes{Time: "23:00", Department: "eng", ResourceDepartment: "eng"}},
			allowed:  true,
			policies: []string{PolicyDepartmentAccess},
		},
		{
			name:     "document read after hours",
			req:      &Request{Subject: manager, Resource: "documents", Action: "read", Context: &Attributes{Time: "22:00"}},
			allowed:  false,
			policies: []string{PolicyBusinessHours},
		},
		{
			name:     "document read without time",
			req:      &Request{Resource: "documents", Action: "read"},
			allowed:  true,
			policies: []string{PolicyBusinessHours},
		},
		{
			name:     "report read after hours regardless of department",
			req:      &Request{Resource: "reports", Action: "read", Context: &Attributes{Time: "20:00", Department: "eng", ResourceDepartment: "eng"}},
			allowed:  false,
			policies: []string{PolicyBusinessHours},
			contains: []string{"business hours"},
		},
		{
			name:     "report read same department",
			req:      &Request{Resource: "reports", Action: "read", Context: &Attributes{Time: "10:00", Department: "eng", ResourceDepartment: "eng"}},
			allowed:  true,
			policies: []string{PolicyBusinessHours, PolicyDepartmentAccess},
		},
		{
			name:     "report read other department",
			req:      &Request{Resource: "reports", Action: "read", Context: &Attributes{Time: "10:00", Department: "eng", ResourceDepartment: "sales"}},
			allowed:  false,
			policies: []string{PolicyBusinessHours, PolicyDepartmentAccess},
			contains: []string{"eng", "sales"},
		},
		{
			name:     "report read with one department",
			req:      &Request{Resource: "reports", Action: "read", Context: &Attributes{Time: "10:00", Department: "eng"}},
			allowed:  true,
			policies: []string{PolicyBusinessHours},
			contains: []string{"business hours"},
		},
		{
			name:     "report write skips department rule",
			req:      &Request{Resource: "reports", Action: "write", Context: &Attributes{Time: "10:00", Department: "eng", ResourceDepartment: "sales"}},
			allowed:  true,
			policies: []string{PolicyBusinessHours},
		},
		{
			name:     "sensitive document from public address",
			req:      &Request{Resource: "sensitive-documents", Action: "read", Context: &Attributes{IPAddress: "8.8.8.8"}},
			allowed:  false,
			policies: []string{PolicyNetworkAccess},
		},
		{
			name:     "sensitive document from lan",
			req:      &Request{Resource: "sensitive-documents", Action: "read", Context: &Attributes{IPAddress: "192.168.1.5"}},
			allowed:  true,
			policies: []string{PolicyNetworkAccess},
		},
		{
			name:     "unguarded resource",
			req:      &Request{Resource: "wiki", Action: "delete"},
			allowed:  true,
			policies: []string{},
			contains: []string{ReasonNoRules},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := chains.Evaluate(tt.req)
			assert.Equal(t, tt.allowed, res.Allowed, res.Reason)
			assert.Equal(t, tt.policies, res.Policies)
			for _, s := range tt.contains {
				assert.Contains(t, res.Reason, s)
			}
		})
	}
}

func TestSequence(t *testing.T) {
	t.Parallel()

	calls := 0
	counting := func(res Result) Rule {
		return func(*Request) Result {
			calls++
			return res
		}
	}

	rule := Sequence(
		counting(allow("first", "a")),
		counting(deny("second", "b")),
		counting(allow("third", "c")),
	)
	res := rule(&Request{})

	assert.False(t, res.Allowed)
	assert.Equal(t, "second", res.Reason)
	assert.Equal(t, []string{"a", "b"}, res.Policies)
	assert.Equal(t, 2, calls)
}

func TestSequence_KeepsLastReason(t *testing.T) {
	t.Parallel()

	rule := Sequence(
		func(*Request) Result { return allow("first", "a") },
		func(*Request) Result { return allow("") },
	)
	res := rule(&Request{})

	assert.True(t, res.Allowed)
	assert.Equal(t, "first", res.Reason)
	assert.Equal(t, []string{"a"}, res.Policies)
}

func TestChains_Resources(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"documents", "reports", "sensitive-documents"}, builtinChains(t).Resources())
}

func TestIsBuiltinResource(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBuiltinResource("documents"))
	assert.True(t, IsBuiltinResource("sensitive-documents"))
	assert.False(t, IsBuiltinResource("wiki"))
}
