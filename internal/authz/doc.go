// Package authz provides the hybrid access decision for accessd.
//
// A request is evaluated in two stages:
//   - rbac: the user's roles must grant a permission matching the
//     resource and action; a denial here is final and ABAC is not consulted
//   - abac: the rule chain registered for the resource inspects the
//     request attributes (time, network origin, departments)
//
// # Usage
//
//	registry, _ := rbac.NewRegistry(rbac.DefaultRoles())
//	rbacEval, _ := rbac.NewEvaluator(registry, rbac.NewMemoryStore(rbac.DefaultUsers()...))
//	abacEval, _ := abac.NewEvaluator(abac.DefaultConfig())
//
//	authorizer, err := authz.New(rbacEval, abacEval,
//	    authz.WithAuthorizerLogger(logger),
//	    authz.WithAuditLogger(auditLogger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := authorizer.CheckAccess(ctx, &authz.Request{
//	    User:     rbac.User{ID: "bob", Roles: []string{"manager"}},
//	    Resource: "documents",
//	    Action:   "edit",
//	    Context:  &abac.Attributes{Department: "Engineering", ResourceDepartment: "Engineering"},
//	})
package authz
