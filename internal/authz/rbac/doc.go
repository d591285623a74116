// Package rbac provides Role-Based Access Control for accessd.
//
// A Registry maps role ids to ordered permission sets. Users and their
// role assignments live in an injected UserStore (memory, redis or
// badger). The Evaluator unions the permissions of a user's roles and
// checks them against a resource and action; `*` in a permission matches
// any value for that field.
//
// Unknown users and unknown roles never produce errors. They simply
// grant nothing, so every check denies by default.
//
//	registry := rbac.DefaultRegistry()
//	store := rbac.NewMemoryStore(rbac.DefaultUsers()...)
//	evaluator, err := rbac.NewEvaluator(registry, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	allowed, err := evaluator.CheckAccess(ctx, "bob", "documents", "edit")
package rbac
