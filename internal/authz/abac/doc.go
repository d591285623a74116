// Package abac provides Attribute-Based Access Control for accessd.
//
// Requests are dispatched by resource name to a rule chain. Each rule
// returns an allow or deny Result with a human readable reason and the
// policy tags it contributed; chains accumulate tags and stop at the
// first denial.
//
// # Built-in chains
//
//   - documents: editing is restricted to managers of the owning
//     department; every other action is limited to business hours.
//   - reports: business hours, then for reads the subject and resource
//     departments must not conflict.
//   - sensitive-documents: the client address must be in a trusted network.
//
// Any other resource is allowed. Additional resources can be guarded by
// CEL rule chains from configuration. Expressions see subject, resource,
// action, context and now, and may call ip_in_range(ip, cidr).
//
// # Usage
//
//	evaluator, err := abac.NewEvaluator(abac.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := evaluator.CheckAccess(ctx, &abac.Request{
//	    Subject:  abac.Subject{ID: "bob", Roles: []string{"manager"}},
//	    Resource: "documents",
//	    Action:   "edit",
//	    Context:  &abac.Attributes{Department: "eng", ResourceDepartment: "eng"},
//	})
package abac
