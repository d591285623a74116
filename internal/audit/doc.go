// Package audit records security-relevant events for accessd.
//
// Three kinds of event are audited:
//   - authorization: every hybrid access decision, with the engine,
//     reason and policy tags that produced it
//   - administrative: user creation and role assignment or removal
//   - configuration: configuration reloads
//
// Events are written as JSON lines (or single-line text) to stdout,
// stderr or a file, and counted in a Prometheus counter. Request and
// trace ids are taken from the context.
//
//	logger, err := audit.NewLogger(audit.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Close()
//
//	logger.LogRoleChange(ctx, audit.ActionRoleAssign, "erin", "viewer", true, nil)
package audit
