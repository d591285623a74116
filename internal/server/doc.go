// Package server exposes the access decision engines over HTTP.
//
// The API is served by gin behind the shared net/http middleware chain
// (recovery, metrics, tracing, request id, logging, rate limiting and
// body limits):
//
//	GET    /healthz                      liveness
//	GET    /readyz                       readiness, pings the user store
//	GET    /metrics                      Prometheus metrics
//	GET    /v1/roles                     role registry
//	GET    /v1/users                     all users
//	POST   /v1/users                     create a user
//	GET    /v1/users/:id                 one user
//	GET    /v1/users/:id/permissions     effective permissions
//	PUT    /v1/users/:id/roles/:role     assign a role
//	DELETE /v1/users/:id/roles/:role     remove a role
//	POST   /v1/rbac/check                role-only decision
//	POST   /v1/abac/check                attribute-only decision
//	POST   /v1/access/check              hybrid decision
//
// Denials are ordinary 200 responses; only malformed requests (400, 413)
// and backend failures (500) are reported as errors.
package server
