// Package health serves the liveness and readiness probes.
//
// Liveness always answers 200 while the process runs. Readiness runs the
// registered checks, such as pinging the user store, and answers 503
// when any of them fails.
package health
