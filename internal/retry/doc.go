// Package retry runs operations with exponential backoff and jitter.
//
// It is used at startup to wait for the user store to become reachable.
// Retry settings come from the rbac.store.connect section of the
// configuration; omitted values take the package defaults.
package retry
