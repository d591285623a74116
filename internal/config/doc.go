// Package config loads the accessd configuration.
//
// Values are layered: built-in defaults, then the YAML file (with
// ${VAR} and ${VAR:-default} substitution), then ACCESSD_* environment
// variables. The result is checked with struct validation tags and each
// section's own Validate method.
//
//	cfg, err := config.Load("accessd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// A Watcher re-reads the file on change and hands valid revisions to a
// ReloadFunc, which swaps in the new role registry and ABAC chains.
package config
