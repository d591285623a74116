package main

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vyrodovalexey/accessd/internal/audit"
	"github.com/vyrodovalexey/accessd/internal/authz/rbac"
	"github.com/vyrodovalexey/accessd/internal/config"
	"github.com/vyrodovalexey/accessd/internal/observability"
)

const reloadSource = "file"

// reload applies a new configuration revision: role registry, ABAC chains,
// seed users and audit settings. Every fallible step runs before anything is
// swapped, so a failed reload leaves the running revision in place. Listener,
// store and tracing changes need a restart and are only reported.
func (app *application) reload(ctx context.Context, newCfg *config.Config) (err error) {
	defer func() {
		app.audit.LogConfigReload(ctx, reloadSource, err)
	}()

	old := app.config
	app.logger.Info("configuration changed, reloading")

	registry, err := rbac.NewRegistry(newCfg.RBAC.EffectiveRoles())
	if err != nil {
		return fmt.Errorf("failed to build role registry: %w", err)
	}
	chains, err := app.abac.Compile(&newCfg.ABAC)
	if err != nil {
		return err
	}

	var auditLogger audit.Logger
	if !reflect.DeepEqual(old.Audit, newCfg.Audit) {
		auditLogger, err = newAuditLogger(&newCfg.Audit, app.logger, app.auditMetrics)
		if err != nil {
			return err
		}
	}

	// Seed only adds missing users; it is the last fallible step.
	if err = rbac.Seed(ctx, app.store, newCfg.RBAC.Users, app.logger); err != nil {
		if auditLogger != nil {
			_ = auditLogger.Close()
		}
		return err
	}

	app.abac.Install(chains)
	app.rbac.SetRegistry(registry)
	if auditLogger != nil {
		if prev := app.audit.Swap(auditLogger); prev != nil {
			_ = prev.Close()
		}
	}

	warnRestartRequired(app.logger, old, newCfg)
	app.config = newCfg

	app.logger.Info("configuration reloaded",
		observability.Int("roles", registry.Len()),
		observability.Strings("abac_resources", chains.Resources()),
	)
	return nil
}

// warnRestartRequired logs sections that changed but only take effect on
// restart.
func warnRestartRequired(logger observability.Logger, old, newCfg *config.Config) {
	sections := []struct {
		name    string
		changed bool
	}{
		{"server", !reflect.DeepEqual(old.Server, newCfg.Server)},
		{"rateLimit", old.RateLimit != newCfg.RateLimit},
		{"rbac.store", !reflect.DeepEqual(old.RBAC.Store, newCfg.RBAC.Store)},
		{"tracing", old.Tracing != newCfg.Tracing},
	}
	for _, s := range sections {
		if s.changed {
			logger.Warn("configuration section changed; restart required to apply",
				observability.String("section", s.name),
			)
		}
	}
}
