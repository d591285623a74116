package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/accessd/internal/audit"
	"github.com/vyrodovalexey/accessd/internal/authz"
	"github.com/vyrodovalexey/accessd/internal/authz/abac"
	"github.com/vyrodovalexey/accessd/internal/authz/rbac"
	"github.com/vyrodovalexey/accessd/internal/config"
	"github.com/vyrodovalexey/accessd/internal/health"
	"github.com/vyrodovalexey/accessd/internal/observability"
	"github.com/vyrodovalexey/accessd/internal/retry"
	"github.com/vyrodovalexey/accessd/internal/server"
)

const metricsNamespace = "accessd"

// application holds all application components.
type application struct {
	config       *config.Config
	logger       observability.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	store        rbac.UserStore
	rbac         *rbac.Evaluator
	abac         *abac.Evaluator
	authorizer   *authz.Authorizer
	audit        *audit.AtomicAuditLogger
	auditMetrics *audit.Metrics
	health       *health.Checker
	server       *server.Server
}

// newApplication wires every component from cfg. On error the components
// created so far are released.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (_ *application, err error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: observability.NewMetrics(metricsNamespace),
	}
	defer func() {
		if err != nil {
			app.close(context.Background())
		}
	}()

	app.metrics.SetBuildInfo(version, gitCommit, buildTime)
	registry := app.metrics.Registry()

	app.tracer, err = observability.NewTracer(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	app.auditMetrics = audit.NewMetricsWithRegisterer(metricsNamespace, registry)
	auditLogger, err := newAuditLogger(&cfg.Audit, logger, app.auditMetrics)
	if err != nil {
		return nil, err
	}
	app.audit = audit.NewAtomicAuditLogger(auditLogger)

	app.store, err = openStore(cfg.RBAC.Store, logger)
	if err != nil {
		return nil, err
	}
	if err = waitForStore(ctx, app.store, &cfg.RBAC.Store.Connect, logger); err != nil {
		return nil, err
	}
	if err = rbac.Seed(ctx, app.store, cfg.RBAC.Users, logger); err != nil {
		return nil, err
	}

	roles, err := rbac.NewRegistry(cfg.RBAC.EffectiveRoles())
	if err != nil {
		return nil, fmt.Errorf("failed to build role registry: %w", err)
	}
	rbacMetrics := rbac.NewMetrics(metricsNamespace)
	rbacMetrics.MustRegister(registry)
	app.rbac, err = rbac.NewEvaluator(roles, app.store,
		rbac.WithEvaluatorLogger(logger),
		rbac.WithEvaluatorMetrics(rbacMetrics),
	)
	if err != nil {
		return nil, err
	}

	abacMetrics := abac.NewMetrics(metricsNamespace)
	abacMetrics.MustRegister(registry)
	app.abac, err = abac.NewEvaluator(&cfg.ABAC,
		abac.WithEvaluatorLogger(logger),
		abac.WithEvaluatorMetrics(abacMetrics),
	)
	if err != nil {
		return nil, err
	}

	app.authorizer, err = authz.New(app.rbac, app.abac,
		authz.WithAuthorizerLogger(logger),
		authz.WithAuthorizerMetrics(authz.NewMetricsWithRegisterer(metricsNamespace, registry)),
		authz.WithAuditLogger(app.audit),
	)
	if err != nil {
		return nil, err
	}

	app.health = health.NewChecker(version)
	app.health.RegisterCheck("user-store", app.store.Ping)

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(app.metrics),
		server.WithAuditLogger(app.audit),
		server.WithHealthChecker(app.health),
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, server.WithTracer(app.tracer))
	}
	app.server, err = server.New(cfg, server.Services{
		RBAC:       app.rbac,
		ABAC:       app.abac,
		Authorizer: app.authorizer,
	}, opts...)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// openStore creates the configured user store backend.
func openStore(cfg rbac.StoreConfig, logger observability.Logger) (rbac.UserStore, error) {
	store, err := rbac.NewStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.GetEffectiveType(), err)
	}
	return store, nil
}

// waitForStore pings the store with backoff until it answers.
func waitForStore(ctx context.Context, store rbac.UserStore, cfg *retry.Config, logger observability.Logger) error {
	err := retry.Do(ctx, cfg, store.Ping, func(attempt int, err error, backoff time.Duration) {
		logger.Warn("user store not reachable, retrying",
			observability.Int("attempt", attempt),
			observability.Duration("backoff", backoff),
			observability.Error(err),
		)
	})
	if err != nil {
		return fmt.Errorf("user store not reachable: %w", err)
	}
	return nil
}

// newAuditLogger builds an audit logger for cfg; disabled auditing gets a
// no-op logger so no output file is opened.
func newAuditLogger(cfg *audit.Config, logger observability.Logger, metrics *audit.Metrics) (audit.Logger, error) {
	if !cfg.Enabled {
		return audit.NewNoopLogger(), nil
	}
	l, err := audit.NewLogger(cfg,
		audit.WithLoggerLogger(logger),
		audit.WithLoggerMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit logger: %w", err)
	}
	return l, nil
}

// close releases every component that holds resources.
func (app *application) close(ctx context.Context) {
	if app.tracer != nil {
		if err := app.tracer.Shutdown(ctx); err != nil {
			app.logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
	if app.audit != nil {
		if err := app.audit.Close(); err != nil {
			app.logger.Error("failed to close audit logger", observability.Error(err))
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Error("failed to close user store", observability.Error(err))
		}
	}
}
