package helpers

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/accessd/internal/authz"
	"github.com/vyrodovalexey/accessd/internal/authz/abac"
	"github.com/vyrodovalexey/accessd/internal/authz/rbac"
	"github.com/vyrodovalexey/accessd/internal/config"
	"github.com/vyrodovalexey/accessd/internal/health"
	"github.com/vyrodovalexey/accessd/internal/observability"
	"github.com/vyrodovalexey/accessd/internal/server"
)

// ServerInstance is an accessd API server listening on a local port.
type ServerInstance struct {
	Server  *server.Server
	Store   rbac.UserStore
	BaseURL string
	errCh   chan error
}

// StartServer starts an API server for cfg on a free local port, seeded
// with the configured users and backed by store.
func StartServer(ctx context.Context, cfg *config.Config, store rbac.UserStore) (*ServerInstance, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if store == nil {
		store = rbac.NewMemoryStore()
	}

	port, err := GetFreePort()
	if err != nil {
		return nil, err
	}
	cfg.Server.Address = fmt.Sprintf("127.0.0.1:%d", port)
	cfg.Server.Mode = "test"

	logger := observability.NopLogger()
	if err := rbac.Seed(ctx, store, cfg.RBAC.Users, logger); err != nil {
		return nil, err
	}
	registry, err := rbac.NewRegistry(cfg.RBAC.EffectiveRoles())
	if err != nil {
		return nil, err
	}
	rbacEval, err := rbac.NewEvaluator(registry, store)
	if err != nil {
		return nil, err
	}
	abacEval, err := abac.NewEvaluator(&cfg.ABAC)
	if err != nil {
		return nil, err
	}
	authorizer, err := authz.New(rbacEval, abacEval)
	if err != nil {
		return nil, err
	}

	checker := health.NewChecker("test")
	checker.RegisterCheck("user-store", store.Ping)

	srv, err := server.New(cfg, server.Services{RBAC: rbacEval, ABAC: abacEval, Authorizer: authorizer},
		server.WithHealthChecker(checker),
	)
	if err != nil {
		return nil, err
	}

	inst := &ServerInstance{
		Server:  srv,
		Store:   store,
		BaseURL: "http://" + cfg.Server.Address,
		errCh:   make(chan error, 1),
	}
	go func() { inst.errCh <- srv.Start(ctx) }()

	if err := WaitForReady(inst.BaseURL+"/healthz", 5*time.Second); err != nil {
		_ = srv.Stop(ctx)
		return nil, err
	}
	return inst, nil
}

// Stop shuts the server down and closes the store.
func (si *ServerInstance) Stop(ctx context.Context) error {
	if err := si.Server.Stop(ctx); err != nil {
		return err
	}
	if err := <-si.errCh; err != nil {
		return err
	}
	return si.Store.Close()
}
