package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/accessd/internal/audit"
	"github.com/vyrodovalexey/accessd/internal/authz"
	"github.com/vyrodovalexey/accessd/internal/authz/abac"
	"github.com/vyrodovalexey/accessd/internal/authz/rbac"
	"github.com/vyrodovalexey/accessd/internal/config"
	"github.com/vyrodovalexey/accessd/internal/health"
	"github.com/vyrodovalexey/accessd/internal/middleware"
	"github.com/vyrodovalexey/accessd/internal/observability"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Services are the engines the API exposes.
type Services struct {
	RBAC       *rbac.Evaluator
	ABAC       *abac.Evaluator
	Authorizer *authz.Authorizer
}

// Server is the accessd HTTP API.
type Server struct {
	engine      *gin.Engine
	handler     http.Handler
	httpServer  *http.Server
	services    Services
	config      *config.Config
	logger      observability.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	audit       audit.Logger
	health      *health.Checker
	rateLimiter *middleware.RateLimiter
	mu          sync.RWMutex
	running     bool
}

// Option is a functional option for the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the HTTP metrics; their registry is served on /metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithTracer enables per-request server spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithAuditLogger sets the audit logger for administrative events.
func WithAuditLogger(logger audit.Logger) Option {
	return func(s *Server) {
		s.audit = logger
	}
}

// WithHealthChecker sets the checker behind /healthz and /readyz.
func WithHealthChecker(checker *health.Checker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// New builds the server and its handler chain.
func New(cfg *config.Config, services Services, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if services.RBAC == nil || services.ABAC == nil || services.Authorizer == nil {
		return nil, errors.New("rbac, abac and authorizer services are required")
	}

	s := &Server{
		services: services,
		config:   cfg,
		logger:   observability.NopLogger(),
		audit:    audit.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics("accessd")
	}
	if s.health == nil {
		s.health = health.NewChecker("")
	}

	ginModeOnce.Do(func() {
		mode := cfg.Server.Mode
		if mode == "" {
			mode = gin.ReleaseMode
		}
		gin.SetMode(mode)
	})

	s.engine = gin.New()
	s.engine.HandleMethodNotAllowed = true
	s.engine.Use(routeLabel())
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	})
	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	s.registerRoutes()

	s.handler = s.buildChain()
	return s, nil
}

// routeLabel records the matched route template for logs, spans and metrics.
func routeLabel() gin.HandlerFunc {
	return func(c *gin.Context) {
		observability.SetRoute(c.Request.Context(), c.FullPath())
		c.Next()
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", gin.WrapF(s.health.HealthHandler()))
	s.engine.GET("/readyz", gin.WrapF(s.health.ReadinessHandler()))
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.engine.Group("/v1")
	v1.GET("/roles", s.listRoles)
	v1.GET("/users", s.listUsers)
	v1.POST("/users", s.createUser)
	v1.GET("/users/:id", s.getUser)
	v1.GET("/users/:id/permissions", s.userPermissions)
	v1.PUT("/users/:id/roles/:role", s.assignRole)
	v1.DELETE("/users/:id/roles/:role", s.removeRole)
	v1.POST("/rbac/check", s.rbacCheck)
	v1.POST("/abac/check", s.abacCheck)
	v1.POST("/access/check", s.accessCheck)
}

// buildChain wraps the router, outermost first: recovery, metrics,
// tracing, request id, security headers, logging, rate limit, body limit.
func (s *Server) buildChain() http.Handler {
	extractor := middleware.NewClientIPExtractor(s.config.Server.TrustedProxies)

	rateLimit, limiter := middleware.RateLimitFromConfig(&s.config.RateLimit, s.logger,
		middleware.WithRateLimiterMetrics(s.metrics),
		middleware.WithClientIPExtractor(extractor),
	)
	s.rateLimiter = limiter

	var h http.Handler = s.engine
	h = middleware.BodyLimit(s.config.Server.GetEffectiveMaxBodyBytes(), s.logger)(h)
	h = rateLimit(h)
	h = middleware.Logging(s.logger, extractor)(h)
	h = middleware.SecurityHeaders()(h)
	h = middleware.RequestID()(h)
	if s.tracer != nil {
		h = observability.TracingMiddleware(s.tracer)(h)
	}
	h = observability.MetricsMiddleware(s.metrics)(h)
	h = middleware.Recovery(s.logger, s.metrics)(h)
	return h
}

// Handler returns the complete HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := s.config.Server.GetEffectiveAddress()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.Server.GetEffectiveReadTimeout(),
		WriteTimeout: s.config.Server.GetEffectiveWriteTimeout(),
	}
	httpServer := s.httpServer
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", addr),
		observability.Duration("readTimeout", httpServer.ReadTimeout),
		observability.Duration("writeTimeout", httpServer.WriteTimeout),
	)

	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
