package abac

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

// ErrNilRequest is returned when CheckAccess is called without a request.
var ErrNilRequest = errors.New("abac: request is nil")

// Evaluator dispatches requests to the rule chain of their resource.
// The chain set is an immutable snapshot replaced by Reload.
type Evaluator struct {
	chains  atomic.Pointer[Chains]
	env     *cel.Env
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time
}

// EvaluatorOption is a functional option for the evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvaluatorLogger sets the logger.
func WithEvaluatorLogger(logger observability.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithEvaluatorMetrics sets the metrics.
func WithEvaluatorMetrics(metrics *Metrics) EvaluatorOption {
	return func(e *Evaluator) {
		e.metrics = metrics
	}
}

// WithClock sets the time source exposed to CEL rules as now.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		e.now = now
	}
}

// NewEvaluator creates an evaluator with the built-in chains plus the
// chains configured in cfg. A nil cfg uses DefaultConfig.
func NewEvaluator(cfg *Config, opts ...EvaluatorOption) (*Evaluator, error) {
	e := &Evaluator{
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics("accessd")
	}

	env, err := newCELEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	e.env = env

	if err := e.Reload(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// ChainSet is a compiled chain set waiting to be installed.
type ChainSet struct {
	chains          Chains
	trustedNetworks int
}

// Resources returns the resources guarded by the set.
func (cs *ChainSet) Resources() []string {
	return cs.chains.Resources()
}

// Compile validates cfg and builds its chain set without installing it.
func (e *Evaluator) Compile(cfg *Config) (*ChainSet, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ABAC configuration: %w", err)
	}

	networks := cfg.GetEffectiveTrustedNetworks()
	trusted, err := NewTrustedNetworks(networks)
	if err != nil {
		return nil, err
	}

	chains := BuiltinChains(trusted)
	for _, cc := range cfg.Chains {
		rule, err := compileChain(e.env, cc, e.now, e.logger)
		if err != nil {
			e.metrics.RecordCompilationError()
			return nil, fmt.Errorf("chain %q: %w", cc.Resource, err)
		}
		chains[cc.Resource] = rule
	}
	return &ChainSet{chains: chains, trustedNetworks: len(networks)}, nil
}

// Install swaps in a compiled chain set.
func (e *Evaluator) Install(cs *ChainSet) {
	e.chains.Store(&cs.chains)
	e.metrics.SetChainCount(len(cs.chains))
	e.logger.Info("ABAC chains loaded",
		observability.Strings("resources", cs.chains.Resources()),
		observability.Int("trusted_networks", cs.trustedNetworks),
	)
}

// Reload compiles cfg and installs the result. On error the current chains
// stay in place.
func (e *Evaluator) Reload(cfg *Config) error {
	cs, err := e.Compile(cfg)
	if err != nil {
		return err
	}
	e.Install(cs)
	return nil
}

// Resources returns the resources guarded by a rule chain.
func (e *Evaluator) Resources() []string {
	return e.chains.Load().Resources()
}

// CheckAccess evaluates req against the chain of its resource. Denials are
// results, not errors.
func (e *Evaluator) CheckAccess(_ context.Context, req *Request) (Result, error) {
	if req == nil {
		return Result{}, ErrNilRequest
	}
	start := time.Now()

	chains := *e.chains.Load()
	chain := req.Resource
	if _, ok := chains[chain]; !ok {
		chain = "none"
	}
	result := chains.Evaluate(req)

	decision := "denied"
	if result.Allowed {
		decision = "allowed"
	}
	e.metrics.RecordEvaluation(chain, decision, time.Since(start))
	e.logger.Debug("ABAC decision",
		observability.String("user", req.Subject.ID),
		observability.String("resource", req.Resource),
		observability.String("action", req.Action),
		observability.Bool("allowed", result.Allowed),
		observability.Strings("policies", result.Policies),
	)

	return result, nil
}
