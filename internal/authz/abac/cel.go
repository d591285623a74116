package abac

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

// newCELEnvironment declares the variables and functions available to
// configured rule expressions.
func newCELEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		// id and roles of the subject
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("resource", cel.StringType),
		cel.Variable("action", cel.StringType),
		// present request attributes keyed by wire name
		cel.Variable("context", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("now", cel.TimestampType),

		cel.Function("ip_in_range",
			cel.Overload("ip_in_range_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(ipInRangeBinding),
			),
		),
	)
}

// ipInRangeBinding checks if an IP is in a CIDR range (CEL binding).
func ipInRangeBinding(ip, cidr ref.Val) ref.Val {
	ipStr, ok := ip.Value().(string)
	if !ok {
		return types.False
	}
	cidrStr, ok := cidr.Value().(string)
	if !ok {
		return types.False
	}

	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return types.False
	}
	prefix, err := netip.ParsePrefix(cidrStr)
	if err != nil {
		return types.False
	}

	return types.Bool(prefix.Masked().Contains(addr.Unmap()))
}

type compiledRule struct {
	config  RuleConfig
	program cel.Program
}

// compileChain compiles every rule of cfg into a single Rule.
func compileChain(env *cel.Env, cfg ChainConfig, now func() time.Time, logger observability.Logger) (Rule, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		ast, issues := env.Compile(rc.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: failed to compile expression: %w", rc.Name, issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("rule %q: expression must evaluate to bool, got %s", rc.Name, out)
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: failed to create program: %w", rc.Name, err)
		}
		rules = append(rules, compiledRule{config: rc, program: program})
	}

	actions := make(map[string]struct{}, len(cfg.Actions))
	for _, a := range cfg.Actions {
		actions[a] = struct{}{}
	}
	granted := fmt.Sprintf("Access granted by %s policies", cfg.Resource)

	return func(req *Request) Result {
		if len(actions) > 0 {
			if _, ok := actions[req.Action]; !ok {
				return allow(ReasonNoRules)
			}
		}

		roles := req.Subject.Roles
		if roles == nil {
			roles = []string{}
		}
		vars := map[string]interface{}{
			"subject":  map[string]interface{}{"id": req.Subject.ID, "roles": roles},
			"resource": req.Resource,
			"action":   req.Action,
			"context":  req.attrs().asMap(),
			"now":      now(),
		}

		policies := make([]string, 0, len(rules))
		for _, r := range rules {
			policies = append(policies, r.config.Name)

			val, _, err := r.program.Eval(vars)
			if err != nil {
				logger.Warn("CEL evaluation error",
					observability.String("resource", cfg.Resource),
					observability.String("rule", r.config.Name),
					observability.Error(err),
				)
				return deny(fmt.Sprintf("Access denied: policy %s could not be evaluated", r.config.Name), policies...)
			}
			ok, isBool := val.Value().(bool)
			if !isBool {
				logger.Warn("CEL rule returned non-bool",
					observability.String("resource", cfg.Resource),
					observability.String("rule", r.config.Name),
				)
				return deny(fmt.Sprintf("Access denied: policy %s could not be evaluated", r.config.Name), policies...)
			}
			if !ok {
				return deny(r.config.GetEffectiveReason(), policies...)
			}
		}
		return allow(granted, policies...)
	}, nil
}
