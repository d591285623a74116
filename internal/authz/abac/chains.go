package abac

import (
	"sort"

	"github.com/gaissmai/bart"
)

// Resources with built-in rule chains.
const (
	ResourceDocuments          = "documents"
	ResourceReports            = "reports"
	ResourceSensitiveDocuments = "sensitive-documents"
)

// ReasonNoRules is returned for resources without a rule chain.
const ReasonNoRules = "no ABAC rules for resource"

// Chains maps a resource name to the rule chain guarding it.
type Chains map[string]Rule

// BuiltinChains returns the chains for documents, reports and sensitive
// documents. trusted is the network table for sensitive documents.
func BuiltinChains(trusted *bart.Lite) Chains {
	return Chains{
		ResourceDocuments:          OnAction("edit", ManagerDepartment(), BusinessHours()),
		ResourceReports:            Sequence(BusinessHours(), OnAction("read", ReportDepartment(), nil)),
		ResourceSensitiveDocuments: NetworkOrigin(trusted),
	}
}

// IsBuiltinResource reports whether resource has a built-in chain.
func IsBuiltinResource(resource string) bool {
	switch resource {
	case ResourceDocuments, ResourceReports, ResourceSensitiveDocuments:
		return true
	default:
		return false
	}
}

// Evaluate runs the chain registered for the request resource. Resources
// without a chain are allowed.
func (c Chains) Evaluate(req *Request) Result {
	rule, ok := c[req.Resource]
	if !ok {
		return allow(ReasonNoRules)
	}
	return rule(req)
}

// Resources returns the guarded resource names in sorted order.
func (c Chains) Resources() []string {
	out := make([]string, 0, len(c))
	for r := range c {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Sequence evaluates rules in order. The first denial is returned with the
// tags accumulated so far; otherwise the result allows with every tag and
// the last non-empty reason.
func Sequence(rules ...Rule) Rule {
	return func(req *Request) Result {
		out := allow("")
		for _, rule := range rules {
			res := rule(req)
			out.Policies = append(out.Policies, res.Policies...)
			if !res.Allowed {
				out.Allowed = false
				out.Reason = res.Reason
				return out
			}
			if res.Reason != "" {
				out.Reason = res.Reason
			}
		}
		return out
	}
}

// OnAction applies then when the request action equals action and
// otherwise in every other case. A nil otherwise allows silently.
func OnAction(action string, then, otherwise Rule) Rule {
	return func(req *Request) Result {
		if req.Action == action {
			return then(req)
		}
		if otherwise == nil {
			return allow("")
		}
		return otherwise(req)
	}
}
