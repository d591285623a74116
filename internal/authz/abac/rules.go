package abac

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/gaissmai/bart"
)

// Policy tags recorded in results.
const (
	PolicyBusinessHours     = "business-hours"
	PolicyDepartmentAccess  = "department-access"
	PolicyManagerDepartment = "manager-department"
	PolicyNetworkAccess     = "network-access"
)

// Business hours, inclusive on both ends.
const (
	BusinessHoursStart = 9
	BusinessHoursEnd   = 17
)

// RoleManager is the role subject to the department edit restriction.
const RoleManager = "manager"

const timeLayout = "15:04"

// Rule evaluates one policy against a request.
type Rule func(req *Request) Result

// BusinessHours allows requests whose context time falls within business
// hours. A request without a time is allowed; a malformed time is denied.
func BusinessHours() Rule {
	return func(req *Request) Result {
		raw := strings.TrimSpace(req.attrs().Time)
		if raw == "" {
			return allow("No time restriction applied", PolicyBusinessHours)
		}
		t, err := time.Parse(timeLayout, raw)
		if err != nil {
			return deny(fmt.Sprintf("Access denied: invalid time %q", raw), PolicyBusinessHours)
		}
		if h := t.Hour(); h < BusinessHoursStart || h > BusinessHoursEnd {
			return deny(fmt.Sprintf("Access denied: outside business hours (%02d:00-%02d:59)",
				BusinessHoursStart, BusinessHoursEnd), PolicyBusinessHours)
		}
		return allow("Access granted during business hours", PolicyBusinessHours)
	}
}

// ManagerDepartment restricts managers to resources of their own
// department. Subjects without the manager role are not restricted.
func ManagerDepartment() Rule {
	return func(req *Request) Result {
		if !req.Subject.HasRole(RoleManager) {
			return allow("No department restriction for role")
		}
		a := req.attrs()
		if a.Department == "" {
			return deny("Access denied: manager department not specified", PolicyManagerDepartment)
		}
		if a.Department != a.ResourceDepartment {
			return deny(fmt.Sprintf("Access denied: manager from %s cannot edit %s documents",
				a.Department, displayDepartment(a.ResourceDepartment)), PolicyDepartmentAccess)
		}
		return allow("Access granted: manager editing own department's document", PolicyDepartmentAccess)
	}
}

// ReportDepartment denies when the subject and resource departments are
// both known and differ. Missing departments are not restricted and the
// result then carries neither a reason nor a tag.
func ReportDepartment() Rule {
	return func(req *Request) Result {
		a := req.attrs()
		if a.Department == "" || a.ResourceDepartment == "" {
			return allow("")
		}
		if a.Department != a.ResourceDepartment {
			return deny(fmt.Sprintf("Access denied: department %s cannot read %s reports",
				a.Department, a.ResourceDepartment), PolicyDepartmentAccess)
		}
		return allow("Access granted: same department report", PolicyDepartmentAccess)
	}
}

// NetworkOrigin allows requests whose IP address is inside one of the
// trusted prefixes.
func NetworkOrigin(trusted *bart.Lite) Rule {
	return func(req *Request) Result {
		raw := strings.TrimSpace(req.attrs().IPAddress)
		if raw == "" {
			return deny("Access denied: IP address not provided", PolicyNetworkAccess)
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return deny(fmt.Sprintf("Access denied: invalid IP address %q", raw), PolicyNetworkAccess)
		}
		if !trusted.Contains(addr) {
			return deny(fmt.Sprintf("Access denied: %s is not a trusted network", raw), PolicyNetworkAccess)
		}
		return allow("Access granted from trusted network", PolicyNetworkAccess)
	}
}

// NewTrustedNetworks builds the prefix table used by NetworkOrigin.
func NewTrustedNetworks(prefixes []string) (*bart.Lite, error) {
	table := &bart.Lite{}
	for _, p := range prefixes {
		pfx, err := netip.ParsePrefix(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid trusted network %q: %w", p, err)
		}
		table.Insert(pfx.Masked())
	}
	return table, nil
}

func displayDepartment(d string) string {
	if d == "" {
		return "unspecified"
	}
	return d
}
