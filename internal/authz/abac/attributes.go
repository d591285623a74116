package abac

// Attributes are the recognised request context attributes. Empty fields
// are treated as absent.
type Attributes struct {
	// Time is the local time of the request as HH:MM.
	Time string `yaml:"time,omitempty" json:"time,omitempty"`

	// IPAddress is the client address.
	IPAddress string `yaml:"ip_address,omitempty" json:"ip_address,omitempty"`

	// Department is the subject's department.
	Department string `yaml:"department,omitempty" json:"department,omitempty"`

	// ResourceDepartment is the department owning the resource.
	ResourceDepartment string `yaml:"resourceDepartment,omitempty" json:"resourceDepartment,omitempty"`

	// Location is the subject's reported location.
	Location string `yaml:"location,omitempty" json:"location,omitempty"`
}

// asMap exposes the present attributes to CEL expressions under their wire names.
func (a *Attributes) asMap() map[string]string {
	m := make(map[string]string, 5)
	if a == nil {
		return m
	}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("time", a.Time)
	set("ip_address", a.IPAddress)
	set("department", a.Department)
	set("resourceDepartment", a.ResourceDepartment)
	set("location", a.Location)
	return m
}

// Subject is the user a request is evaluated for.
type Subject struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the subject holds role.
func (s Subject) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Request is an ABAC evaluation request.
type Request struct {
	Subject  Subject     `json:"user"`
	Resource string      `json:"resource"`
	Action   string      `json:"action"`
	Context  *Attributes `json:"context,omitempty"`
}

// attrs returns the request context, never nil.
func (r *Request) attrs() *Attributes {
	if r.Context == nil {
		return &Attributes{}
	}
	return r.Context
}

// Result is the outcome of an ABAC evaluation. Policies lists the policy
// tags of the rules that contributed, in evaluation order.
type Result struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason"`
	Policies []string `json:"policies"`
}

func allow(reason string, policies ...string) Result {
	return Result{Allowed: true, Reason: reason, Policies: tags(policies)}
}

func deny(reason string, policies ...string) Result {
	return Result{Allowed: false, Reason: reason, Policies: tags(policies)}
}

func tags(policies []string) []string {
	if policies == nil {
		return []string{}
	}
	return policies
}
