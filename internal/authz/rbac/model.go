package rbac

// Wildcard matches any resource or action.
const Wildcard = "*"

// Permission grants an action on a resource. Either field may be Wildcard.
type Permission struct {
	// ID identifies the permission; permissions are de-duplicated by ID.
	ID string `yaml:"id" json:"id" validate:"required"`

	// Resource is the resource name or Wildcard.
	Resource string `yaml:"resource" json:"resource" validate:"required"`

	// Action is the action name or Wildcard.
	Action string `yaml:"action" json:"action" validate:"required"`
}

// Matches reports whether the permission covers resource and action.
func (p Permission) Matches(resource, action string) bool {
	return (p.Resource == resource || p.Resource == Wildcard) &&
		(p.Action == action || p.Action == Wildcard)
}

// Role is a named, ordered set of permissions.
type Role struct {
	ID          string       `yaml:"id" json:"id" validate:"required"`
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Permissions []Permission `yaml:"permissions" json:"permissions" validate:"dive"`
}

// User is a subject holding an ordered list of role ids.
type User struct {
	ID    string   `yaml:"id" json:"id" validate:"required"`
	Roles []string `yaml:"roles" json:"roles"`
}

// HasRole reports whether the user holds roleID.
func (u *User) HasRole(roleID string) bool {
	for _, r := range u.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers never alias store state.
func (u User) clone() User {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return User{ID: u.ID, Roles: roles}
}

// normalize drops duplicate role ids, keeping the first occurrence.
func (u *User) normalize() {
	seen := make(map[string]struct{}, len(u.Roles))
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	u.Roles = roles
}

// addRole is the mutation shared by every store. held reports whether the
// user holds the role afterwards; dirty reports whether u changed.
func (u *User) addRole(roleID string) (held, dirty bool) {
	if u.HasRole(roleID) {
		return true, false
	}
	u.Roles = append(u.Roles, roleID)
	return true, true
}

// removeRole deletes roleID; removed is false when the role was not held.
func (u *User) removeRole(roleID string) (removed, dirty bool) {
	for i, r := range u.Roles {
		if r == roleID {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return true, true
		}
	}
	return false, false
}
