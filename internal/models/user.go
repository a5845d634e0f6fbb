package models

import "sort"

type UserRole string

const (
	RoleViewer     UserRole = "viewer"
	RoleManager    UserRole = "manager"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "super_admin"
)

var roleTiers = map[UserRole]int{
	RoleViewer:     1,
	RoleManager:    2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// ManagerRoles lists every role that counts as "manager or above" for audience
// resolution and role checks.
var ManagerRoles = []UserRole{RoleManager, RoleAdmin, RoleSuperAdmin}

type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	RestaurantID *string    `json:"restaurant_id,omitempty"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	Roles        []UserRole `json:"roles"`
}

// UserSummary is the identity attached to a view when reporting who has seen an item.
type UserSummary struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Role      UserRole `json:"role"`
}

func (u User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      HighestRole(u.Roles),
	}
}

func IsValidRole(role UserRole) bool {
	_, ok := roleTiers[role]
	return ok
}

func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return true
}

// NormalizeRoles removes duplicates and orders roles from lowest to highest tier.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]struct{}, len(roles))
	result := make([]UserRole, 0, len(roles))
	for _, role := range roles {
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		result = append(result, role)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return roleTiers[result[i]] < roleTiers[result[j]]
	})
	return result
}

// EnsureDefaultRole guarantees every user carries at least the viewer role.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	for _, role := range roles {
		if role == RoleViewer {
			return roles
		}
	}
	return NormalizeRoles(append([]UserRole{RoleViewer}, roles...))
}

func HighestRole(roles []UserRole) UserRole {
	highest := RoleViewer
	for _, role := range roles {
		if roleTiers[role] > roleTiers[highest] {
			highest = role
		}
	}
	return highest
}

// HasAtLeast reports whether any of roles reaches the tier of required.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	need, ok := roleTiers[required]
	if !ok {
		return false
	}
	for _, role := range roles {
		if roleTiers[role] >= need {
			return true
		}
	}
	return false
}
