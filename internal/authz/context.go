package authz

import (
	"context"
	"net/http"

	"github.com/stanstork/franchise-hub/internal/models"
)

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	userIDKey    contextKey = "user_id"
	userRolesKey contextKey = "user_roles"
)

// WithIdentity stores tenant, user, and role information on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if id.TenantID != "" {
		ctx = context.WithValue(ctx, tenantIDKey, id.TenantID)
	}
	if id.UserID != "" {
		ctx = context.WithValue(ctx, userIDKey, id.UserID)
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(id.Roles))
	ctx = context.WithValue(ctx, userRolesKey, normalized)
	return ctx
}

// IdentityFromContext rebuilds the caller identity. ok is false unless both the
// tenant and the user are present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	tid, _ := ctx.Value(tenantIDKey).(string)
	uid, _ := ctx.Value(userIDKey).(string)
	if tid == "" || uid == "" {
		return Identity{}, false
	}
	roles, _ := ctx.Value(userRolesKey).([]models.UserRole)
	return Identity{UserID: uid, TenantID: tid, Roles: roles}, true
}

func TenantIDFromRequest(r *http.Request) (string, bool) {
	tid, ok := r.Context().Value(tenantIDKey).(string)
	if !ok || tid == "" {
		return "", false
	}
	return tid, true
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	roles, ok := r.Context().Value(userRolesKey).([]models.UserRole)
	if !ok || !models.IsValidRoleList(roles) {
		return nil, false
	}
	return roles, true
}
