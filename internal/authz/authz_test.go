package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/franchise-hub/internal/models"
)

const testSecret = "test-secret"

func testUser() models.User {
	return models.User{
		ID:       "user-1",
		TenantID: "tenant-1",
		Roles:    []models.UserRole{models.RoleManager},
	}
}

func TestResolverRoundTrip(t *testing.T) {
	r := NewResolver(testSecret, time.Hour)

	token, err := r.Issue(testUser())
	require.NoError(t, err)

	id, err := r.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "tenant-1", id.TenantID)
	assert.Equal(t, models.RoleManager, id.Role())
	assert.Contains(t, id.Roles, models.RoleViewer)
}

func TestResolverRejectsBadCredentials(t *testing.T) {
	r := NewResolver(testSecret, time.Hour)
	other := NewResolver("other-secret", time.Hour)
	foreign, err := other.Issue(testUser())
	require.NoError(t, err)

	expiredResolver := NewResolver(testSecret, time.Hour)
	expiredResolver.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredResolver.Issue(testUser())
	require.NoError(t, err)

	noTenant := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(models.RoleViewer),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noTenantToken, err := noTenant.SignedString([]byte(testSecret))
	require.NoError(t, err)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID: "tenant-1",
		Roles:    []string{"owner"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	badRoleToken, err := badRole.SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"wrong secret":   foreign,
		"expired":        expired,
		"missing tenant": noTenantToken,
		"unknown role":   badRoleToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(token)
			assert.ErrorIs(t, err, ErrAuthentication)
		})
	}
}

func TestResolveRequestSources(t *testing.T) {
	r := NewResolver(testSecret, time.Hour)
	token, err := r.Issue(testUser())
	require.NoError(t, err)

	t.Run("authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		id, err := r.ResolveRequest(req)
		require.NoError(t, err)
		assert.Equal(t, "user-1", id.UserID)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		id, err := r.ResolveRequest(req)
		require.NoError(t, err)
		assert.Equal(t, "tenant-1", id.TenantID)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		req.Header.Set("Authorization", "Token "+token)
		_, err := r.ResolveRequest(req)
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		_, err := r.ResolveRequest(req)
		assert.ErrorIs(t, err, ErrAuthentication)
	})
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireRoleHandler(models.RoleManager, ok)

	tests := []struct {
		name  string
		roles []models.UserRole
		anon  bool
		want  int
	}{
		{name: "anonymous", anon: true, want: http.StatusUnauthorized},
		{name: "viewer", roles: []models.UserRole{models.RoleViewer}, want: http.StatusForbidden},
		{name: "manager", roles: []models.UserRole{models.RoleManager}, want: http.StatusNoContent},
		{name: "admin", roles: []models.UserRole{models.RoleAdmin}, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if !tt.anon {
				req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: "u", TenantID: "t", Roles: tt.roles}))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
