package authz

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stanstork/franchise-hub/internal/models"
)

// ErrAuthentication is returned for any missing, malformed, expired or
// badly signed credential.
var ErrAuthentication = errors.New("authentication failed")

// Identity is who a credential speaks for.
type Identity struct {
	UserID   string
	TenantID string
	Roles    []models.UserRole
}

// Role is the highest role the identity holds.
func (i Identity) Role() models.UserRole {
	return models.HighestRole(i.Roles)
}

// Claims is the token body issued at login. Field names match the tokens the
// web client already stores.
type Claims struct {
	TenantID string   `json:"tid"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Resolver verifies bearer credentials and turns them into identities.
type Resolver struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewResolver(secret string, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Resolver{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the user.
func (r *Resolver) Issue(user models.User) (string, error) {
	roles := models.EnsureDefaultRole(models.NormalizeRoles(user.Roles))
	rolesClaim := make([]string, 0, len(roles))
	for _, role := range roles {
		rolesClaim = append(rolesClaim, string(role))
	}
	now := r.now()
	claims := Claims{
		TenantID: user.TenantID,
		Role:     string(models.HighestRole(roles)),
		Roles:    rolesClaim,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Resolve verifies a raw token string.
func (r *Resolver) Resolve(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrAuthentication)
	}

	claims := &Claims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", ErrAuthentication)
	}
	if claims.ExpiresAt == nil || !claims.VerifyExpiresAt(r.now(), true) {
		return Identity{}, fmt.Errorf("%w: token expired", ErrAuthentication)
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return Identity{}, fmt.Errorf("%w: missing identity claims", ErrAuthentication)
	}

	roles, ok := rolesFromClaims(claims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: invalid role claim", ErrAuthentication)
	}

	return Identity{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Roles:    roles,
	}, nil
}

// ResolveRequest reads the credential from the Authorization header, falling
// back to the token query parameter browsers use for WebSocket handshakes.
func (r *Resolver) ResolveRequest(req *http.Request) (Identity, error) {
	if auth := strings.TrimSpace(req.Header.Get("Authorization")); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return Identity{}, fmt.Errorf("%w: invalid authorization format", ErrAuthentication)
		}
		return r.Resolve(parts[1])
	}
	return r.Resolve(req.URL.Query().Get("token"))
}

func rolesFromClaims(claims *Claims) ([]models.UserRole, bool) {
	var roles []models.UserRole
	switch {
	case len(claims.Roles) > 0:
		for _, raw := range claims.Roles {
			roles = append(roles, models.UserRole(raw))
		}
	case claims.Role != "":
		roles = []models.UserRole{models.UserRole(claims.Role)}
	default:
		return nil, false
	}
	if !models.IsValidRoleList(roles) {
		return nil, false
	}
	return models.EnsureDefaultRole(models.NormalizeRoles(roles)), true
}
