package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/franchise-hub/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository is the user directory the notification core reads recipients from.
type UserRepository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	ListByAudience(ctx context.Context, tenantID string, audience models.Audience) ([]models.User, error)
}

type CreateUserParams struct {
	TenantID     string
	RestaurantID *string
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Roles        []models.UserRole
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, tenant_id, restaurant_id, email, first_name, last_name, password_hash, is_active, roles`

func (u *userRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	roles := params.Roles
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleViewer}
	}
	if !models.IsValidRoleList(roles) {
		return models.User{}, errors.New("invalid roles")
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, errors.Wrap(err, "hash password")
	}

	query := `
		INSERT INTO tenant.users (tenant_id, restaurant_id, email, first_name, last_name, password_hash, is_active, roles)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING ` + userColumns
	row := u.db.QueryRowContext(ctx, query,
		params.TenantID,
		params.RestaurantID,
		strings.ToLower(strings.TrimSpace(params.Email)),
		strings.TrimSpace(params.FirstName),
		strings.TrimSpace(params.LastName),
		string(hash),
		pq.Array(toStringSlice(normalized)),
	)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, errors.Wrap(err, "insert user")
	}
	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE email = $1 AND deleted_at IS NULL`
	user, err := scanUser(u.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, errors.Wrap(err, "load user")
	}

	if !models.IsValidRoleList(user.Roles) {
		return models.User{}, errors.New("user has invalid roles")
	}
	if !user.IsActive {
		return models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE id = $1 AND deleted_at IS NULL`
	user, err := scanUser(u.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, errors.Wrap(err, "load user")
	}
	return user, nil
}

// ListByAudience resolves the active users of a tenant that an audience selects.
// Manager-or-above is decided by role overlap so a manager who also holds the
// default viewer role is never counted as a viewer.
func (u *userRepository) ListByAudience(ctx context.Context, tenantID string, audience models.Audience) ([]models.User, error) {
	var roleFilter string
	switch audience {
	case models.AudienceAllInTenant:
		roleFilter = ""
	case models.AudienceManagersOnly:
		roleFilter = "AND roles && $2"
	case models.AudienceViewersOnly:
		roleFilter = "AND NOT (roles && $2)"
	default:
		return nil, fmt.Errorf("unknown audience %q", audience)
	}

	query := `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE tenant_id = $1 AND is_active = TRUE AND deleted_at IS NULL ` + roleFilter + `
		ORDER BY email`

	args := []interface{}{tenantID}
	if roleFilter != "" {
		args = append(args, pq.Array(toStringSlice(models.ManagerRoles)))
	}

	rows, err := u.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list users by audience")
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		if !models.IsValidRoleList(user.Roles) {
			return nil, errors.New("encountered user with invalid roles")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate users")
	}
	return users, nil
}

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (models.User, error) {
	var (
		user         models.User
		restaurantID sql.NullString
		roles        pq.StringArray
	)
	if err := scanner.Scan(
		&user.ID,
		&user.TenantID,
		&restaurantID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&roles,
	); err != nil {
		return models.User{}, err
	}
	if restaurantID.Valid {
		v := restaurantID.String
		user.RestaurantID = &v
	}
	user.Roles = models.EnsureDefaultRole(toUserRoleSlice(roles))
	return user, nil
}

func toStringSlice(roles []models.UserRole) []string {
	result := make([]string, 0, len(roles))
	for _, role := range roles {
		result = append(result, string(role))
	}
	return result
}

func toUserRoleSlice(roles []string) []models.UserRole {
	result := make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		result = append(result, models.UserRole(role))
	}
	return models.NormalizeRoles(result)
}
