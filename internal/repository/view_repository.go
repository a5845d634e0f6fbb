package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/franchise-hub/internal/models"
)

type ViewRepository interface {
	// Find returns ErrNotFound when the user has not viewed the target.
	Find(ctx context.Context, userID string, targetType models.TargetType, targetID string) (models.View, error)
	// Insert returns ErrNotFound when a concurrent insert already created the row.
	Insert(ctx context.Context, userID string, targetType models.TargetType, targetID string) (models.View, error)
	ListViewers(ctx context.Context, params ListViewersParams) ([]models.Viewer, int, error)
}

type ListViewersParams struct {
	TenantID   string
	TargetType models.TargetType
	TargetID   string
	Limit      int
	Offset     int
}

type viewRepository struct {
	db *sql.DB
}

func NewViewRepository(db *sql.DB) ViewRepository {
	return &viewRepository{db: db}
}

func (r *viewRepository) Find(ctx context.Context, userID string, targetType models.TargetType, targetID string) (models.View, error) {
	const query = `
		SELECT id, user_id, target_type, target_id, viewed_at
		FROM tenant.notification_views
		WHERE user_id = $1 AND target_type = $2 AND target_id = $3
	`
	view, err := scanView(r.db.QueryRowContext(ctx, query, userID, targetType, targetID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.View{}, ErrNotFound
	}
	if err != nil {
		return models.View{}, errors.Wrap(err, "find view")
	}
	return view, nil
}

// Insert relies on the (user_id, target_type, target_id) constraint: a lost
// race returns no row instead of a duplicate.
func (r *viewRepository) Insert(ctx context.Context, userID string, targetType models.TargetType, targetID string) (models.View, error) {
	const query = `
		INSERT INTO tenant.notification_views (user_id, target_type, target_id)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT uq_notification_views_user_target DO NOTHING
		RETURNING id, user_id, target_type, target_id, viewed_at
	`
	view, err := scanView(r.db.QueryRowContext(ctx, query, userID, targetType, targetID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.View{}, ErrNotFound
	}
	if err != nil {
		return models.View{}, errors.Wrap(err, "insert view")
	}
	return view, nil
}

func (r *viewRepository) ListViewers(ctx context.Context, params ListViewersParams) ([]models.Viewer, int, error) {
	var total int
	const countQuery = `
		SELECT COUNT(*)
		FROM tenant.notification_views v
		JOIN tenant.users u ON u.id = v.user_id
		WHERE v.target_type = $1 AND v.target_id = $2 AND u.tenant_id::text = $3
	`
	if err := r.db.QueryRowContext(ctx, countQuery, params.TargetType, params.TargetID, params.TenantID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count viewers")
	}

	const query = `
		SELECT v.id, v.user_id, v.target_type, v.target_id, v.viewed_at,
		       u.email, u.first_name, u.last_name, u.roles
		FROM tenant.notification_views v
		JOIN tenant.users u ON u.id = v.user_id
		WHERE v.target_type = $1 AND v.target_id = $2 AND u.tenant_id::text = $3
		ORDER BY v.viewed_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.db.QueryContext(ctx, query, params.TargetType, params.TargetID, params.TenantID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list viewers")
	}
	defer rows.Close()

	var viewers []models.Viewer
	for rows.Next() {
		var (
			viewer models.Viewer
			roles  pq.StringArray
		)
		if err := rows.Scan(
			&viewer.ID,
			&viewer.UserID,
			&viewer.TargetType,
			&viewer.TargetID,
			&viewer.ViewedAt,
			&viewer.User.Email,
			&viewer.User.FirstName,
			&viewer.User.LastName,
			&roles,
		); err != nil {
			return nil, 0, errors.Wrap(err, "scan viewer")
		}
		viewer.User.ID = viewer.UserID
		viewer.User.Role = models.HighestRole(toUserRoleSlice(roles))
		viewers = append(viewers, viewer)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterate viewers")
	}
	return viewers, total, nil
}

func scanView(scanner interface {
	Scan(dest ...interface{}) error
}) (models.View, error) {
	var view models.View
	err := scanner.Scan(&view.ID, &view.UserID, &view.TargetType, &view.TargetID, &view.ViewedAt)
	return view, err
}
