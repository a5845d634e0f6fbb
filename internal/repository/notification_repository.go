package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/franchise-hub/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, userID string, notifType models.NotificationType, targetID string) (int64, error)
	MarkReadByTypes(ctx context.Context, userID string, types []models.NotificationType) (int64, error)
	UnreadCountsByType(ctx context.Context, userID string) (map[models.NotificationType]int, error)
	DeleteForRolesByTypes(ctx context.Context, params CleanupParams) (int64, error)
}

type CreateNotificationParams struct {
	RecipientUserID string
	TenantID        string
	Type            models.NotificationType
	TargetID        string
	Message         string
}

// CleanupParams selects notifications to purge: rows of Types whose recipient
// holds any of Roles. An empty TenantID purges across tenants.
type CleanupParams struct {
	TenantID string
	Types    []models.NotificationType
	Roles    []models.UserRole
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `id, recipient_user_id, tenant_id, type, target_id, message, is_read, created_at`

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	const query = `
		INSERT INTO tenant.notifications (recipient_user_id, tenant_id, type, target_id, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + notificationColumns

	row := r.db.QueryRowContext(ctx, query,
		params.RecipientUserID,
		params.TenantID,
		params.Type,
		params.TargetID,
		params.Message,
	)
	notif, err := scanNotification(row)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "insert notification")
	}
	return notif, nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, int, error) {
	var total int
	const countQuery = `SELECT COUNT(*) FROM tenant.notifications WHERE recipient_user_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count notifications")
	}

	const query = `
		SELECT ` + notificationColumns + `
		FROM tenant.notifications
		WHERE recipient_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan notification")
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "iterate notifications")
	}
	return notifications, total, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID string, notifType models.NotificationType, targetID string) (int64, error) {
	const query = `
		UPDATE tenant.notifications
		SET is_read = TRUE
		WHERE recipient_user_id = $1 AND type = $2 AND target_id = $3 AND is_read = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, userID, notifType, targetID)
	if err != nil {
		return 0, errors.Wrap(err, "mark notification read")
	}
	return res.RowsAffected()
}

func (r *notificationRepository) MarkReadByTypes(ctx context.Context, userID string, types []models.NotificationType) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	const query = `
		UPDATE tenant.notifications
		SET is_read = TRUE
		WHERE recipient_user_id = $1 AND type = ANY($2) AND is_read = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, userID, pq.Array(typeStrings(types)))
	if err != nil {
		return 0, errors.Wrap(err, "mark notifications read by type")
	}
	return res.RowsAffected()
}

// UnreadCountsByType aggregates every unread row of the user in one query.
func (r *notificationRepository) UnreadCountsByType(ctx context.Context, userID string) (map[models.NotificationType]int, error) {
	const query = `
		SELECT type, COUNT(*)
		FROM tenant.notifications
		WHERE recipient_user_id = $1 AND is_read = FALSE
		GROUP BY type
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "count unread notifications")
	}
	defer rows.Close()

	counts := make(map[models.NotificationType]int)
	for rows.Next() {
		var (
			notifType models.NotificationType
			n         int
		)
		if err := rows.Scan(&notifType, &n); err != nil {
			return nil, errors.Wrap(err, "scan unread count")
		}
		counts[notifType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate unread counts")
	}
	return counts, nil
}

func (r *notificationRepository) DeleteForRolesByTypes(ctx context.Context, params CleanupParams) (int64, error) {
	if len(params.Types) == 0 || len(params.Roles) == 0 {
		return 0, nil
	}
	const query = `
		DELETE FROM tenant.notifications n
		USING tenant.users u
		WHERE n.recipient_user_id = u.id
		  AND n.type = ANY($1)
		  AND u.roles && $2
		  AND ($3 = '' OR n.tenant_id::text = $3)
	`
	res, err := r.db.ExecContext(ctx, query,
		pq.Array(typeStrings(params.Types)),
		pq.Array(toStringSlice(params.Roles)),
		params.TenantID,
	)
	if err != nil {
		return 0, errors.Wrap(err, "delete notifications")
	}
	return res.RowsAffected()
}

func scanNotification(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Notification, error) {
	var notif models.Notification
	err := scanner.Scan(
		&notif.ID,
		&notif.RecipientUserID,
		&notif.TenantID,
		&notif.Type,
		&notif.TargetID,
		&notif.Message,
		&notif.IsRead,
		&notif.CreatedAt,
	)
	return notif, err
}

func typeStrings(types []models.NotificationType) []string {
	result := make([]string, 0, len(types))
	for _, t := range types {
		result = append(result, string(t))
	}
	return result
}
