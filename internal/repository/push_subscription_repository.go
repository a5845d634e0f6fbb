package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/franchise-hub/internal/models"
)

type PushSubscriptionRepository interface {
	Upsert(ctx context.Context, params UpsertPushSubscriptionParams) (models.PushSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteByEndpoint(ctx context.Context, userID, endpoint string) (int64, error)
}

type UpsertPushSubscriptionParams struct {
	UserID         string
	Endpoint       string
	P256dhKey      string
	AuthKey        string
	ExpirationTime *time.Time
	UserAgent      *string
	Platform       *string
}

type pushSubscriptionRepository struct {
	db *sql.DB
}

func NewPushSubscriptionRepository(db *sql.DB) PushSubscriptionRepository {
	return &pushSubscriptionRepository{db: db}
}

const pushSubscriptionColumns = `id, user_id, endpoint, p256dh_key, auth_key, expiration_time, user_agent, platform, created_at, updated_at`

// Upsert keys on (user_id, endpoint): re-subscribing a device refreshes its key
// material in place.
func (r *pushSubscriptionRepository) Upsert(ctx context.Context, params UpsertPushSubscriptionParams) (models.PushSubscription, error) {
	const query = `
		INSERT INTO tenant.push_subscriptions (user_id, endpoint, p256dh_key, auth_key, expiration_time, user_agent, platform)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT uq_push_subscriptions_user_endpoint DO UPDATE
		SET p256dh_key = EXCLUDED.p256dh_key,
		    auth_key = EXCLUDED.auth_key,
		    expiration_time = EXCLUDED.expiration_time,
		    user_agent = COALESCE(EXCLUDED.user_agent, tenant.push_subscriptions.user_agent),
		    platform = COALESCE(EXCLUDED.platform, tenant.push_subscriptions.platform),
		    updated_at = NOW()
		RETURNING ` + pushSubscriptionColumns

	row := r.db.QueryRowContext(ctx, query,
		params.UserID,
		params.Endpoint,
		params.P256dhKey,
		params.AuthKey,
		params.ExpirationTime,
		params.UserAgent,
		params.Platform,
	)
	sub, err := scanPushSubscription(row)
	if err != nil {
		return models.PushSubscription{}, errors.Wrap(err, "upsert push subscription")
	}
	return sub, nil
}

func (r *pushSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	const query = `
		SELECT ` + pushSubscriptionColumns + `
		FROM tenant.push_subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list push subscriptions")
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		sub, err := scanPushSubscription(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan push subscription")
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate push subscriptions")
	}
	return subs, nil
}

func (r *pushSubscriptionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tenant.push_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "delete push subscriptions")
	}
	return res.RowsAffected()
}

func (r *pushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, userID, endpoint string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tenant.push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint,
	)
	if err != nil {
		return 0, errors.Wrap(err, "delete push subscription")
	}
	return res.RowsAffected()
}

func scanPushSubscription(scanner interface {
	Scan(dest ...interface{}) error
}) (models.PushSubscription, error) {
	var (
		sub        models.PushSubscription
		expiration sql.NullTime
		userAgent  sql.NullString
		platform   sql.NullString
	)
	if err := scanner.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Endpoint,
		&sub.P256dhKey,
		&sub.AuthKey,
		&expiration,
		&userAgent,
		&platform,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return models.PushSubscription{}, err
	}
	if expiration.Valid {
		t := expiration.Time
		sub.ExpirationTime = &t
	}
	if userAgent.Valid {
		v := userAgent.String
		sub.UserAgent = &v
	}
	if platform.Valid {
		v := platform.String
		sub.Platform = &v
	}
	return sub, nil
}
