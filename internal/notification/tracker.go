package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/repository"
)

// Tracker records which users have looked at a target and clears the matching
// unread notifications.
type Tracker struct {
	views         repository.ViewRepository
	notifications Service
	logger        zerolog.Logger
	pageSize      int
}

func NewTracker(views repository.ViewRepository, notifications Service, logger zerolog.Logger, viewersPageSize int) *Tracker {
	if viewersPageSize < 1 {
		viewersPageSize = DefaultViewersPageSize
	}
	return &Tracker{
		views:         views,
		notifications: notifications,
		logger:        logger.With().Str("component", "view_tracker").Logger(),
		pageSize:      viewersPageSize,
	}
}

// RecordView returns the existing view for (user, target) or creates it. The
// unique constraint decides concurrent inserts; the loser reads the winner's row.
func (t *Tracker) RecordView(ctx context.Context, userID string, targetType models.TargetType, targetID string) (models.View, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return models.View{}, fmt.Errorf("%w: target id is required", ErrInvalidArgument)
	}
	if len(targetType.NotificationTypes()) == 0 {
		return models.View{}, fmt.Errorf("%w: unknown target type %q", ErrInvalidArgument, targetType)
	}

	view, err := t.views.Find(ctx, userID, targetType, targetID)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return models.View{}, err
	}

	view, err = t.views.Insert(ctx, userID, targetType, targetID)
	if errors.Is(err, repository.ErrNotFound) {
		return t.views.Find(ctx, userID, targetType, targetID)
	}
	return view, err
}

// MarkTargetSeen records the view and marks every notification type that points
// at this kind of target read for the user.
func (t *Tracker) MarkTargetSeen(ctx context.Context, userID string, targetType models.TargetType, targetID string) (models.View, error) {
	view, err := t.RecordView(ctx, userID, targetType, targetID)
	if err != nil {
		return models.View{}, err
	}
	if err := t.notifications.MarkReadByTypes(ctx, userID, targetType.NotificationTypes()); err != nil {
		return models.View{}, err
	}
	return view, nil
}

func (t *Tracker) ListViewers(ctx context.Context, tenantID string, targetType models.TargetType, targetID string, page, pageSize int) (models.Page[models.Viewer], error) {
	if page < 1 {
		page = 1
	}
	pageSize = models.ClampPageSize(pageSize, t.pageSize)
	if !models.PageInRange(page, pageSize) {
		return models.Page[models.Viewer]{}, fmt.Errorf("%w: page %d is out of range", ErrInvalidArgument, page)
	}
	items, total, err := t.views.ListViewers(ctx, repository.ListViewersParams{
		TenantID:   tenantID,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(targetID),
		Limit:      pageSize,
		Offset:     models.Offset(page, pageSize),
	})
	if err != nil {
		return models.Page[models.Viewer]{}, err
	}
	return models.NewPage(items, total, page, pageSize), nil
}
