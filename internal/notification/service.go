package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/repository"
)

const (
	DefaultPageSize        = 50
	DefaultViewersPageSize = 100
)

type CreateParams struct {
	RecipientUserID string
	TenantID        string
	Type            models.NotificationType
	TargetID        string
	Message         string
}

// Service owns per-user notification records: creation, listing, read state and
// the fan-out of one record per recipient.
type Service interface {
	Create(ctx context.Context, params CreateParams) (models.Notification, error)
	FanOut(ctx context.Context, params FanOutParams) ([]models.Notification, error)
	ListForUser(ctx context.Context, userID string, page, pageSize int) (models.Page[models.Notification], error)
	MarkRead(ctx context.Context, userID string, notifType models.NotificationType, targetID string) error
	MarkAllReadByType(ctx context.Context, userID string, notifType models.NotificationType) error
	MarkReadByTypes(ctx context.Context, userID string, types []models.NotificationType) error
	MarkCategoryRead(ctx context.Context, userID string, category models.NotificationCategory) error
	UnreadCountsByCategory(ctx context.Context, userID string) (models.UnreadCounts, error)
	CleanupManagerAnnouncements(ctx context.Context, tenantID string) (int64, error)
}

type Option func(*service)

// WithFanOutPolicy selects how FanOut reacts to a failed per-recipient insert.
func WithFanOutPolicy(policy FanOutPolicy) Option {
	return func(s *service) {
		s.policy = policy
	}
}

func WithPageSize(size int) Option {
	return func(s *service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

type service struct {
	repo     repository.NotificationRepository
	users    repository.UserRepository
	logger   zerolog.Logger
	policy   FanOutPolicy
	pageSize int
}

func NewService(repo repository.NotificationRepository, users repository.UserRepository, logger zerolog.Logger, opts ...Option) Service {
	s := &service{
		repo:     repo,
		users:    users,
		logger:   logger.With().Str("component", "notification_service").Logger(),
		policy:   FailFast,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Create(ctx context.Context, params CreateParams) (models.Notification, error) {
	params, err := validateCreate(params)
	if err != nil {
		return models.Notification{}, err
	}
	notif, err := s.repo.Create(ctx, repository.CreateNotificationParams{
		RecipientUserID: params.RecipientUserID,
		TenantID:        params.TenantID,
		Type:            params.Type,
		TargetID:        params.TargetID,
		Message:         params.Message,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("user_id", params.RecipientUserID).
			Str("notification_type", string(params.Type)).
			Msg("failed to persist notification")
		return models.Notification{}, err
	}
	return notif, nil
}

// validateCreate rejects a blank target id. Callers interpolating an unset value
// into the id end up here instead of with a dangling notification.
func validateCreate(params CreateParams) (CreateParams, error) {
	params.TargetID = strings.TrimSpace(params.TargetID)
	params.RecipientUserID = strings.TrimSpace(params.RecipientUserID)
	params.TenantID = strings.TrimSpace(params.TenantID)
	switch {
	case params.TargetID == "":
		return params, fmt.Errorf("%w: target id is required", ErrInvalidArgument)
	case params.RecipientUserID == "":
		return params, fmt.Errorf("%w: recipient is required", ErrInvalidArgument)
	case params.TenantID == "":
		return params, fmt.Errorf("%w: tenant is required", ErrInvalidArgument)
	case !models.IsValidNotificationType(params.Type):
		return params, fmt.Errorf("%w: unknown notification type %q", ErrInvalidArgument, params.Type)
	}
	return params, nil
}

func (s *service) ListForUser(ctx context.Context, userID string, page, pageSize int) (models.Page[models.Notification], error) {
	if page < 1 {
		page = 1
	}
	pageSize = models.ClampPageSize(pageSize, s.pageSize)
	if !models.PageInRange(page, pageSize) {
		return models.Page[models.Notification]{}, fmt.Errorf("%w: page %d is out of range", ErrInvalidArgument, page)
	}
	items, total, err := s.repo.ListForUser(ctx, userID, pageSize, models.Offset(page, pageSize))
	if err != nil {
		return models.Page[models.Notification]{}, err
	}
	return models.NewPage(items, total, page, pageSize), nil
}

func (s *service) MarkRead(ctx context.Context, userID string, notifType models.NotificationType, targetID string) error {
	if !models.IsValidNotificationType(notifType) {
		return fmt.Errorf("%w: unknown notification type %q", ErrInvalidArgument, notifType)
	}
	_, err := s.repo.MarkRead(ctx, userID, notifType, strings.TrimSpace(targetID))
	return err
}

func (s *service) MarkAllReadByType(ctx context.Context, userID string, notifType models.NotificationType) error {
	return s.MarkReadByTypes(ctx, userID, []models.NotificationType{notifType})
}

func (s *service) MarkReadByTypes(ctx context.Context, userID string, types []models.NotificationType) error {
	for _, t := range types {
		if !models.IsValidNotificationType(t) {
			return fmt.Errorf("%w: unknown notification type %q", ErrInvalidArgument, t)
		}
	}
	n, err := s.repo.MarkReadByTypes(ctx, userID, types)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("user_id", userID).Int64("updated", n).Msg("marked notifications read")
	return nil
}

func (s *service) MarkCategoryRead(ctx context.Context, userID string, category models.NotificationCategory) error {
	if !models.IsValidCategory(category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, category)
	}
	return s.MarkReadByTypes(ctx, userID, models.TypesForCategory(category))
}

// UnreadCountsByCategory folds the per-type aggregate through the category table.
func (s *service) UnreadCountsByCategory(ctx context.Context, userID string) (models.UnreadCounts, error) {
	byType, err := s.repo.UnreadCountsByType(ctx, userID)
	if err != nil {
		return models.UnreadCounts{}, err
	}
	var counts models.UnreadCounts
	for t, n := range byType {
		category, ok := t.Category()
		if !ok {
			s.logger.Warn().Str("notification_type", string(t)).Msg("unread rows with unknown type")
			continue
		}
		counts.Add(category, n)
	}
	return counts, nil
}

// CleanupManagerAnnouncements removes announcement and restaurant-joined rows that
// were created for managers and above. An empty tenantID sweeps every tenant.
func (s *service) CleanupManagerAnnouncements(ctx context.Context, tenantID string) (int64, error) {
	deleted, err := s.repo.DeleteForRolesByTypes(ctx, repository.CleanupParams{
		TenantID: tenantID,
		Types:    models.TypesForCategory(models.CategoryAnnouncements),
		Roles:    models.ManagerRoles,
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("tenant_id", tenantID).Int64("deleted", deleted).Msg("cleaned up manager announcements")
	return deleted, nil
}
