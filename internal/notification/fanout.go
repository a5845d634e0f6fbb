package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/franchise-hub/internal/models"
	"go.uber.org/multierr"
)

// FanOutPolicy decides what happens when one recipient's insert fails.
type FanOutPolicy string

const (
	// FailFast stops at the first failed insert.
	FailFast FanOutPolicy = "fail_fast"
	// BestEffort inserts for every recipient and returns the combined errors.
	BestEffort FanOutPolicy = "best_effort"
)

func ParseFanOutPolicy(raw string) (FanOutPolicy, error) {
	switch p := FanOutPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case FailFast, BestEffort:
		return p, nil
	case "":
		return FailFast, nil
	}
	return "", fmt.Errorf("unknown fan-out policy %q", raw)
}

type FanOutParams struct {
	TenantID      string
	Audience      models.Audience
	Type          models.NotificationType
	TargetID      string
	Message       string
	ExcludeUserID string
}

// FanOut creates one notification per user the audience selects. A directory
// failure aborts before any write. On a per-recipient failure the returned slice
// holds what was persisted before (FailFast) or despite (BestEffort) the error.
func (s *service) FanOut(ctx context.Context, params FanOutParams) ([]models.Notification, error) {
	if !models.IsValidAudience(params.Audience) {
		return nil, fmt.Errorf("%w: unknown audience %q", ErrInvalidArgument, params.Audience)
	}
	// Reject a bad template before touching the directory.
	if _, err := validateCreate(CreateParams{
		RecipientUserID: "-",
		TenantID:        params.TenantID,
		Type:            params.Type,
		TargetID:        params.TargetID,
	}); err != nil {
		return nil, err
	}

	users, err := s.users.ListByAudience(ctx, params.TenantID, params.Audience)
	if err != nil {
		return nil, errors.Wrap(err, "resolve audience")
	}

	logger := s.logger.With().
		Str("tenant_id", params.TenantID).
		Str("audience", string(params.Audience)).
		Str("notification_type", string(params.Type)).
		Logger()

	created := make([]models.Notification, 0, len(users))
	var errs error
	for _, user := range users {
		if params.ExcludeUserID != "" && user.ID == params.ExcludeUserID {
			continue
		}
		notif, err := s.Create(ctx, CreateParams{
			RecipientUserID: user.ID,
			TenantID:        params.TenantID,
			Type:            params.Type,
			TargetID:        params.TargetID,
			Message:         params.Message,
		})
		if err != nil {
			if s.policy != BestEffort {
				return created, err
			}
			errs = multierr.Append(errs, errors.Wrapf(err, "recipient %s", user.ID))
			continue
		}
		created = append(created, notif)
	}

	logger.Debug().Int("recipients", len(created)).Msg("fan-out complete")
	return created, errs
}
