package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/repository"
)

// ErrInvalidSubscription is returned when a subscribe request lacks an endpoint or keys.
var ErrInvalidSubscription = errors.New("invalid push subscription")

type SubscribeParams struct {
	UserID         string
	Endpoint       string
	P256dhKey      string
	AuthKey        string
	ExpirationTime *time.Time
	UserAgent      *string
	Platform       *string
}

// Service manages device registrations and routes messages to them.
type Service struct {
	subs       repository.PushSubscriptionRepository
	users      repository.UserRepository
	dispatcher Dispatcher
	vapidKey   string
	logger     zerolog.Logger
}

func NewService(subs repository.PushSubscriptionRepository, users repository.UserRepository, dispatcher Dispatcher, vapidKey string, logger zerolog.Logger) *Service {
	return &Service{
		subs:       subs,
		users:      users,
		dispatcher: dispatcher,
		vapidKey:   vapidKey,
		logger:     logger.With().Str("component", "push_service").Logger(),
	}
}

func (s *Service) VAPIDPublicKey() string {
	return s.vapidKey
}

// Subscribe upserts on (user, endpoint).
func (s *Service) Subscribe(ctx context.Context, params SubscribeParams) (models.PushSubscription, error) {
	params.Endpoint = strings.TrimSpace(params.Endpoint)
	if params.Endpoint == "" || strings.TrimSpace(params.P256dhKey) == "" || strings.TrimSpace(params.AuthKey) == "" {
		return models.PushSubscription{}, fmt.Errorf("%w: endpoint and keys are required", ErrInvalidSubscription)
	}
	if u, err := url.Parse(params.Endpoint); err != nil || u.Scheme != "https" || u.Host == "" {
		return models.PushSubscription{}, fmt.Errorf("%w: endpoint must be an https url", ErrInvalidSubscription)
	}

	sub, err := s.subs.Upsert(ctx, repository.UpsertPushSubscriptionParams{
		UserID:         params.UserID,
		Endpoint:       params.Endpoint,
		P256dhKey:      params.P256dhKey,
		AuthKey:        params.AuthKey,
		ExpirationTime: params.ExpirationTime,
		UserAgent:      params.UserAgent,
		Platform:       params.Platform,
	})
	if err != nil {
		return models.PushSubscription{}, err
	}
	s.logger.Info().Str("user_id", params.UserID).Str("subscription_id", sub.ID).Msg("push subscription saved")
	return sub, nil
}

// Unsubscribe removes every device of the user.
func (s *Service) Unsubscribe(ctx context.Context, userID string) (int64, error) {
	return s.subs.DeleteByUser(ctx, userID)
}

// UnsubscribeEndpoint removes a single device.
func (s *Service) UnsubscribeEndpoint(ctx context.Context, userID, endpoint string) (int64, error) {
	return s.subs.DeleteByEndpoint(ctx, userID, strings.TrimSpace(endpoint))
}

func (s *Service) SendToUser(ctx context.Context, userID string, msg Message) {
	s.SendToUsers(ctx, []string{userID}, msg)
}

func (s *Service) SendToUsers(ctx context.Context, userIDs []string, msg Message) {
	s.dispatcher.Dispatch(ctx, userIDs, msg)
}

// SendToTenant pushes to every active user of the tenant except excludeUserID.
// A directory failure is logged and nothing is sent.
func (s *Service) SendToTenant(ctx context.Context, tenantID string, msg Message, excludeUserID string) {
	users, err := s.users.ListByAudience(ctx, tenantID, models.AudienceAllInTenant)
	if err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Str("channel", "push").Msg("failed to resolve push recipients")
		return
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID != excludeUserID {
			ids = append(ids, u.ID)
		}
	}
	s.SendToUsers(ctx, ids, msg)
}
