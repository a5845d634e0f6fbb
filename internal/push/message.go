package push

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
)

// ErrSubscriptionGone is returned by a Sender when the provider reports the
// device endpoint as permanently unreachable.
var ErrSubscriptionGone = errors.New("push subscription gone")

// Message is what a device shows for one notification.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   string            `json:"url,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers one message to one device.
type Sender interface {
	Send(ctx context.Context, sub models.PushSubscription, msg Message) error
}

// LogSender records deliveries without contacting a provider.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("sender", "log").Logger()}
}

func (s *LogSender) Send(_ context.Context, sub models.PushSubscription, msg Message) error {
	s.logger.Info().
		Str("user_id", sub.UserID).
		Str("endpoint", sub.Endpoint).
		Str("title", msg.Title).
		Msg("push notification dispatched (stub)")
	return nil
}

func (s *LogSender) String() string {
	return "LogSender"
}
