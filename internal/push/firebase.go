package push

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
	"google.golang.org/api/option"
)

// messagingClient is the slice of *messaging.Client the sender uses.
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FirebaseSender delivers through Firebase Cloud Messaging. A subscription's
// registration token is the last path segment of its FCM endpoint.
type FirebaseSender struct {
	client messagingClient
	logger zerolog.Logger
}

func NewFirebaseSender(ctx context.Context, credentialsFile string, logger zerolog.Logger) (*FirebaseSender, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("firebase credentials file not provided")
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, errors.Wrap(err, "firebase credentials file")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, errors.Wrap(err, "initialize firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initialize firebase messaging")
	}
	return newFirebaseSender(client, logger), nil
}

func newFirebaseSender(client messagingClient, logger zerolog.Logger) *FirebaseSender {
	return &FirebaseSender{
		client: client,
		logger: logger.With().Str("sender", "firebase").Logger(),
	}
}

func (s *FirebaseSender) Send(ctx context.Context, sub models.PushSubscription, msg Message) error {
	token, err := registrationToken(sub.Endpoint)
	if err != nil {
		return err
	}
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}
	if msg.URL != "" {
		message.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: msg.URL},
		}
	}

	id, err := s.client.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) {
			return ErrSubscriptionGone
		}
		return errors.Wrap(err, "firebase send")
	}
	s.logger.Debug().Str("user_id", sub.UserID).Str("message_id", id).Msg("push notification sent")
	return nil
}

func (s *FirebaseSender) String() string {
	return "FirebaseSender"
}

func registrationToken(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrap(err, "parse endpoint")
	}
	path := strings.TrimRight(u.Path, "/")
	idx := strings.LastIndex(path, "/")
	token := path[idx+1:]
	if token == "" {
		return "", fmt.Errorf("endpoint %q carries no registration token", endpoint)
	}
	return token, nil
}
