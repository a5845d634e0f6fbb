package push

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/repository"
	"go.uber.org/multierr"
)

// Deliverer sends a message to every device a user has registered.
type Deliverer struct {
	subs   repository.PushSubscriptionRepository
	sender Sender
	logger zerolog.Logger
}

func NewDeliverer(subs repository.PushSubscriptionRepository, sender Sender, logger zerolog.Logger) *Deliverer {
	return &Deliverer{
		subs:   subs,
		sender: sender,
		logger: logger.With().Str("component", "push_deliverer").Logger(),
	}
}

// DeliverToUser attempts every device independently. Endpoints the provider
// reports gone are deleted and do not count as failures.
func (d *Deliverer) DeliverToUser(ctx context.Context, userID string, msg Message) error {
	subs, err := d.subs.ListByUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(err, "list push subscriptions")
	}
	if len(subs) == 0 {
		d.logger.Debug().Str("user_id", userID).Msg("no push subscriptions")
		return nil
	}

	var errs error
	for _, sub := range subs {
		err := d.sender.Send(ctx, sub, msg)
		switch {
		case err == nil:
		case errors.Is(err, ErrSubscriptionGone):
			if _, derr := d.subs.DeleteByEndpoint(ctx, userID, sub.Endpoint); derr != nil {
				errs = multierr.Append(errs, derr)
				continue
			}
			d.logger.Info().Str("user_id", userID).Str("endpoint", sub.Endpoint).Msg("pruned stale push subscription")
		default:
			errs = multierr.Append(errs, pkgerrors.Wrapf(err, "endpoint %s", sub.Endpoint))
		}
	}
	return errs
}
