package activities

import (
	"context"

	"github.com/stanstork/franchise-hub/internal/push"
	"go.temporal.io/sdk/activity"
)

type Activities struct {
	Deliverer *push.Deliverer
}

// DeliverPushActivity sends the message to every device of one user.
func (a *Activities) DeliverPushActivity(ctx context.Context, userID string, msg push.Message) error {
	logger := activity.GetLogger(ctx)
	logger.Debug("Delivering push notification", "userID", userID)

	if err := a.Deliverer.DeliverToUser(ctx, userID, msg); err != nil {
		logger.Warn("Push delivery failed", "userID", userID, "error", err)
		return err
	}
	return nil
}
