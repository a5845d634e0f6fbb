package workflows

import (
	"time"

	"github.com/stanstork/franchise-hub/internal/temporal"
	"github.com/stanstork/franchise-hub/internal/temporal/activities"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// PushDeliveryWorkflow delivers to each recipient in its own activity so one
// failing user never holds up the others. It always completes; failures are
// reported in the result.
func PushDeliveryWorkflow(ctx workflow.Context, params temporal.PushDeliveryParams) (temporal.PushDeliveryResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting push delivery workflow", "Recipients", len(params.UserIDs))

	var a *activities.Activities

	futures := make([]workflow.Future, len(params.UserIDs))
	for i, userID := range params.UserIDs {
		futures[i] = workflow.ExecuteActivity(ctx, a.DeliverPushActivity, userID, params.Message)
	}

	var result temporal.PushDeliveryResult
	for i, future := range futures {
		userID := params.UserIDs[i]
		if err := future.Get(ctx, nil); err != nil {
			logger.Warn("Push delivery to user failed.", "UserID", userID, "error", err)
			result.Failed = append(result.Failed, userID)
			continue
		}
		result.Delivered = append(result.Delivered, userID)
	}

	logger.Info("Push delivery workflow finished", "Delivered", len(result.Delivered), "Failed", len(result.Failed))
	return result, nil
}
