package workflows

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/push"
	"github.com/stanstork/franchise-hub/internal/temporal"
	tc "go.temporal.io/sdk/client"
)

// Dispatcher starts a PushDeliveryWorkflow per dispatched message.
type Dispatcher struct {
	client    tc.Client
	taskQueue string
	logger    zerolog.Logger
}

func NewDispatcher(client tc.Client, taskQueue string, logger zerolog.Logger) *Dispatcher {
	if taskQueue == "" {
		taskQueue = temporal.DefaultTaskQueue
	}
	return &Dispatcher{
		client:    client,
		taskQueue: taskQueue,
		logger:    logger.With().Str("component", "push_workflow_dispatcher").Logger(),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, userIDs []string, msg push.Message) {
	if len(userIDs) == 0 {
		return
	}
	opts := tc.StartWorkflowOptions{
		ID:        temporal.PushWorkflowIDPrefix + uuid.NewString(),
		TaskQueue: d.taskQueue,
	}
	params := temporal.PushDeliveryParams{
		UserIDs: append([]string(nil), userIDs...),
		Message: msg,
	}
	run, err := d.client.ExecuteWorkflow(context.WithoutCancel(ctx), opts, PushDeliveryWorkflow, params)
	if err != nil {
		d.logger.Warn().Err(err).Int("recipients", len(userIDs)).Str("channel", "push").Msg("failed to start push delivery workflow")
		return
	}
	d.logger.Debug().Str("workflow_id", run.GetID()).Str("run_id", run.GetRunID()).Msg("push delivery workflow started")
}
