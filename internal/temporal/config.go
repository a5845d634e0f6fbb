package temporal

import (
	"time"

	"github.com/stanstork/franchise-hub/internal/push"
)

// DefaultTaskQueue is the task queue push delivery workflows run on.
const DefaultTaskQueue = "FRANCHISE_PUSH"

// PushWorkflowIDPrefix prefixes every push delivery workflow ID.
const PushWorkflowIDPrefix = "push-delivery-"

// DefaultActivityTimeout bounds a single user's delivery attempt.
const DefaultActivityTimeout = 30 * time.Second

// PushDeliveryParams is the input of a push delivery workflow.
type PushDeliveryParams struct {
	UserIDs []string
	Message push.Message
}

// PushDeliveryResult records the per-recipient outcome.
type PushDeliveryResult struct {
	Delivered []string
	Failed    []string
}
