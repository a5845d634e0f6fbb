package notification

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/push"
)

// Realtime event names clients subscribe to.
const (
	EventDocumentUploaded   = "document_uploaded"
	EventAnnouncementPosted = "announcement_posted"
	EventTicketCreated      = "ticket_created"
	EventTicketUpdated      = "ticket_updated"
	EventRestaurantJoined   = "restaurant_joined"
)

// Emitter pushes an event to live connections. A user without a live
// connection is not an error.
type Emitter interface {
	EmitToUser(ctx context.Context, userID, event string, payload interface{}) error
	EmitToTenant(ctx context.Context, tenantID, event string, payload interface{}) error
	EmitToUsers(ctx context.Context, userIDs []string, event string, payload interface{}) error
}

// PushSender hands messages to the push pipeline. It never reports failures.
type PushSender interface {
	SendToUsers(ctx context.Context, userIDs []string, msg push.Message)
	SendToTenant(ctx context.Context, tenantID string, msg push.Message, excludeUserID string)
}

// EventPayload is the JSON body of every realtime notification event.
type EventPayload struct {
	ID       string                  `json:"id"`
	Type     models.NotificationType `json:"type"`
	TenantID string                  `json:"tenant_id"`
	Title    string                  `json:"title,omitempty"`
	Message  string                  `json:"message"`
	Status   string                  `json:"status,omitempty"`
	ActorID  string                  `json:"actor_id,omitempty"`
}

func logDeliveryError(logger zerolog.Logger, err error, channel string, notifType models.NotificationType, targetID string) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_type", string(notifType)).
		Str("target_id", targetID).
		Str("channel", channel).
		Msg("failed to deliver notification")
}
