package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/push"
)

type DocumentUploaded struct {
	TenantID   string `json:"tenant_id" validate:"required"`
	DocumentID string `json:"document_id" validate:"required"`
	Title      string `json:"title"`
	AuthorID   string `json:"author_id"`
}

type AnnouncementPosted struct {
	TenantID       string `json:"tenant_id" validate:"required"`
	AnnouncementID string `json:"announcement_id" validate:"required"`
	Title          string `json:"title"`
	AuthorID       string `json:"author_id"`
}

type RestaurantJoined struct {
	TenantID     string `json:"tenant_id" validate:"required"`
	RestaurantID string `json:"restaurant_id" validate:"required"`
	Name         string `json:"name"`
}

type TicketCreated struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	TicketID  string `json:"ticket_id" validate:"required"`
	Title     string `json:"title"`
	CreatorID string `json:"creator_id" validate:"required"`
}

type TicketCommented struct {
	TenantID    string `json:"tenant_id" validate:"required"`
	TicketID    string `json:"ticket_id" validate:"required"`
	Title       string `json:"title"`
	CreatorID   string `json:"creator_id" validate:"required"`
	CommenterID string `json:"commenter_id" validate:"required"`
}

type TicketStatusUpdated struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	TicketID  string `json:"ticket_id" validate:"required"`
	Title     string `json:"title"`
	CreatorID string `json:"creator_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
	UpdatedBy string `json:"updated_by"`
}

// Hooks run after a primary write has committed. Each step (persist, realtime,
// push) is isolated: failures are logged and never returned to the caller.
type Hooks struct {
	service Service
	emitter Emitter
	push    PushSender
	logger  zerolog.Logger
}

func NewHooks(service Service, emitter Emitter, pushSender PushSender, logger zerolog.Logger) *Hooks {
	return &Hooks{
		service: service,
		emitter: emitter,
		push:    pushSender,
		logger:  logger.With().Str("component", "notification_hooks").Logger(),
	}
}

// delivery describes one post-commit notification. Either audience or
// recipients selects who is notified.
type delivery struct {
	tenantID   string
	notifType  models.NotificationType
	targetID   string
	message    string
	event      string
	payload    EventPayload
	push       push.Message
	audience   models.Audience
	recipients []string
	exclude    string
}

// broadcast reports whether the whole tenant room is the audience.
func (d delivery) broadcast() bool {
	return d.recipients == nil && d.audience == models.AudienceAllInTenant && d.exclude == ""
}

func (h *Hooks) DocumentUploaded(ctx context.Context, evt DocumentUploaded) {
	message := fmt.Sprintf("New document: %s", fallback(evt.Title, "untitled"))
	h.deliver(ctx, delivery{
		tenantID:  evt.TenantID,
		notifType: models.NotificationDocumentUploaded,
		targetID:  evt.DocumentID,
		message:   message,
		event:     EventDocumentUploaded,
		payload:   EventPayload{Title: evt.Title, ActorID: evt.AuthorID},
		push:      push.Message{Title: "New document", Body: message, URL: "/documents/" + evt.DocumentID},
		audience:  models.AudienceAllInTenant,
		exclude:   evt.AuthorID,
	})
}

// AnnouncementPosted notifies franchisees only; managers author announcements.
func (h *Hooks) AnnouncementPosted(ctx context.Context, evt AnnouncementPosted) {
	message := fmt.Sprintf("New announcement: %s", fallback(evt.Title, "untitled"))
	h.deliver(ctx, delivery{
		tenantID:  evt.TenantID,
		notifType: models.NotificationAnnouncementPosted,
		targetID:  evt.AnnouncementID,
		message:   message,
		event:     EventAnnouncementPosted,
		payload:   EventPayload{Title: evt.Title, ActorID: evt.AuthorID},
		push:      push.Message{Title: "New announcement", Body: message, URL: "/announcements/" + evt.AnnouncementID},
		audience:  models.AudienceViewersOnly,
		exclude:   evt.AuthorID,
	})
}

func (h *Hooks) RestaurantJoined(ctx context.Context, evt RestaurantJoined) {
	message := fmt.Sprintf("%s joined the network", fallback(evt.Name, "A new restaurant"))
	h.deliver(ctx, delivery{
		tenantID:  evt.TenantID,
		notifType: models.NotificationRestaurantJoined,
		targetID:  evt.RestaurantID,
		message:   message,
		event:     EventRestaurantJoined,
		payload:   EventPayload{Title: evt.Name},
		push:      push.Message{Title: "New restaurant", Body: message, URL: "/restaurants/" + evt.RestaurantID},
		audience:  models.AudienceViewersOnly,
	})
}

func (h *Hooks) TicketCreated(ctx context.Context, evt TicketCreated) {
	message := fmt.Sprintf("New ticket: %s", fallback(evt.Title, evt.TicketID))
	h.deliver(ctx, delivery{
		tenantID:  evt.TenantID,
		notifType: models.NotificationTicketCreated,
		targetID:  evt.TicketID,
		message:   message,
		event:     EventTicketCreated,
		payload:   EventPayload{Title: evt.Title, ActorID: evt.CreatorID},
		push:      push.Message{Title: "New ticket", Body: message, URL: "/tickets/" + evt.TicketID},
		audience:  models.AudienceManagersOnly,
		exclude:   evt.CreatorID,
	})
}

// TicketCommented notifies the ticket creator, or the managers when the creator
// is the one commenting.
func (h *Hooks) TicketCommented(ctx context.Context, evt TicketCommented) {
	message := fmt.Sprintf("New comment on ticket: %s", fallback(evt.Title, evt.TicketID))
	d := delivery{
		tenantID:  evt.TenantID,
		notifType: models.NotificationTicketCommented,
		targetID:  evt.TicketID,
		message:   message,
		event:     EventTicketUpdated,
		payload:   EventPayload{Title: evt.Title, ActorID: evt.CommenterID},
		push:      push.Message{Title: "Ticket updated", Body: message, URL: "/tickets/" + evt.TicketID},
		exclude:   evt.CommenterID,
	}
	if evt.CommenterID == evt.CreatorID {
		d.audience = models.AudienceManagersOnly
	} else {
		d.recipients = []string{evt.CreatorID}
	}
	h.deliver(ctx, d)
}

func (h *Hooks) TicketStatusUpdated(ctx context.Context, evt TicketStatusUpdated) {
	message := fmt.Sprintf("Ticket %s is now %s", fallback(evt.Title, evt.TicketID), evt.Status)
	h.deliver(ctx, delivery{
		tenantID:   evt.TenantID,
		notifType:  models.NotificationTicketStatusUpdated,
		targetID:   evt.TicketID,
		message:    message,
		event:      EventTicketUpdated,
		payload:    EventPayload{Title: evt.Title, Status: evt.Status, ActorID: evt.UpdatedBy},
		push:       push.Message{Title: "Ticket updated", Body: message, URL: "/tickets/" + evt.TicketID},
		recipients: []string{evt.CreatorID},
		exclude:    evt.UpdatedBy,
	})
}

func (h *Hooks) deliver(ctx context.Context, d delivery) {
	logger := h.logger.With().
		Str("tenant_id", d.tenantID).
		Str("notification_type", string(d.notifType)).
		Str("target_id", d.targetID).
		Logger()

	notified, persisted := h.persist(ctx, d, logger)
	// Only a fully persisted fan-out may use the room; otherwise events go to
	// the users that actually have a row.
	broadcast := persisted && d.broadcast()

	d.payload.ID = d.targetID
	d.payload.Type = d.notifType
	d.payload.TenantID = d.tenantID
	d.payload.Message = d.message
	if d.push.Data == nil {
		d.push.Data = map[string]string{"id": d.targetID, "type": string(d.notifType)}
	}

	if h.emitter != nil {
		var err error
		if broadcast {
			err = h.emitter.EmitToTenant(ctx, d.tenantID, d.event, d.payload)
		} else if len(notified) > 0 {
			err = h.emitter.EmitToUsers(ctx, notified, d.event, d.payload)
		}
		logDeliveryError(logger, err, "realtime", d.notifType, d.targetID)
	}

	if h.push != nil {
		if broadcast {
			h.push.SendToTenant(ctx, d.tenantID, d.push, "")
		} else if len(notified) > 0 {
			h.push.SendToUsers(ctx, notified, d.push)
		}
	}

	logger.Debug().Int("recipients", len(notified)).Msg("post-commit notification handled")
}

// persist writes the notification rows and returns the users that got one.
// persisted is false when any write failed.
func (h *Hooks) persist(ctx context.Context, d delivery, logger zerolog.Logger) (notified []string, persisted bool) {
	if d.recipients == nil {
		created, err := h.service.FanOut(ctx, FanOutParams{
			TenantID:      d.tenantID,
			Audience:      d.audience,
			Type:          d.notifType,
			TargetID:      d.targetID,
			Message:       d.message,
			ExcludeUserID: d.exclude,
		})
		logDeliveryError(logger, err, "store", d.notifType, d.targetID)
		for _, n := range created {
			notified = append(notified, n.RecipientUserID)
		}
		return notified, err == nil
	}

	persisted = true
	for _, userID := range d.recipients {
		if userID == "" || userID == d.exclude {
			continue
		}
		n, err := h.service.Create(ctx, CreateParams{
			RecipientUserID: userID,
			TenantID:        d.tenantID,
			Type:            d.notifType,
			TargetID:        d.targetID,
			Message:         d.message,
		})
		if err != nil {
			logDeliveryError(logger, err, "store", d.notifType, d.targetID)
			persisted = false
			continue
		}
		notified = append(notified, n.RecipientUserID)
	}
	return notified, persisted
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
