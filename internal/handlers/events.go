package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/authz"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/notification"
)

// Event kinds accepted on /api/events/{kind}.
const (
	KindDocumentUploaded    = "document-uploaded"
	KindAnnouncementPosted  = "announcement-posted"
	KindRestaurantJoined    = "restaurant-joined"
	KindTicketCreated       = "ticket-created"
	KindTicketCommented     = "ticket-commented"
	KindTicketStatusUpdated = "ticket-status-updated"
)

// EventHandler takes committed-action reports from the CRUD services and runs
// the notification hooks for them in the background.
type EventHandler struct {
	hooks  *notification.Hooks
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewEventHandler(hooks *notification.Hooks, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		hooks:  hooks,
		logger: logger.With().Str("handler", "events").Logger(),
	}
}

// minimumRole is the role needed to report each kind. Tickets are raised and
// discussed by franchisees; everything else is authored by managers.
var minimumRole = map[string]models.UserRole{
	KindDocumentUploaded:    models.RoleManager,
	KindAnnouncementPosted:  models.RoleManager,
	KindRestaurantJoined:    models.RoleManager,
	KindTicketCreated:       models.RoleViewer,
	KindTicketCommented:     models.RoleViewer,
	KindTicketStatusUpdated: models.RoleManager,
}

func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	kind := mux.Vars(r)["kind"]
	required, known := minimumRole[kind]
	if !known {
		writeError(w, http.StatusNotFound, "unknown event kind")
		return
	}
	if !models.HasAtLeast(id.Roles, required) {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	var run func(ctx context.Context)
	switch kind {
	case KindDocumentUploaded:
		var evt notification.DocumentUploaded
		if !h.decodeEvent(w, r, id, &evt, &evt.TenantID, &evt.AuthorID) {
			return
		}
		run = func(ctx context.Context) { h.hooks.DocumentUploaded(ctx, evt) }
	case KindAnnouncementPosted:
		var evt notification.AnnouncementPosted
		if !h.decodeEvent(w, r, id, &evt, &evt.TenantID, &evt.AuthorID) {
			return
		}
		run = func(ctx context.Context) { h.hooks.AnnouncementPosted(ctx, evt) }
	case KindRestaurantJoined:
		var evt notification.RestaurantJoined
		if !h.decodeEvent(w, r, id, &evt, &evt.TenantID, nil) {
			return
		}
		run = func(ctx context.Context) { h.hooks.RestaurantJoined(ctx, evt) }
	case KindTicketCreated:
		var evt notification.TicketCreated
		if !h.decodeEvent(w, r, id, &evt, &evt.TenantID, &evt.CreatorID) {
			return
		}
		run = func(ctx context.Context) { h.hooks.TicketCreated(ctx, evt) }
	case KindTicketCommented:
		var evt notification.TicketCommented
		if !h.decodeEvent(w, r, id, &evt, &evt.TenantID, &evt.CommenterID) {
			return
		}
		run = func(ctx context.Context) { h.hooks.TicketCommented(ctx, evt) }
	case KindTicketStatusUpdated:
		var evt notification.TicketStatusUpdated
		if !h.decodeEvent(w, r, id, &evt, &evt.TenantID, &evt.UpdatedBy) {
			return
		}
		run = func(ctx context.Context) { h.hooks.TicketStatusUpdated(ctx, evt) }
	}

	ctx := context.WithoutCancel(r.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		run(ctx)
	}()

	h.logger.Debug().Str("kind", kind).Str("tenant_id", id.TenantID).Msg("event accepted")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// decodeEvent fills dst from the body. A missing tenant defaults to the
// caller's; naming another tenant needs super admin. The acting user is the
// caller, except that a super admin may report on behalf of someone else.
func (h *EventHandler) decodeEvent(w http.ResponseWriter, r *http.Request, id authz.Identity, dst interface{}, tenantID, actorID *string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	superAdmin := models.HasAtLeast(id.Roles, models.RoleSuperAdmin)
	if *tenantID == "" {
		*tenantID = id.TenantID
	}
	if *tenantID != id.TenantID && !superAdmin {
		writeError(w, http.StatusForbidden, "insufficient permissions for tenant")
		return false
	}
	if actorID != nil && (!superAdmin || *actorID == "") {
		*actorID = id.UserID
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// Wait blocks until every accepted event has been handled.
func (h *EventHandler) Wait() {
	h.wg.Wait()
}
