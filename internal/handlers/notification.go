package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/notification"
	"github.com/stanstork/franchise-hub/internal/push"
)

type NotificationHandler struct {
	service notification.Service
	tracker *notification.Tracker
	push    *push.Service
	logger  zerolog.Logger
}

type recordViewRequest struct {
	TargetType string `json:"targetType" validate:"required"`
	TargetID   string `json:"targetId" validate:"required"`
}

type markAllReadRequest struct {
	NotificationType string `json:"notificationType" validate:"required"`
}

type markCategoryReadRequest struct {
	Category string `json:"category" validate:"required,oneof=documents announcements tickets"`
}

// subscribeRequest mirrors PushSubscription.toJSON() from the browser plus
// device metadata.
type subscribeRequest struct {
	Endpoint       string `json:"endpoint" validate:"required,url"`
	ExpirationTime *int64 `json:"expirationTime"`
	Keys           struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	UserAgent *string `json:"userAgent"`
	Platform  *string `json:"platform"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

type cleanupRequest struct {
	AllTenants bool `json:"allTenants"`
}

func NewNotificationHandler(service notification.Service, tracker *notification.Tracker, pushService *push.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		tracker: tracker,
		push:    pushService,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	page, err := h.service.ListForUser(r.Context(), id.UserID, queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		h.fail(w, err, "Failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *NotificationHandler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	counts, err := h.service.UnreadCountsByCategory(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, err, "Failed to count unread notifications")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// RecordView records that the caller opened a target and marks the related
// notifications read.
func (h *NotificationHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	var req recordViewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "targetType and targetId are required")
		return
	}
	targetType, err := models.ParseTargetType(req.TargetType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.tracker.MarkTargetSeen(r.Context(), id.UserID, targetType, req.TargetID)
	if err != nil {
		h.fail(w, err, "Failed to record view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	var req markAllReadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "notificationType is required")
		return
	}
	notifType, err := models.ParseNotificationType(req.NotificationType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.MarkAllReadByType(r.Context(), id.UserID, notifType); err != nil {
		h.fail(w, err, "Failed to mark notifications as read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkCategoryRead(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	var req markCategoryReadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "category must be one of documents, announcements, tickets")
		return
	}

	if err := h.service.MarkCategoryRead(r.Context(), id.UserID, models.NotificationCategory(req.Category)); err != nil {
		h.fail(w, err, "Failed to mark notifications as read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListViewers reports who in the caller's tenant has opened a target.
// Routes wrap it in a manager role check.
func (h *NotificationHandler) ListViewers(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	targetType, err := models.ParseTargetType(vars["targetType"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.tracker.ListViewers(r.Context(), id.TenantID, targetType, vars["targetId"], queryInt(r, "page"), queryInt(r, "page_size"))
	if err != nil {
		h.fail(w, err, "Failed to list viewers")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *NotificationHandler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.push.VAPIDPublicKey()})
}

func (h *NotificationHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}

	params := push.SubscribeParams{
		UserID:    id.UserID,
		Endpoint:  req.Endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
		UserAgent: req.UserAgent,
		Platform:  req.Platform,
	}
	if req.ExpirationTime != nil {
		expires := time.UnixMilli(*req.ExpirationTime).UTC()
		params.ExpirationTime = &expires
	}

	sub, err := h.push.Subscribe(r.Context(), params)
	if err != nil {
		h.fail(w, err, "Failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe removes one device when the body names an endpoint and every
// device of the caller otherwise.
func (h *NotificationHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	var req unsubscribeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		removed int64
		err     error
	)
	if endpoint := strings.TrimSpace(req.Endpoint); endpoint != "" {
		removed, err = h.push.UnsubscribeEndpoint(r.Context(), id.UserID, endpoint)
	} else {
		removed, err = h.push.Unsubscribe(r.Context(), id.UserID)
	}
	if err != nil {
		h.fail(w, err, "Failed to remove subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (h *NotificationHandler) TestPush(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	h.push.SendToUser(r.Context(), id.UserID, push.Message{
		Title: "Test notification",
		Body:  "Push notifications are working on this device.",
		URL:   "/notifications",
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// Cleanup deletes announcement notifications addressed to managers. Only a
// super admin may sweep every tenant.
func (h *NotificationHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	var req cleanupRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tenantID := id.TenantID
	if req.AllTenants {
		if !models.HasAtLeast(id.Roles, models.RoleSuperAdmin) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		tenantID = ""
	}

	deleted, err := h.service.CleanupManagerAnnouncements(r.Context(), tenantID)
	if err != nil {
		h.fail(w, err, "Failed to clean up notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *NotificationHandler) fail(w http.ResponseWriter, err error, fallback string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg(strings.ToLower(fallback))
	}
	writeError(w, status, publicMessage(err, status, fallback))
}
