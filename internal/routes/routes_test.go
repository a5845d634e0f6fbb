package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/authz"
	"github.com/stanstork/franchise-hub/internal/handlers"
	"github.com/stanstork/franchise-hub/internal/models"
	"github.com/stanstork/franchise-hub/internal/notification"
	"github.com/stanstork/franchise-hub/internal/push"
	"github.com/stanstork/franchise-hub/internal/repository"
	"github.com/stanstork/franchise-hub/internal/repository/repositorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *repositorytest.Store
	resolver *authz.Resolver
	service  notification.Service
	events   *handlers.EventHandler
	inline   *push.InlineDispatcher
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	store := repositorytest.NewStore()
	resolver := authz.NewResolver("routes-test-secret", time.Hour)

	service := notification.NewService(store.NotificationRepository(), store.UserRepository(), logger)
	tracker := notification.NewTracker(store.ViewRepository(), service, logger, 0)

	deliverer := push.NewDeliverer(store.PushSubscriptionRepository(), push.NewLogSender(logger), logger)
	inline := push.NewInlineDispatcher(deliverer, 2, logger)
	pushService := push.NewService(store.PushSubscriptionRepository(), store.UserRepository(), inline, "public-vapid", logger)

	hooks := notification.NewHooks(service, nil, pushService, logger)
	events := handlers.NewEventHandler(hooks, logger)

	router := NewRouter(Handlers{
		Auth:          handlers.NewAuthHandler(store.UserRepository(), resolver, logger),
		Health:        handlers.NewHealthHandler(nil, nil),
		Notifications: handlers.NewNotificationHandler(service, tracker, pushService, logger),
		Events:        events,
	})

	t.Cleanup(func() {
		events.Wait()
		inline.Wait()
	})
	return &fixture{store: store, resolver: resolver, service: service, events: events, inline: inline, router: router}
}

func (f *fixture) token(t *testing.T, user models.User) string {
	t.Helper()
	token, err := f.resolver.Issue(user)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) notify(t *testing.T, user models.User, notifType models.NotificationType, targetID string) {
	t.Helper()
	_, err := f.service.Create(context.Background(), notification.CreateParams{
		RecipientUserID: user.ID,
		TenantID:        user.TenantID,
		Type:            notifType,
		TargetID:        targetID,
		Message:         "hello",
	})
	require.NoError(t, err)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.UserRepository().CreateUser(context.Background(), repository.CreateUserParams{
		TenantID: "t1",
		Email:    "owner@example.com",
		Password: "s3cret!",
		Roles:    []models.UserRole{models.RoleManager},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{name: "valid", body: map[string]string{"email": "owner@example.com", "password": "s3cret!"}, want: http.StatusOK},
		{name: "wrong password", body: map[string]string{"email": "owner@example.com", "password": "nope"}, want: http.StatusUnauthorized},
		{name: "unknown user", body: map[string]string{"email": "ghost@example.com", "password": "s3cret!"}, want: http.StatusUnauthorized},
		{name: "malformed email", body: map[string]string{"email": "owner", "password": "s3cret!"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/login", "", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := f.do(t, http.MethodPost, "/api/login", "", map[string]string{"email": "owner@example.com", "password": "s3cret!"})
	var resp struct {
		Token string             `json:"token"`
		User  models.UserSummary `json:"user"`
	}
	decode(t, rec, &resp)
	id, err := f.resolver.Resolve(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "t1", id.TenantID)
	assert.Equal(t, models.RoleManager, resp.User.Role)
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t)
	for _, token := range []string{"", "garbage"} {
		rec := f.do(t, http.MethodGet, "/api/notifications", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestListAndUnreadCounts(t *testing.T) {
	f := newFixture(t)
	viewer := f.store.AddUser("t1", "v@example.com")
	f.notify(t, viewer, models.NotificationDocumentUploaded, "d1")
	f.notify(t, viewer, models.NotificationTicketCreated, "tk1")
	f.notify(t, viewer, models.NotificationTicketCommented, "tk1")
	token := f.token(t, viewer)

	rec := f.do(t, http.MethodGet, "/api/notifications?page=1&page_size=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Page[models.Notification]
	decode(t, rec, &page)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, models.NotificationTicketCommented, page.Items[0].Type)

	rec = f.do(t, http.MethodGet, "/api/notifications/unread-counts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var counts models.UnreadCounts
	decode(t, rec, &counts)
	assert.Equal(t, models.UnreadCounts{Documents: 1, Tickets: 2}, counts)
}

func TestRecordViewMarksRelatedRead(t *testing.T) {
	f := newFixture(t)
	viewer := f.store.AddUser("t1", "v@example.com")
	f.notify(t, viewer, models.NotificationTicketStatusUpdated, "tk1")
	f.notify(t, viewer, models.NotificationDocumentUploaded, "d1")
	token := f.token(t, viewer)

	rec := f.do(t, http.MethodPost, "/api/notifications/views", token, map[string]string{"targetType": "ticket", "targetId": "tk1"})
	require.Equal(t, http.StatusOK, rec.Code)

	counts, err := f.service.UnreadCountsByCategory(context.Background(), viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCounts{Documents: 1}, counts)

	rec = f.do(t, http.MethodPost, "/api/notifications/views", token, map[string]string{"targetType": "invoice", "targetId": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/notifications/views", token, map[string]string{"targetType": "ticket"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkReadEndpoints(t *testing.T) {
	f := newFixture(t)
	viewer := f.store.AddUser("t1", "v@example.com")
	f.notify(t, viewer, models.NotificationAnnouncementPosted, "a1")
	f.notify(t, viewer, models.NotificationRestaurantJoined, "r1")
	f.notify(t, viewer, models.NotificationDocumentUploaded, "d1")
	token := f.token(t, viewer)

	rec := f.do(t, http.MethodPost, "/api/notifications/mark-all-read", token, map[string]string{"notificationType": "document_uploaded"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/notifications/mark-category-read", token, map[string]string{"category": "announcements"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	counts, err := f.service.UnreadCountsByCategory(context.Background(), viewer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnreadCounts{}, counts)

	rec = f.do(t, http.MethodPost, "/api/notifications/mark-category-read", token, map[string]string{"category": "audits"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/notifications/mark-all-read", token, map[string]string{"notificationType": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListViewersRequiresManager(t *testing.T) {
	f := newFixture(t)
	viewer := f.store.AddUser("t1", "v@example.com")
	manager := f.store.AddUser("t1", "m@example.com", models.RoleManager)

	rec := f.do(t, http.MethodPost, "/api/notifications/views", f.token(t, viewer), map[string]string{"targetType": "announcement", "targetId": "a1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/notifications/views/announcement/a1", f.token(t, viewer), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/notifications/views/announcement/a1", f.token(t, manager), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Page[models.Viewer]
	decode(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, viewer.ID, page.Items[0].User.ID)
}

func TestPushSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)
	viewer := f.store.AddUser("t1", "v@example.com")
	token := f.token(t, viewer)

	rec := f.do(t, http.MethodGet, "/api/notifications/vapid-public-key", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"publicKey":"public-vapid"}`, rec.Body.String())

	subscribe := func(endpoint string) *httptest.ResponseRecorder {
		return f.do(t, http.MethodPost, "/api/notifications/subscribe", token, map[string]interface{}{
			"endpoint":       endpoint,
			"expirationTime": nil,
			"keys":           map[string]string{"p256dh": "key", "auth": "secret"},
			"platform":       "web",
		})
	}
	require.Equal(t, http.StatusCreated, subscribe("https://push.example.com/a").Code)
	require.Equal(t, http.StatusCreated, subscribe("https://push.example.com/a").Code)
	require.Equal(t, http.StatusCreated, subscribe("https://push.example.com/b").Code)
	assert.Len(t, f.store.Subscriptions(), 2)

	rec = f.do(t, http.MethodPost, "/api/notifications/subscribe", token, map[string]interface{}{"endpoint": "https://push.example.com/c"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/notifications/test-push", token, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/notifications/unsubscribe", token, map[string]string{"endpoint": "https://push.example.com/a"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/notifications/unsubscribe", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())
	assert.Empty(t, f.store.Subscriptions())
}

func TestAdminCleanup(t *testing.T) {
	f := newFixture(t)
	admin := f.store.AddUser("t1", "admin@example.com", models.RoleAdmin)
	manager := f.store.AddUser("t1", "m@example.com", models.RoleManager)
	viewer := f.store.AddUser("t1", "v@example.com")
	f.notify(t, manager, models.NotificationAnnouncementPosted, "a1")
	f.notify(t, viewer, models.NotificationAnnouncementPosted, "a1")

	rec := f.do(t, http.MethodPost, "/api/notifications/admin/cleanup", f.token(t, manager), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/notifications/admin/cleanup", f.token(t, admin), map[string]bool{"allTenants": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/notifications/admin/cleanup", f.token(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())

	remaining := f.store.Notifications()
	require.Len(t, remaining, 1)
	assert.Equal(t, viewer.ID, remaining[0].RecipientUserID)
}

func TestEventIntake(t *testing.T) {
	f := newFixture(t)
	creator := f.store.AddUser("t1", "franchisee@example.com")
	manager := f.store.AddUser("t1", "m@example.com", models.RoleManager)
	token := f.token(t, creator)

	rec := f.do(t, http.MethodPost, "/api/events/ticket-created", token, map[string]string{
		"ticket_id": "tk1", "title": "Broken fryer", "creator_id": creator.ID,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.events.Wait()

	notifications := f.store.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, manager.ID, notifications[0].RecipientUserID)
	assert.Equal(t, "t1", notifications[0].TenantID)

	t.Run("unknown kind", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/events/audit-closed", token, map[string]string{})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing field", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/events/ticket-created", token, map[string]string{"title": "No id"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("foreign tenant", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/events/document-uploaded", f.token(t, manager), map[string]string{
			"tenant_id": "t2", "document_id": "d1",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("viewer cannot report manager events", func(t *testing.T) {
		for _, kind := range []string{"announcement-posted", "document-uploaded", "restaurant-joined", "ticket-status-updated"} {
			rec := f.do(t, http.MethodPost, "/api/events/"+kind, token, map[string]string{
				"announcement_id": "a1", "document_id": "d1", "restaurant_id": "r1",
				"ticket_id": "tk1", "creator_id": creator.ID, "status": "closed",
				"author_id": "someone-else",
			})
			assert.Equal(t, http.StatusForbidden, rec.Code, kind)
		}
		f.events.Wait()
		assert.Len(t, f.store.Notifications(), 1)
	})

	t.Run("actor comes from the caller", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/events/announcement-posted", f.token(t, manager), map[string]string{
			"announcement_id": "a2", "title": "Menu change", "author_id": creator.ID,
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
		f.events.Wait()

		var got []string
		for _, n := range f.store.Notifications() {
			if n.Type == models.NotificationAnnouncementPosted {
				got = append(got, n.RecipientUserID)
			}
		}
		assert.Equal(t, []string{creator.ID}, got)
	})
}

func TestListPagingIsBounded(t *testing.T) {
	f := newFixture(t)
	viewer := f.store.AddUser("t1", "v@example.com")
	manager := f.store.AddUser("t1", "m@example.com", models.RoleManager)

	rec := f.do(t, http.MethodGet, "/api/notifications?page_size=100000", f.token(t, viewer), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Page[models.Notification]
	decode(t, rec, &page)
	assert.Equal(t, models.MaxPageSize, page.PageSize)

	huge := "/api/notifications?page=9223372036854775807&page_size=200"
	rec = f.do(t, http.MethodGet, huge, f.token(t, viewer), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/notifications/views/announcement/a1?page=9223372036854775807", f.token(t, manager), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
