package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stanstork/franchise-hub/internal/authz"
	"github.com/stanstork/franchise-hub/internal/handlers"
	"github.com/stanstork/franchise-hub/internal/models"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Health        *handlers.HealthHandler
	Notifications *handlers.NotificationHandler
	Events        *handlers.EventHandler
	// Realtime serves the WebSocket upgrade and authenticates on its own.
	Realtime     http.Handler
	RealtimePath string
}

// NewRouter sets up the API routes
func NewRouter(hs Handlers) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", hs.Health.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/login", hs.Auth.Login).Methods(http.MethodPost)

	if hs.Realtime != nil {
		path := hs.RealtimePath
		if path == "" {
			path = "/ws"
		}
		router.Handle(path, hs.Realtime).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(hs.Auth.JWTMiddleware)

	n := hs.Notifications
	api.HandleFunc("/notifications", n.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/unread-counts", n.UnreadCounts).Methods(http.MethodGet)
	api.HandleFunc("/notifications/views", n.RecordView).Methods(http.MethodPost)
	api.Handle("/notifications/views/{targetType}/{targetId}", authz.RequireRoleHandler(models.RoleManager, n.ListViewers)).Methods(http.MethodGet)
	api.HandleFunc("/notifications/mark-all-read", n.MarkAllRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/mark-category-read", n.MarkCategoryRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/vapid-public-key", n.VAPIDPublicKey).Methods(http.MethodGet)
	api.HandleFunc("/notifications/subscribe", n.Subscribe).Methods(http.MethodPost)
	api.HandleFunc("/notifications/unsubscribe", n.Unsubscribe).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/test-push", n.TestPush).Methods(http.MethodPost)
	api.Handle("/notifications/admin/cleanup", authz.RequireRoleHandler(models.RoleAdmin, n.Cleanup)).Methods(http.MethodPost)

	api.HandleFunc("/events/{kind}", hs.Events.Publish).Methods(http.MethodPost)

	return router
}
