package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/authz"
	"github.com/stanstork/franchise-hub/internal/config"
	"github.com/stanstork/franchise-hub/internal/handlers"
	"github.com/stanstork/franchise-hub/internal/middleware"
	"github.com/stanstork/franchise-hub/internal/migration"
	"github.com/stanstork/franchise-hub/internal/notification"
	"github.com/stanstork/franchise-hub/internal/push"
	"github.com/stanstork/franchise-hub/internal/realtime"
	"github.com/stanstork/franchise-hub/internal/repository"
	"github.com/stanstork/franchise-hub/internal/routes"
	"github.com/stanstork/franchise-hub/internal/temporal"
	"github.com/stanstork/franchise-hub/internal/temporal/activities"
	"github.com/stanstork/franchise-hub/internal/temporal/workflows"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config *config.Config
	db     *sql.DB
	logger zerolog.Logger

	bus            realtime.Bus
	gateway        *realtime.Gateway
	deliverer      *push.Deliverer
	inline         *push.InlineDispatcher
	temporalClient tc.Client
	temporalWorker worker.Worker
	events         *handlers.EventHandler
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	} else {
		logger.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, keeping info")
	}

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.RunMigrations(context.Background(), db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	app := &application{
		config: cfg,
		db:     db,
		logger: logger,
	}

	app.initRealtime()
	pushService := app.initPush()

	// Initialize the HTTP router and middleware.
	router := app.initRouter(pushService)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.RequestIDHeader}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler)

	logger.Info().Msg("Application terminated.")
}

// initRealtime picks the event bus and builds the WebSocket gateway on it.
func (app *application) initRealtime() {
	rc := app.config.Realtime
	switch rc.Bus {
	case "postgres":
		bus, err := realtime.NewPostgresBus(app.db, app.config.DatabaseURL, rc.Channel, app.logger)
		if err != nil {
			app.logger.Fatal().Err(err).Msg("Failed to start realtime bus")
		}
		app.bus = bus
	default:
		app.bus = realtime.NewLocalBus()
	}

	resolver := authz.NewResolver(app.config.JWTSecret, app.config.TokenTTL)
	app.gateway = realtime.NewGateway(resolver, app.bus, realtime.Options{
		PingInterval:   rc.PingInterval,
		WriteTimeout:   rc.WriteTimeout,
		SendBuffer:     rc.SendBuffer,
		AllowedOrigins: app.config.AllowedOrigins,
	}, app.logger)
	app.logger.Info().Str("bus", rc.Bus).Str("path", rc.Path).Msg("Realtime gateway ready")
}

// initPush wires the provider, the delivery mode and the subscription manager.
func (app *application) initPush() *push.Service {
	pc := app.config.Push

	var sender push.Sender
	switch pc.Provider {
	case "firebase":
		fs, err := push.NewFirebaseSender(context.Background(), pc.FirebaseCredentialsFile, app.logger)
		if err != nil {
			app.logger.Fatal().Err(err).Msg("Failed to initialize Firebase messaging")
		}
		sender = fs
	default:
		sender = push.NewLogSender(app.logger)
	}

	subs := repository.NewPushSubscriptionRepository(app.db)
	app.deliverer = push.NewDeliverer(subs, sender, app.logger)

	var dispatcher push.Dispatcher
	switch pc.DispatchMode {
	case "temporal":
		app.startTemporalWorker()
		dispatcher = workflows.NewDispatcher(app.temporalClient, app.config.Temporal.TaskQueue, app.logger)
	default:
		app.inline = push.NewInlineDispatcher(app.deliverer, pc.MaxConcurrency, app.logger)
		dispatcher = app.inline
	}

	app.logger.Info().Str("provider", pc.Provider).Str("dispatch_mode", pc.DispatchMode).Msg("Push delivery ready")
	return push.NewService(subs, repository.NewUserRepository(app.db), dispatcher, pc.VAPIDPublicKey, app.logger)
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(pushService *push.Service) http.Handler {
	// Repositories
	userRepo := repository.NewUserRepository(app.db)
	notificationRepo := repository.NewNotificationRepository(app.db)
	viewRepo := repository.NewViewRepository(app.db)

	policy, err := notification.ParseFanOutPolicy(app.config.Notifications.FanOutPolicy)
	if err != nil {
		app.logger.Fatal().Err(err).Msg("Invalid fan-out policy")
	}

	// Services
	notificationService := notification.NewService(notificationRepo, userRepo, app.logger,
		notification.WithFanOutPolicy(policy),
		notification.WithPageSize(app.config.Notifications.PageSize),
	)
	tracker := notification.NewTracker(viewRepo, notificationService, app.logger, app.config.Notifications.ViewersPageSize)
	hooks := notification.NewHooks(notificationService, app.gateway, pushService, app.logger)

	// Handlers
	resolver := authz.NewResolver(app.config.JWTSecret, app.config.TokenTTL)
	app.events = handlers.NewEventHandler(hooks, app.logger)

	return routes.NewRouter(routes.Handlers{
		Auth:          handlers.NewAuthHandler(userRepo, resolver, app.logger),
		Health:        handlers.NewHealthHandler(app.db, app.gateway.Registry()),
		Notifications: handlers.NewNotificationHandler(notificationService, tracker, pushService, app.logger),
		Events:        app.events,
		Realtime:      app.gateway,
		RealtimePath:  app.config.Realtime.Path,
	})
}

func (app *application) startTemporalWorker() {
	tcfg := app.config.Temporal

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  tcfg.HostPort,
		Namespace: tcfg.Namespace,
		Logger:    temporal.NewLogger(app.logger),
	})
	if err != nil {
		app.logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	app.temporalClient = temporalClient

	w := worker.New(temporalClient, tcfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.PushDeliveryWorkflow)
	w.RegisterActivity(&activities.Activities{Deliverer: app.deliverer})

	app.logger.Info().Str("task_queue", tcfg.TaskQueue).Msg("Starting Temporal worker...")
	if err := w.Start(); err != nil {
		app.logger.Fatal().Err(err).Msg("Unable to start worker")
	}
	app.temporalWorker = w
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler) {
	logger := app.logger
	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server. Hijacked WebSocket connections are
	// not tracked by Shutdown, so the gateway closes them itself.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Accepted events still emit through the gateway and push pipeline.
	app.events.Wait()

	app.gateway.Close()
	if err := app.bus.Close(); err != nil {
		logger.Error().Err(err).Msg("Realtime bus shutdown error")
	}
	logger.Info().Msg("Realtime gateway stopped.")

	if app.inline != nil {
		app.inline.Wait()
		logger.Info().Msg("Inline push deliveries drained.")
	}
	if app.temporalWorker != nil {
		logger.Info().Msg("Stopping Temporal worker...")
		app.temporalWorker.Stop()
		app.temporalClient.Close()
		logger.Info().Msg("Temporal worker stopped.")
	}
}
