package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/franchise-hub/internal/authz"
)

// IdentityResolver authenticates the handshake request.
type IdentityResolver interface {
	ResolveRequest(r *http.Request) (authz.Identity, error)
}

type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

// frame is the wire format of every server-sent event.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Gateway authenticates WebSocket connections, joins them to their tenant room
// and routes emitted events to them through the bus.
type Gateway struct {
	resolver IdentityResolver
	registry *SessionRegistry
	bus      Bus
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// mu orders handshakes against Close; no session registers once closed is set.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewGateway(resolver IdentityResolver, bus Bus, opts Options, logger zerolog.Logger) *Gateway {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	g := &Gateway{
		resolver: resolver,
		registry: NewSessionRegistry(),
		bus:      bus,
		opts:     opts,
		logger:   logger.With().Str("component", "realtime_gateway").Logger(),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	bus.Subscribe(g.dispatch)
	return g
}

func (g *Gateway) Registry() *SessionRegistry {
	return g.registry
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP refuses the handshake with 401 when the credential does not verify;
// there is no anonymous connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := g.resolver.ResolveRequest(r)
	if err != nil {
		g.logger.Info().Err(err).Str("remote_addr", r.RemoteAddr).Msg("realtime connection refused")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	if g.isClosed() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "shutting down"})
		return
	}

	session := newSession(identity.UserID, identity.TenantID, identity.Role(), g.opts.SendBuffer)
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	logger := g.logger.With().
		Str("session_id", session.ID).
		Str("user_id", session.UserID).
		Str("tenant_id", session.TenantID).
		Logger()

	// Close may have started while the upgrade was in flight.
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(g.opts.WriteTimeout))
		conn.Close()
		return
	}
	g.wg.Add(1)
	session.setState(StateAuthenticated)
	previous := g.registry.Register(session)
	g.mu.Unlock()

	if previous != nil {
		logger.Debug().Str("previous_session_id", previous.ID).Msg("newer connection replaces user session")
	}
	logger.Info().Msg("realtime session connected")

	c := &client{
		conn:         conn,
		session:      session,
		pingInterval: g.opts.PingInterval,
		writeTimeout: g.opts.WriteTimeout,
		logger:       logger,
	}

	go func() {
		defer g.wg.Done()
		c.writePump()
	}()

	c.readPump()

	g.registry.Unregister(session)
	session.close()
	logger.Info().Msg("realtime session disconnected")
}

// EmitToUser reaches the user's live session on any instance. An offline user
// is not an error.
func (g *Gateway) EmitToUser(ctx context.Context, userID, event string, payload interface{}) error {
	return g.publish(ctx, ScopeUser, []string{userID}, event, payload)
}

// EmitToTenant reaches every session in the tenant room, whatever the user's role.
func (g *Gateway) EmitToTenant(ctx context.Context, tenantID, event string, payload interface{}) error {
	return g.publish(ctx, ScopeTenant, []string{tenantID}, event, payload)
}

func (g *Gateway) EmitToUsers(ctx context.Context, userIDs []string, event string, payload interface{}) error {
	if len(userIDs) == 0 {
		return nil
	}
	return g.publish(ctx, ScopeUsers, userIDs, event, payload)
}

func (g *Gateway) publish(ctx context.Context, scope Scope, targets []string, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode realtime payload")
	}
	return g.bus.Publish(ctx, Envelope{Scope: scope, Targets: targets, Event: event, Data: data})
}

// dispatch delivers an envelope to the sessions held by this instance.
func (g *Gateway) dispatch(env Envelope) {
	encoded, err := json.Marshal(frame{Event: env.Event, Data: env.Data})
	if err != nil {
		g.logger.Warn().Err(err).Str("event", env.Event).Msg("failed to encode realtime frame")
		return
	}

	var sessions []*Session
	switch env.Scope {
	case ScopeUser, ScopeUsers:
		for _, userID := range env.Targets {
			if s, ok := g.registry.Lookup(userID); ok {
				sessions = append(sessions, s)
			}
		}
	case ScopeTenant:
		for _, tenantID := range env.Targets {
			sessions = append(sessions, g.registry.Room(tenantID)...)
		}
	default:
		g.logger.Warn().Str("scope", string(env.Scope)).Msg("unknown realtime scope")
		return
	}

	for _, s := range sessions {
		if s.enqueue(encoded) {
			continue
		}
		if s.State() != StateDisconnected {
			g.logger.Warn().Str("session_id", s.ID).Str("user_id", s.UserID).Msg("closing slow realtime session")
			s.close()
		}
	}
}

func (g *Gateway) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close refuses new handshakes, disconnects every session and waits for their
// writers to finish. It is safe to call more than once.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	for _, s := range g.registry.All() {
		s.close()
	}
	g.wg.Wait()
}
