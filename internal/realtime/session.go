package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stanstork/franchise-hub/internal/models"
)

// SessionState is the lifecycle of one connection.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateDisconnected:
		return "DISCONNECTED"
	}
	return "UNKNOWN"
}

// Session is one live connection bound to an authenticated user.
type Session struct {
	ID       string
	UserID   string
	TenantID string
	Role     models.UserRole

	state     atomic.Int32
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(userID, tenantID string, role models.UserRole, buffer int) *Session {
	if buffer < 1 {
		buffer = 1
	}
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// enqueue queues a frame without blocking. It reports false when the session
// is closed or its buffer is full.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateDisconnected)
		close(s.done)
	})
}

// Done is closed once the session is disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
