package realtime

import "sync"

// SessionRegistry tracks live sessions by user and by tenant room. A user maps
// to their most recent session; a room holds every session of the tenant.
type SessionRegistry struct {
	mu     sync.RWMutex
	byUser map[string]*Session
	rooms  map[string]map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byUser: make(map[string]*Session),
		rooms:  make(map[string]map[string]*Session),
	}
}

// Register adds the session to the user map and its tenant room. It returns the
// session it displaced from the user map, if any.
func (r *SessionRegistry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.byUser[s.UserID]
	r.byUser[s.UserID] = s
	room, ok := r.rooms[s.TenantID]
	if !ok {
		room = make(map[string]*Session)
		r.rooms[s.TenantID] = room
	}
	room[s.ID] = s
	if previous == s {
		return nil
	}
	return previous
}

// Unregister removes the session from its room, and from the user map only if
// it is still the user's current session.
func (r *SessionRegistry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.byUser[s.UserID]; ok && current == s {
		delete(r.byUser, s.UserID)
	}
	if room, ok := r.rooms[s.TenantID]; ok {
		delete(room, s.ID)
		if len(room) == 0 {
			delete(r.rooms, s.TenantID)
		}
	}
}

func (r *SessionRegistry) Lookup(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// Room returns a snapshot of the tenant's sessions.
func (r *SessionRegistry) Room(tenantID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[tenantID]
	sessions := make([]*Session, 0, len(room))
	for _, s := range room {
		sessions = append(sessions, s)
	}
	return sessions
}

// All returns a snapshot of every registered session.
func (r *SessionRegistry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sessions []*Session
	for _, room := range r.rooms {
		for _, s := range room {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, room := range r.rooms {
		n += len(room)
	}
	return n
}
