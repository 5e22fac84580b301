package relay

import (
	"sync"
	"time"

	"tether/internal/protocol"
)

// Close codes sent to endpoints when the relay ends a connection.
const (
	CloseNormal         = 1000
	CloseSessionExpired = 4000
	CloseReplaced       = 4001
	CloseSlowConsumer   = 4002
)

// Conn is a live endpoint connection as seen by the registry and router.
// Send must not block; delivery is fire-and-forget.
type Conn interface {
	ID() string
	Send(f protocol.Outbound) error
	Close(code int, reason string) error
}

// Member is the connection occupying one role slot.
type Member struct {
	Conn          Conn
	Role          protocol.Role
	ConnectedAt   time.Time
	LastHeartbeat time.Time
}

// Session pairs at most one desktop and one mobile member.
type Session struct {
	ID        string
	Desktop   *Member
	Mobile    *Member
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Slot returns the client holding role, or nil.
func (s *Session) Slot(role protocol.Role) *Member {
	switch role {
	case protocol.RoleDesktop:
		return s.Desktop
	case protocol.RoleMobile:
		return s.Mobile
	}
	return nil
}

// Peer returns the client holding the role opposite to role, or nil.
func (s *Session) Peer(role protocol.Role) *Member {
	return s.Slot(role.Other())
}

// holds reports whether conn occupies the role slot.
func (s *Session) holds(role protocol.Role, conn Conn) bool {
	c := s.Slot(role)
	return c != nil && c.Conn == conn
}

// Empty reports whether both slots are vacant.
func (s *Session) Empty() bool { return s.Desktop == nil && s.Mobile == nil }

func (s *Session) setSlot(role protocol.Role, c *Member) {
	switch role {
	case protocol.RoleDesktop:
		s.Desktop = c
	case protocol.RoleMobile:
		s.Mobile = c
	}
}

// extend pushes ExpiresAt forward; it never moves it back.
func (s *Session) extend(until time.Time) {
	if until.After(s.ExpiresAt) {
		s.ExpiresAt = until
	}
}

// snapshot copies s so callers can read it without holding the lock.
func (s *Session) snapshot() Session {
	cp := *s
	cp.Desktop = s.Desktop.copy()
	cp.Mobile = s.Mobile.copy()
	return cp
}

func (c *Member) copy() *Member {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Stats is a diagnostic summary of the registry.
type Stats struct {
	TotalSessions  int `json:"totalSessions"`
	ActiveSessions int `json:"activeSessions"`
}

// Registry is the authoritative map of session id to Session. A single
// mutex serialises every read-modify-write, including sweeps.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns an empty registry whose sessions live for ttl past
// their last join or heartbeat.
func NewRegistry(ttl time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// TTL returns the configured session lifetime.
func (r *Registry) TTL() time.Duration { return r.ttl }

// GetOrCreate returns the session for id, creating it if absent.
func (r *Registry) GetOrCreate(id string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(id).snapshot()
}

func (r *Registry) getOrCreateLocked(id string) *Session {
	if s, ok := r.sessions[id]; ok {
		return s
	}
	now := r.now()
	s := &Session{ID: id, CreatedAt: now, ExpiresAt: now.Add(r.ttl)}
	r.sessions[id] = s
	return s
}

// Get returns a snapshot of the session for id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

// AddClient installs conn in the role slot of session id. Any previous
// occupant of the same slot is returned as displaced; the caller must notify
// and close it. peer is the client of the other role, if present.
func (r *Registry) AddClient(id string, role protocol.Role, conn Conn) (sess Session, displaced, peer *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreateLocked(id)
	now := r.now()

	displaced = s.Slot(role).copy()
	s.setSlot(role, &Member{
		Conn:          conn,
		Role:          role,
		ConnectedAt:   now,
		LastHeartbeat: now,
	})
	s.extend(now.Add(r.ttl))

	return s.snapshot(), displaced, s.Peer(role).copy()
}

// RemoveClient clears the role slot of session id and deletes the session
// once both slots are empty.
func (r *Registry) RemoveClient(id string, role protocol.Role) (*Member, bool) {
	removed, _, ok := r.remove(id, role, nil)
	return removed, ok
}

// RemoveClientIf is RemoveClient guarded by identity: the slot is cleared
// only if it still holds conn. A displaced connection that disconnects late
// therefore cannot evict its replacement. The remaining peer is returned so
// the caller can notify it.
func (r *Registry) RemoveClientIf(id string, role protocol.Role, conn Conn) (removed, peer *Member, ok bool) {
	return r.remove(id, role, conn)
}

func (r *Registry) remove(id string, role protocol.Role, conn Conn) (removed, peer *Member, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, nil, false
	}
	cur := s.Slot(role)
	if cur == nil || (conn != nil && cur.Conn != conn) {
		return nil, nil, false
	}
	s.setSlot(role, nil)
	if s.Empty() {
		delete(r.sessions, id)
	}
	return cur.copy(), s.Peer(role).copy(), true
}

// Peer returns the client of the role opposite to role in session id.
func (r *Registry) Peer(id string, role protocol.Role) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	p := s.Peer(role)
	return p.copy(), p != nil
}

// PeerFor is Peer for a sender that must still hold its slot. member is
// false when conn no longer occupies role in session id, for example after
// displacement or a sweep; peer is then nil.
func (r *Registry) PeerFor(id string, role protocol.Role, conn Conn) (peer *Member, member bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.holds(role, conn) {
		return nil, false
	}
	return s.Peer(role).copy(), true
}

// UpdateHeartbeat refreshes the role's heartbeat and extends the session.
// It reports false when no such member exists.
func (r *Registry) UpdateHeartbeat(id string, role protocol.Role) bool {
	return r.heartbeat(id, role, nil)
}

// UpdateHeartbeatIf is UpdateHeartbeat guarded by identity: only the
// connection holding the slot can keep the session alive.
func (r *Registry) UpdateHeartbeatIf(id string, role protocol.Role, conn Conn) bool {
	return r.heartbeat(id, role, conn)
}

func (r *Registry) heartbeat(id string, role protocol.Role, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	c := s.Slot(role)
	if c == nil || (conn != nil && c.Conn != conn) {
		return false
	}
	now := r.now()
	c.LastHeartbeat = now
	s.extend(now.Add(r.ttl))
	return true
}

// SweepExpired closes and deletes every session with ExpiresAt <= now and
// returns how many were removed.
func (r *Registry) SweepExpired(now time.Time) int {
	return len(r.sweep(now))
}

// sweep deletes expired sessions under the lock, then closes their
// connections outside it.
func (r *Registry) sweep(now time.Time) []Session {
	r.mu.Lock()
	var expired []Session
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			expired = append(expired, s.snapshot())
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		for _, c := range []*Member{s.Desktop, s.Mobile} {
			if c != nil {
				_ = c.Conn.Close(CloseSessionExpired, "session expired")
			}
		}
	}
	return expired
}

// Stats counts all sessions and those with at least one occupied slot.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{TotalSessions: len(r.sessions)}
	for _, s := range r.sessions {
		if !s.Empty() {
			st.ActiveSessions++
		}
	}
	return st
}
