package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Hub owns the plays of one server and creates their sessions.
//
// Thread-safety: all methods are safe for concurrent use.
type Hub struct {
	ctx     context.Context
	persist Persistence
	auth    Authenticator
	ids     IDGenerator
	metrics Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	plays map[string]*play
}

// play groups the open sessions bound to one play ID.
type play struct {
	id       string
	mu       sync.Mutex
	sessions []*Session // join order; delivery follows it
}

// Option configures a Hub.
type Option func(*Hub)

// WithPersistence sets the persistence backend.
// Default: a fresh MemoryPersistence.
func WithPersistence(p Persistence) Option {
	return func(h *Hub) {
		h.persist = p
	}
}

// WithIDGenerator sets the session ID generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Hub) {
		h.ids = g
	}
}

// WithMetrics sets the metrics observer.
func WithMetrics(m Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithContext sets the context passed to persistence calls.
// Cancelling it fails every later persistence operation.
func WithContext(ctx context.Context) Option {
	return func(h *Hub) {
		h.ctx = ctx
	}
}

// New creates a Hub that authenticates sessions with auth.
func New(auth Authenticator, opts ...Option) *Hub {
	h := &Hub{
		ctx:     context.Background(),
		auth:    auth,
		ids:     UUIDv7Generator{},
		metrics: NopMetrics{},
		logger:  slog.Default(),
		plays:   make(map[string]*play),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.persist == nil {
		h.persist = NewMemoryPersistence()
	}

	return h
}

// NewSession creates a closed session.
func (h *Hub) NewSession() *Session {
	id := h.ids.Generate()
	return &Session{
		hub:    h,
		id:     id,
		logger: h.logger.With("session", id),
	}
}

// Persistence returns the hub's persistence backend.
func (h *Hub) Persistence() Persistence {
	return h.persist
}

// Plays returns the IDs of plays with at least one open session, sorted.
func (h *Hub) Plays() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.plays))
	for id := range h.plays {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SessionCount returns the number of open sessions bound to playID.
func (h *Hub) SessionCount(playID string) int {
	h.mu.Lock()
	p, ok := h.plays[playID]
	h.mu.Unlock()
	if !ok {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// join binds s to playID, creating the play on first use.
func (h *Hub) join(playID string, s *Session) {
	h.mu.Lock()
	p, ok := h.plays[playID]
	if !ok {
		p = &play{id: playID}
		h.plays[playID] = p
	}
	// p.mu is taken under h.mu so leave cannot drop p between lookup and join
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	h.mu.Unlock()

	h.metrics.SessionOpened(playID)
}

// leave unbinds s and drops the play when its last session leaves.
func (h *Hub) leave(playID string, s *Session) {
	h.mu.Lock()
	p, ok := h.plays[playID]
	if ok {
		p.mu.Lock()
		next := make([]*Session, 0, len(p.sessions))
		for _, other := range p.sessions {
			if other != s {
				next = append(next, other)
			}
		}
		p.sessions = next
		if len(next) == 0 {
			delete(h.plays, playID)
		}
		p.mu.Unlock()
	}
	h.mu.Unlock()

	if ok {
		h.metrics.SessionClosed(playID)
	}
}

// members returns a snapshot of the sessions bound to playID.
func (h *Hub) members(playID string) []*Session {
	h.mu.Lock()
	p, ok := h.plays[playID]
	h.mu.Unlock()
	if !ok {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}
