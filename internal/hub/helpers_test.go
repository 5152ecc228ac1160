package hub

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

var (
	permAll = amflow.Permission{
		WriteTick:        true,
		ReadTick:         true,
		SubscribeTick:    true,
		SendEvent:        true,
		SubscribeEvent:   true,
		MaxEventPriority: 3,
	}
	permActive = amflow.Permission{
		WriteTick:        true,
		SubscribeEvent:   true,
		MaxEventPriority: 3,
	}
	permPassive = amflow.Permission{
		ReadTick:         true,
		SubscribeTick:    true,
		SendEvent:        true,
		MaxEventPriority: 1,
	}
)

func testTokens() TokenTable {
	return TokenTable{
		"all":     permAll,
		"active":  permActive,
		"passive": permPassive,
		"none":    {},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return New(testTokens(), opts...)
}

// openSession opens a session on playID and authenticates it with token.
func openSession(t *testing.T, h *Hub, playID, token string) *Session {
	t.Helper()
	s := h.NewSession()

	var openErr error
	s.Open(playID, func(err error) { openErr = err })
	require.NoError(t, openErr)

	var authErr error
	s.Authenticate(token, func(_ *amflow.Permission, err error) { authErr = err })
	require.NoError(t, authErr)
	return s
}

// recorder collects deliveries.
type recorder struct {
	mu     sync.Mutex
	ticks  []playlog.Tick
	events []playlog.Event
}

func (r *recorder) HandleTick(tick playlog.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, tick)
}

func (r *recorder) HandleEvent(event playlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func getTickList(t *testing.T, s *Session, q amflow.TickListQuery) (*playlog.TickList, error) {
	t.Helper()
	var (
		tl  *playlog.TickList
		err error
	)
	called := false
	s.GetTickList(q, func(v *playlog.TickList, e error) {
		called = true
		tl, err = v, e
	})
	require.True(t, called, "callback must run before GetTickList returns")
	return tl, err
}

// fakeMetrics counts observer calls.
type fakeMetrics struct {
	mu       sync.Mutex
	opened   int
	closed   int
	ticks    int
	events   int
	failures map[amflow.Operation]int
}

func (m *fakeMetrics) SessionOpened(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *fakeMetrics) SessionClosed(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *fakeMetrics) TickSent(string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func (m *fakeMetrics) EventSent(string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events++
}

func (m *fakeMetrics) Request(op amflow.Operation, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if m.failures == nil {
			m.failures = make(map[amflow.Operation]int)
		}
		m.failures[op]++
	}
}
