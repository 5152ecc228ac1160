package wsflow

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/hub"
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

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	hub     *hub.Hub
	server  *Server
	metrics *Metrics
	http    *httptest.Server
	url     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	metrics := NewMetrics("amflow")
	h := hub.New(hub.TokenTable{
		"all":     permAll,
		"active":  permActive,
		"passive": permPassive,
	}, hub.WithLogger(discardLogger()), hub.WithMetrics(metrics))

	srv := NewServer(h, WithServerLogger(discardLogger()), WithServerMetrics(metrics))
	ts := httptest.NewServer(srv.Handler("/metrics"))
	t.Cleanup(ts.Close)

	return &testServer{
		hub:     h,
		server:  srv,
		metrics: metrics,
		http:    ts,
		url:     "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

func (ts *testServer) dial(t *testing.T) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, ts.url, WithClientLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func await[T any](t *testing.T, f *amflow.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Await(ctx)
}

// connect dials, opens playID and authenticates with token.
func (ts *testServer) connect(t *testing.T, playID, token string) (*Client, *amflow.PromisifiedAMFlow) {
	t.Helper()
	c := ts.dial(t)
	p := amflow.Promisify(c)

	_, err := await(t, p.Open(playID))
	require.NoError(t, err)
	_, err = await(t, p.Authenticate(token))
	require.NoError(t, err)
	return c, p
}

// recorder collects pushes. Handlers run on the client's read goroutine.
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

func (r *recorder) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func (r *recorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
