package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/amflow/internal/playlog"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTick creates a tick at frame carrying one event per code.
func createTestTick(frame int64, codes ...playlog.EventCode) playlog.Tick {
	tick := playlog.Tick{Frame: frame}
	for _, code := range codes {
		tick.Events = append(tick.Events, playlog.Event{Code: code, PlayerID: "player-1"})
	}
	return tick
}

// mustAppend appends ticks or fails the test.
func mustAppend(t *testing.T, s *Store, playID string, ticks ...playlog.Tick) {
	t.Helper()
	for _, tick := range ticks {
		if err := s.AppendTick(context.Background(), playID, tick); err != nil {
			t.Fatalf("AppendTick(%d) failed: %v", tick.Frame, err)
		}
	}
}
