package hub

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
	"github.com/roach88/amflow/internal/store"
)

var _ Persistence = (*store.Store)(nil)

// persistenceBackends returns a fresh instance of every implementation.
func persistenceBackends(t *testing.T) map[string]Persistence {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return map[string]Persistence{
		"memory": NewMemoryPersistence(),
		"sqlite": s,
	}
}

// TestPersistence_Parity runs the same operations against every backend and
// expects identical results.
func TestPersistence_Parity(t *testing.T) {
	ctx := context.Background()

	for name, p := range persistenceBackends(t) {
		t.Run(name, func(t *testing.T) {
			// Ticks
			require.NoError(t, p.AppendTick(ctx, "1", playlog.Tick{Frame: 4, Events: []playlog.Event{{Code: 4}}}))
			require.NoError(t, p.AppendTick(ctx, "1", playlog.Tick{Frame: 2}))
			require.NoError(t, p.AppendTick(ctx, "1", playlog.Tick{Frame: 4, Events: []playlog.Event{{Code: 99}}}))
			require.NoError(t, p.AppendTick(ctx, "2", playlog.Tick{Frame: 9}))

			ticks, err := p.TickRange(ctx, "1", 0, 10)
			require.NoError(t, err)
			require.Len(t, ticks, 2)
			assert.Equal(t, int64(2), ticks[0].Frame)
			assert.Equal(t, playlog.EventCode(4), ticks[1].Events[0].Code, "first write wins")

			last, ok, err := p.LastFrame(ctx, "1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(4), last)

			_, ok, err = p.LastFrame(ctx, "empty")
			require.NoError(t, err)
			assert.False(t, ok)

			// Start points
			require.NoError(t, p.PutStartPoint(ctx, "1", amflow.StartPoint{Frame: 0, Timestamp: 10}))
			require.NoError(t, p.PutStartPoint(ctx, "1", amflow.StartPoint{Frame: 3, Timestamp: 30}))
			sp, err := p.FindStartPoint(ctx, "1", amflow.BeforeFrame(4))
			require.NoError(t, err)
			assert.Equal(t, int64(3), sp.Frame)
			_, err = p.FindStartPoint(ctx, "2", amflow.GetStartPointOptions{})
			assert.ErrorIs(t, err, amflow.ErrNotFound)

			// Storage
			key := playlog.StorageKey{Region: playlog.StorageRegionCounts, RegionKey: "k", UserID: "b"}
			applied, err := p.PutStorageData(ctx, "1", key, playlog.StorageValue{Data: 2.0}, amflow.PutStorageDataOptions{})
			require.NoError(t, err)
			assert.True(t, applied)
			key.UserID = "a"
			_, err = p.PutStorageData(ctx, "1", key, playlog.StorageValue{Data: "x", Tag: "t"}, amflow.PutStorageDataOptions{})
			require.NoError(t, err)

			applied, err = p.PutStorageData(ctx, "1", key, playlog.StorageValue{Data: "y"}, amflow.PutStorageDataOptions{
				Condition:       amflow.StorageConditionGreaterThan,
				ComparisonValue: &playlog.StorageValue{Data: "x"},
			})
			require.NoError(t, err)
			assert.False(t, applied)

			wildcard := playlog.StorageReadKey{StorageKey: playlog.StorageKey{Region: playlog.StorageRegionCounts, RegionKey: "k"}}
			data, err := p.GetStorageData(ctx, "1", []playlog.StorageReadKey{wildcard})
			require.NoError(t, err)
			require.Len(t, data, 1)
			assert.Equal(t, []playlog.StorageValue{{Data: "x", Tag: "t"}, {Data: 2.0}}, data[0].Values)
		})
	}
}

// TestHub_WithStore drives a session against SQLite end to end.
func TestHub_WithStore(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	defer s.Close()

	h := newTestHub(t, WithPersistence(s))
	sess := openSession(t, h, "1", "all")

	require.NoError(t, sess.SendTick(playlog.Tick{Frame: 0, Events: []playlog.Event{
		{Code: 1, Flags: playlog.EventFlagTransient},
		{Code: 2, PlayerID: "p"},
	}}))

	tl, err := getTickList(t, sess, amflow.LegacyTickListQuery(0, 1))
	require.NoError(t, err)
	require.Len(t, tl.Ticks, 1)
	assert.Equal(t, []playlog.Event{{Code: 2, PlayerID: "p"}}, tl.Ticks[0].Events)
	assert.Same(t, Persistence(s), h.Persistence())
}
