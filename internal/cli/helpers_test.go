package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
	"github.com/roach88/amflow/internal/store"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData returns the data field of a JSON CLIResponse re-encoded, for
// comparison with assert.JSONEq.
func decodeData(t *testing.T, out string) (CLIResponse, string) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	return resp, string(data)
}

// seedDatabase writes play 42 and returns the database path:
//   - ticks at frames 0 (one event), 1 (none) and 2 (one ignorable, one plain)
//   - start points at frame 0 (timestamp 100) and frame 5 (timestamp 200)
//   - scores "high" for alice (10) and bob (20)
func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plays.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.AppendTick(ctx, "42", playlog.Tick{Frame: 0, Events: []playlog.Event{{Code: 1}}}))
	require.NoError(t, st.AppendTick(ctx, "42", playlog.Tick{Frame: 1}))
	require.NoError(t, st.AppendTick(ctx, "42", playlog.Tick{Frame: 2, Events: []playlog.Event{
		{Code: 2, Flags: playlog.EventFlagIgnorable},
		{Code: 3},
	}}))

	require.NoError(t, st.PutStartPoint(ctx, "42", amflow.StartPoint{Frame: 0, Timestamp: 100, Data: json.RawMessage(`{"seed":1}`)}))
	require.NoError(t, st.PutStartPoint(ctx, "42", amflow.StartPoint{Frame: 5, Timestamp: 200}))

	for user, score := range map[string]float64{"alice": 10, "bob": 20} {
		key := playlog.StorageKey{Region: playlog.StorageRegionScores, RegionKey: "high", UserID: user}
		applied, err := st.PutStorageData(ctx, "42", key, playlog.StorageValue{Data: score}, amflow.PutStorageDataOptions{})
		require.NoError(t, err)
		require.True(t, applied)
	}
	return path
}
