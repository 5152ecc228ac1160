package store

import (
	"context"
	"fmt"
)

// PlayState summarizes what the store holds for one play.
type PlayState struct {
	PlayID      string
	TickCount   int
	EventCount  int
	FirstFrame  int64
	LastFrame   int64
	StartPoints int
	StorageKeys int
}

// GetPlayState retrieves the summary of a play. A play with no rows in any
// table returns a zero PlayState carrying only PlayID.
func (s *Store) GetPlayState(ctx context.Context, playID string) (PlayState, error) {
	state := PlayState{PlayID: playID}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(event_count), 0),
		       COALESCE(MIN(frame), 0), COALESCE(MAX(frame), 0)
		FROM ticks WHERE play_id = ?
	`, playID).Scan(&state.TickCount, &state.EventCount, &state.FirstFrame, &state.LastFrame)
	if err != nil {
		return state, fmt.Errorf("get play state: ticks: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM start_points WHERE play_id = ?
	`, playID).Scan(&state.StartPoints)
	if err != nil {
		return state, fmt.Errorf("get play state: start points: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM storage_data WHERE play_id = ?
	`, playID).Scan(&state.StorageKeys)
	if err != nil {
		return state, fmt.Errorf("get play state: storage data: %w", err)
	}

	return state, nil
}

// ListPlays returns the summary of every play with at least one stored row,
// ordered by play ID.
func (s *Store) ListPlays(ctx context.Context) ([]PlayState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT play_id FROM (
			SELECT play_id FROM ticks
			UNION
			SELECT play_id FROM start_points
			UNION
			SELECT play_id FROM storage_data
		)
		ORDER BY play_id COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list plays: %w", err)
	}

	var playIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan play id: %w", err)
		}
		playIDs = append(playIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate plays: %w", err)
	}
	rows.Close()

	// Summaries are fetched after the cursor is closed: the pool has a
	// single connection.
	states := make([]PlayState, 0, len(playIDs))
	for _, id := range playIDs {
		state, err := s.GetPlayState(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}
