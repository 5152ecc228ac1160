package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

// TickRange returns the stored ticks of playID with begin <= frame < end,
// ordered by frame ASC. Ticks without events are included.
//
// Returns an empty slice (not nil) if no ticks fall in the range.
func (s *Store) TickRange(ctx context.Context, playID string, begin, end int64) ([]playlog.Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, events, storage_data
		FROM ticks
		WHERE play_id = ? AND frame >= ? AND frame < ?
		ORDER BY frame ASC
	`, playID, begin, end)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []playlog.Tick{}
	for rows.Next() {
		tick, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}

	return ticks, nil
}

func scanTick(rows *sql.Rows) (playlog.Tick, error) {
	var (
		tick        playlog.Tick
		events      []byte
		storageData []byte
	)
	if err := rows.Scan(&tick.Frame, &events, &storageData); err != nil {
		return playlog.Tick{}, fmt.Errorf("scan tick: %w", err)
	}

	var err error
	tick.Events, err = playlog.DecodeEvents(events)
	if err != nil {
		return playlog.Tick{}, fmt.Errorf("tick %d: %w", tick.Frame, err)
	}
	tick.StorageData, err = unmarshalStorageData(storageData)
	if err != nil {
		return playlog.Tick{}, fmt.Errorf("tick %d: %w", tick.Frame, err)
	}
	return tick, nil
}

// LastFrame returns the highest stored frame of playID. ok is false when the
// play has no ticks.
func (s *Store) LastFrame(ctx context.Context, playID string) (frame int64, ok bool, err error) {
	var last sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT MAX(frame) FROM ticks WHERE play_id = ?
	`, playID).Scan(&last)
	if err != nil {
		return 0, false, fmt.Errorf("last frame: %w", err)
	}
	return last.Int64, last.Valid, nil
}

// StartPoints returns every start point of playID in insertion order.
func (s *Store) StartPoints(ctx context.Context, playID string) ([]amflow.StartPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, timestamp, data
		FROM start_points
		WHERE play_id = ?
		ORDER BY id ASC
	`, playID)
	if err != nil {
		return nil, fmt.Errorf("query start points: %w", err)
	}
	defer rows.Close()

	points := []amflow.StartPoint{}
	for rows.Next() {
		var (
			sp   amflow.StartPoint
			data string
		)
		if err := rows.Scan(&sp.Frame, &sp.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("scan start point: %w", err)
		}
		sp.Data = unmarshalStartPointData(data)
		points = append(points, sp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate start points: %w", err)
	}

	return points, nil
}

// FindStartPoint selects one start point of playID the same way
// amflow.SelectStartPoint does, but in SQL.
func (s *Store) FindStartPoint(ctx context.Context, playID string, opts amflow.GetStartPointOptions) (amflow.StartPoint, error) {
	if err := opts.Validate(); err != nil {
		return amflow.StartPoint{}, err
	}

	var (
		query string
		args  []any
	)
	switch {
	case opts.Frame != nil:
		query = `
			SELECT frame, timestamp, data FROM start_points
			WHERE play_id = ? AND frame < ?
			ORDER BY frame DESC, id DESC LIMIT 1`
		args = []any{playID, *opts.Frame}
	case opts.Timestamp != nil:
		query = `
			SELECT frame, timestamp, data FROM start_points
			WHERE play_id = ? AND timestamp < ?
			ORDER BY timestamp DESC, id DESC LIMIT 1`
		args = []any{playID, *opts.Timestamp}
	default:
		query = `
			SELECT frame, timestamp, data FROM start_points
			WHERE play_id = ? AND frame = 0
			ORDER BY id DESC LIMIT 1`
		args = []any{playID}
	}

	var (
		sp   amflow.StartPoint
		data string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&sp.Frame, &sp.Timestamp, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return amflow.StartPoint{}, amflow.NewError(amflow.KindNotFound, amflow.OpGetStartPoint, "no start point matches %s", opts)
	}
	if err != nil {
		return amflow.StartPoint{}, fmt.Errorf("find start point: %w", err)
	}
	sp.Data = unmarshalStartPointData(data)
	return sp, nil
}

// GetStorageData reads the values selected by each key. The result has one
// entry per key in key order; a key with no stored values yields an entry
// with empty Values. An empty UserID selects every user's value, ordered by
// user_id.
func (s *Store) GetStorageData(ctx context.Context, playID string, keys []playlog.StorageReadKey) ([]playlog.StorageData, error) {
	result := make([]playlog.StorageData, 0, len(keys))
	for _, rk := range keys {
		rk.StorageKey = rk.StorageKey.Normalize()
		values, err := s.readStorageValues(ctx, playID, rk)
		if err != nil {
			return nil, err
		}
		result = append(result, playlog.StorageData{ReadKey: rk, Values: values})
	}
	return result, nil
}

func (s *Store) readStorageValues(ctx context.Context, playID string, rk playlog.StorageReadKey) ([]playlog.StorageValue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data, tag FROM storage_data
		WHERE play_id = ? AND region = ? AND region_key = ? AND game_id = ?
		  AND (? = '' OR user_id = ?)
		ORDER BY user_id COLLATE BINARY ASC
	`, playID, int(rk.Region), rk.RegionKey, rk.GameID, rk.UserID, rk.UserID)
	if err != nil {
		return nil, fmt.Errorf("query storage data %s: %w", rk.StorageKey, err)
	}
	defer rows.Close()

	values := []playlog.StorageValue{}
	for rows.Next() {
		var text, tag string
		if err := rows.Scan(&text, &tag); err != nil {
			return nil, fmt.Errorf("scan storage data: %w", err)
		}
		data, err := unmarshalValue(text)
		if err != nil {
			return nil, fmt.Errorf("storage data %s: %w", rk.StorageKey, err)
		}
		values = append(values, playlog.StorageValue{Data: data, Tag: tag})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate storage data: %w", err)
	}

	return values, nil
}
