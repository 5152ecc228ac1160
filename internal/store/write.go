package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

// AppendTick inserts a tick for playID.
// Uses ON CONFLICT(play_id, frame) DO NOTHING: a tick is immutable once sent,
// so a second write of the same frame is silently ignored.
func (s *Store) AppendTick(ctx context.Context, playID string, tick playlog.Tick) error {
	events, err := playlog.EncodeEvents(tick.Events)
	if err != nil {
		return fmt.Errorf("append tick: %w", err)
	}

	storageData, err := marshalStorageData(tick.StorageData)
	if err != nil {
		return fmt.Errorf("append tick: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ticks
		(play_id, frame, events, event_count, storage_data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(play_id, frame) DO NOTHING
	`,
		playID,
		tick.Frame,
		events,
		len(tick.Events),
		storageData,
	)
	if err != nil {
		return fmt.Errorf("append tick: %w", err)
	}

	return nil
}

// PutStartPoint appends a start point for playID. Start points are never
// replaced; several may share a frame.
func (s *Store) PutStartPoint(ctx context.Context, playID string, sp amflow.StartPoint) error {
	data, err := marshalStartPointData(sp.Data)
	if err != nil {
		return fmt.Errorf("put start point: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO start_points
		(play_id, frame, timestamp, data)
		VALUES (?, ?, ?, ?)
	`,
		playID,
		sp.Frame,
		sp.Timestamp,
		data,
	)
	if err != nil {
		return fmt.Errorf("put start point: %w", err)
	}

	return nil
}

// PutStorageData writes value under key if opts allows it.
// Returns whether the write was applied; an unmet condition is not an error.
//
// The read of the current value and the write share one transaction so a
// concurrent writer cannot slip between the check and the upsert.
func (s *Store) PutStorageData(ctx context.Context, playID string, key playlog.StorageKey, value playlog.StorageValue, opts amflow.PutStorageDataOptions) (applied bool, err error) {
	if err := opts.Validate(); err != nil {
		return false, err
	}
	key = key.Normalize()
	value, err = value.Normalize()
	if err != nil {
		return false, fmt.Errorf("put storage data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("put storage data: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		currentText string
		currentTag  string
		current     *playlog.StorageValue
	)
	err = tx.QueryRowContext(ctx, `
		SELECT data, tag FROM storage_data
		WHERE play_id = ? AND region = ? AND region_key = ? AND game_id = ? AND user_id = ?
	`, playID, int(key.Region), key.RegionKey, key.GameID, key.UserID).Scan(&currentText, &currentTag)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("put storage data: select current: %w", err)
	default:
		data, err := unmarshalValue(currentText)
		if err != nil {
			return false, fmt.Errorf("put storage data: %w", err)
		}
		current = &playlog.StorageValue{Data: data, Tag: currentTag}
	}

	ok, err := opts.Allows(current)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	text, err := marshalValue(value.Data)
	if err != nil {
		return false, fmt.Errorf("put storage data: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO storage_data
		(play_id, region, region_key, game_id, user_id, data, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(play_id, region, region_key, game_id, user_id)
		DO UPDATE SET data = excluded.data, tag = excluded.tag
	`,
		playID,
		int(key.Region),
		key.RegionKey,
		key.GameID,
		key.UserID,
		text,
		value.Tag,
	)
	if err != nil {
		return false, fmt.Errorf("put storage data: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("put storage data: commit: %w", err)
	}

	return true, nil
}
