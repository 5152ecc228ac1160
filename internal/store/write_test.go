package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

func TestAppendTick_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tick := createTestTick(3, 32, 33)
	if err := s.AppendTick(ctx, "play-1", tick); err != nil {
		t.Fatalf("AppendTick() failed: %v", err)
	}

	var frame int64
	var eventCount int
	err := s.db.QueryRow(`
		SELECT frame, event_count FROM ticks WHERE play_id = ?
	`, "play-1").Scan(&frame, &eventCount)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if frame != 3 {
		t.Errorf("frame = %d, want 3", frame)
	}
	if eventCount != 2 {
		t.Errorf("event_count = %d, want 2", eventCount)
	}
}

func TestAppendTick_DuplicateFrameIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustAppend(t, s, "play-1", createTestTick(1, 10))
	if err := s.AppendTick(ctx, "play-1", createTestTick(1, 99)); err != nil {
		t.Fatalf("duplicate AppendTick() should not error: %v", err)
	}

	ticks, err := s.TickRange(ctx, "play-1", 0, 10)
	if err != nil {
		t.Fatalf("TickRange() failed: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("got %d ticks, want 1", len(ticks))
	}
	if ticks[0].Events[0].Code != 10 {
		t.Errorf("first write must win, got code %d", ticks[0].Events[0].Code)
	}
}

func TestAppendTick_SameFrameDifferentPlays(t *testing.T) {
	s := createTestStore(t)

	mustAppend(t, s, "play-1", createTestTick(0, 1))
	mustAppend(t, s, "play-2", createTestTick(0, 2))

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM ticks").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestPutStartPoint_AppendsDuplicates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := s.PutStartPoint(ctx, "play-1", amflow.StartPoint{Frame: 0, Timestamp: int64(i)})
		if err != nil {
			t.Fatalf("PutStartPoint() failed: %v", err)
		}
	}

	points, err := s.StartPoints(ctx, "play-1")
	if err != nil {
		t.Fatalf("StartPoints() failed: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("got %d start points, want 2", len(points))
	}
}

func TestPutStartPoint_InvalidData(t *testing.T) {
	s := createTestStore(t)

	err := s.PutStartPoint(context.Background(), "play-1", amflow.StartPoint{Data: []byte("{not json")})
	if err == nil {
		t.Error("expected error for invalid JSON data")
	}
}

func TestPutStorageData_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	key := playlog.StorageKey{Region: playlog.StorageRegionScores, RegionKey: "high", UserID: "u1"}

	for _, v := range []int{10, 20} {
		applied, err := s.PutStorageData(ctx, "play-1", key, playlog.StorageValue{Data: v}, amflow.PutStorageDataOptions{})
		if err != nil {
			t.Fatalf("PutStorageData() failed: %v", err)
		}
		if !applied {
			t.Errorf("unconditional write of %d not applied", v)
		}
	}

	data, err := s.GetStorageData(ctx, "play-1", []playlog.StorageReadKey{{StorageKey: key}})
	if err != nil {
		t.Fatalf("GetStorageData() failed: %v", err)
	}
	if len(data[0].Values) != 1 || data[0].Values[0].Data != 20.0 {
		t.Errorf("values = %v, want [20]", data[0].Values)
	}
}

func TestPutStorageData_Conditional(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	key := playlog.StorageKey{Region: playlog.StorageRegionScores, RegionKey: "high"}
	cmp := &playlog.StorageValue{Data: 50}

	greater := amflow.PutStorageDataOptions{Condition: amflow.StorageConditionGreaterThan, ComparisonValue: cmp}

	// A conditional write never lands on an empty slot
	applied, err := s.PutStorageData(ctx, "play-1", key, playlog.StorageValue{Data: 1}, greater)
	if err != nil {
		t.Fatalf("PutStorageData() failed: %v", err)
	}
	if applied {
		t.Error("conditional write on empty slot must not apply")
	}

	if _, err := s.PutStorageData(ctx, "play-1", key, playlog.StorageValue{Data: 40}, amflow.PutStorageDataOptions{}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// stored 40 > 50 is false
	applied, _ = s.PutStorageData(ctx, "play-1", key, playlog.StorageValue{Data: 2}, greater)
	if applied {
		t.Error("write applied although stored value is not greater")
	}

	less := amflow.PutStorageDataOptions{Condition: amflow.StorageConditionLessThan, ComparisonValue: cmp}
	applied, err = s.PutStorageData(ctx, "play-1", key, playlog.StorageValue{Data: 3}, less)
	if err != nil {
		t.Fatalf("PutStorageData() failed: %v", err)
	}
	if !applied {
		t.Error("write not applied although stored value is less")
	}
}

func TestPutStorageData_InvalidOptions(t *testing.T) {
	s := createTestStore(t)
	key := playlog.StorageKey{Region: playlog.StorageRegionValues, RegionKey: "k"}

	_, err := s.PutStorageData(context.Background(), "play-1", key, playlog.StorageValue{Data: 1},
		amflow.PutStorageDataOptions{Condition: amflow.StorageConditionEqual})
	if !errors.Is(err, amflow.ErrInvalidArgument) {
		t.Errorf("err = %v, want InvalidArgument", err)
	}
}

func TestPutStorageData_UnsupportedValue(t *testing.T) {
	s := createTestStore(t)
	key := playlog.StorageKey{Region: playlog.StorageRegionValues, RegionKey: "k"}

	_, err := s.PutStorageData(context.Background(), "play-1", key, playlog.StorageValue{Data: []int{1}}, amflow.PutStorageDataOptions{})
	if err == nil {
		t.Error("expected error for unsupported data type")
	}
}
