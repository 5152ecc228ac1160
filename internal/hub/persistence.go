package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

// Persistence is the durable state of every play. store.Store implements it
// over SQLite; MemoryPersistence keeps everything in process.
//
// Implementations receive ticks already stripped of transient events and
// storage values already normalized.
type Persistence interface {
	// AppendTick stores a tick. A second tick for the same frame is ignored.
	AppendTick(ctx context.Context, playID string, tick playlog.Tick) error

	// TickRange returns stored ticks with begin <= frame < end, by frame.
	TickRange(ctx context.Context, playID string, begin, end int64) ([]playlog.Tick, error)

	// LastFrame returns the highest stored frame; ok is false for a play
	// with no ticks.
	LastFrame(ctx context.Context, playID string) (frame int64, ok bool, err error)

	PutStartPoint(ctx context.Context, playID string, sp amflow.StartPoint) error

	// FindStartPoint selects a start point as amflow.SelectStartPoint does.
	FindStartPoint(ctx context.Context, playID string, opts amflow.GetStartPointOptions) (amflow.StartPoint, error)

	// PutStorageData writes value if opts allows it and reports whether it
	// did.
	PutStorageData(ctx context.Context, playID string, key playlog.StorageKey, value playlog.StorageValue, opts amflow.PutStorageDataOptions) (bool, error)

	// GetStorageData returns one entry per key, in key order.
	GetStorageData(ctx context.Context, playID string, keys []playlog.StorageReadKey) ([]playlog.StorageData, error)
}

// MemoryPersistence is an in-process Persistence.
//
// Thread-safety: safe for concurrent use.
type MemoryPersistence struct {
	mu          sync.RWMutex
	ticks       map[string]map[int64]playlog.Tick
	startPoints map[string][]amflow.StartPoint
	storage     map[string]map[playlog.StorageKey]playlog.StorageValue
}

// NewMemoryPersistence creates an empty MemoryPersistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		ticks:       make(map[string]map[int64]playlog.Tick),
		startPoints: make(map[string][]amflow.StartPoint),
		storage:     make(map[string]map[playlog.StorageKey]playlog.StorageValue),
	}
}

func (m *MemoryPersistence) AppendTick(_ context.Context, playID string, tick playlog.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames, ok := m.ticks[playID]
	if !ok {
		frames = make(map[int64]playlog.Tick)
		m.ticks[playID] = frames
	}
	if _, exists := frames[tick.Frame]; exists {
		return nil
	}
	frames[tick.Frame] = tick
	return nil
}

func (m *MemoryPersistence) TickRange(_ context.Context, playID string, begin, end int64) ([]playlog.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ticks := []playlog.Tick{}
	for frame, tick := range m.ticks[playID] {
		if frame >= begin && frame < end {
			ticks = append(ticks, tick)
		}
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Frame < ticks[j].Frame })
	return ticks, nil
}

func (m *MemoryPersistence) LastFrame(_ context.Context, playID string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		last  int64
		found bool
	)
	for frame := range m.ticks[playID] {
		if !found || frame > last {
			last, found = frame, true
		}
	}
	return last, found, nil
}

func (m *MemoryPersistence) PutStartPoint(_ context.Context, playID string, sp amflow.StartPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startPoints[playID] = append(m.startPoints[playID], sp)
	return nil
}

// StartPoints returns the start points of playID in insertion order.
func (m *MemoryPersistence) StartPoints(playID string) []amflow.StartPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]amflow.StartPoint(nil), m.startPoints[playID]...)
}

func (m *MemoryPersistence) FindStartPoint(_ context.Context, playID string, opts amflow.GetStartPointOptions) (amflow.StartPoint, error) {
	return amflow.SelectStartPoint(m.StartPoints(playID), opts)
}

func (m *MemoryPersistence) PutStorageData(_ context.Context, playID string, key playlog.StorageKey, value playlog.StorageValue, opts amflow.PutStorageDataOptions) (bool, error) {
	if err := opts.Validate(); err != nil {
		return false, err
	}
	value, err := value.Normalize()
	if err != nil {
		return false, amflow.NewError(amflow.KindInvalidArgument, amflow.OpPutStorageData, "%v", err)
	}
	key = key.Normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	values, ok := m.storage[playID]
	if !ok {
		values = make(map[playlog.StorageKey]playlog.StorageValue)
		m.storage[playID] = values
	}

	var current *playlog.StorageValue
	if v, ok := values[key]; ok {
		current = &v
	}
	allowed, err := opts.Allows(current)
	if err != nil || !allowed {
		return false, err
	}

	values[key] = value
	return true, nil
}

func (m *MemoryPersistence) GetStorageData(_ context.Context, playID string, keys []playlog.StorageReadKey) ([]playlog.StorageData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]playlog.StorageData, 0, len(keys))
	for _, rk := range keys {
		rk.StorageKey = rk.StorageKey.Normalize()

		var matched []playlog.StorageKey
		for k := range m.storage[playID] {
			if rk.Matches(k) {
				matched = append(matched, k)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].UserID < matched[j].UserID })

		values := make([]playlog.StorageValue, 0, len(matched))
		for _, k := range matched {
			values = append(values, m.storage[playID][k])
		}
		result = append(result, playlog.StorageData{ReadKey: rk, Values: values})
	}
	return result, nil
}

var _ Persistence = (*MemoryPersistence)(nil)
