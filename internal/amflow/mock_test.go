package amflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/amflow/internal/playlog"
)

// activePermission is what mockAMFlow grants for any numeric token.
var activePermission = Permission{
	WriteTick:        true,
	ReadTick:         false,
	SubscribeTick:    false,
	SendEvent:        false,
	SubscribeEvent:   true,
	MaxEventPriority: 3,
}

// mockAMFlow is a scripted backend: numeric play IDs and tokens succeed,
// everything else fails with a fixed message per operation.
type mockAMFlow struct {
	logs []string

	tickHandlers  HandlerRegistry[TickHandler]
	eventHandlers HandlerRegistry[EventHandler]

	// lastQuery records the query shape GetTickList received.
	lastQuery TickListQuery
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func (m *mockAMFlow) Open(playID string, cb Callback) {
	if cb == nil {
		return
	}
	if !isNumeric(playID) {
		cb(errors.New("open-error"))
		return
	}
	cb(nil)
}

func (m *mockAMFlow) Close(cb Callback) {
	if cb != nil {
		cb(errors.New("close-error"))
	}
}

func (m *mockAMFlow) Authenticate(token string, cb ResultCallback[*Permission]) {
	if !isNumeric(token) {
		cb(nil, errors.New("authenticate-error"))
		return
	}
	perm := activePermission
	cb(&perm, nil)
}

func (m *mockAMFlow) SendTick(tick playlog.Tick) error {
	data, _ := json.Marshal(tick)
	m.logs = append(m.logs, string(data))
	return nil
}

func (m *mockAMFlow) OnTick(h TickHandler)  { m.tickHandlers.Add(h) }
func (m *mockAMFlow) OffTick(h TickHandler) { m.tickHandlers.Remove(h) }

func (m *mockAMFlow) SendEvent(event playlog.Event) error {
	data, _ := json.Marshal(event)
	m.logs = append(m.logs, string(data))
	return nil
}

func (m *mockAMFlow) OnEvent(h EventHandler)  { m.eventHandlers.Add(h) }
func (m *mockAMFlow) OffEvent(h EventHandler) { m.eventHandlers.Remove(h) }

func (m *mockAMFlow) GetTickList(q TickListQuery, cb ResultCallback[*playlog.TickList]) {
	m.lastQuery = q
	opts, err := q.Normalize()
	if err != nil {
		cb(nil, err)
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%d,%d", opts.Begin, opts.End))
	if opts.Begin >= 10 {
		cb(nil, errors.New("getTickList-error"))
		return
	}
	tl := playlog.NewTickList(opts.Begin, opts.End, nil)
	cb(&tl, nil)
}

func (m *mockAMFlow) PutStartPoint(sp StartPoint, cb Callback) {
	data, _ := json.Marshal(sp)
	m.logs = append(m.logs, string(data))
	if sp.Frame != 0 {
		cb(errors.New("putStartPoint-error"))
		return
	}
	cb(nil)
}

func (m *mockAMFlow) GetStartPoint(opts GetStartPointOptions, cb ResultCallback[*StartPoint]) {
	m.logs = append(m.logs, "getStartPoint")
	if opts.Frame != nil && *opts.Frame == 0 {
		cb(&StartPoint{Frame: 0, Timestamp: 100, Data: json.RawMessage(`{"foo":false}`)}, nil)
		return
	}
	cb(nil, errors.New("getStartPoint-error"))
}

func (m *mockAMFlow) PutStorageData(key playlog.StorageKey, _ playlog.StorageValue, _ PutStorageDataOptions, cb Callback) {
	m.logs = append(m.logs, "putStorageData")
	if key.Region == 0 {
		cb(nil)
		return
	}
	cb(errors.New("putStorageData-error"))
}

func (m *mockAMFlow) GetStorageData(keys []playlog.StorageReadKey, cb ResultCallback[[]playlog.StorageData]) {
	m.logs = append(m.logs, "getStorageData")
	if len(keys) > 0 && keys[0].Region == 0 {
		cb([]playlog.StorageData{{
			ReadKey: playlog.StorageReadKey{StorageKey: playlog.StorageKey{Region: 0, RegionKey: "test"}},
			Values:  []playlog.StorageValue{{Data: 1.0}},
		}}, nil)
		return
	}
	cb(nil, errors.New("getStorageData-error"))
}

var _ AMFlow = (*mockAMFlow)(nil)
