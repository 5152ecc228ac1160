package playlog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_TickRoundTrip(t *testing.T) {
	tick := Tick{
		Frame: 42,
		Events: []Event{
			{Code: 32, Priority: 2, PlayerID: "alice", Payload: json.RawMessage(`{"move":[1,2]}`)},
			{Code: 33, Priority: 0, Flags: EventFlagIgnorable},
		},
	}

	raw, err := EncodeTick(tick)
	require.NoError(t, err)

	decoded, err := DecodeTick(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), decoded.Frame)
	require.Len(t, decoded.Events, 2)
	assert.Equal(t, "alice", decoded.Events[0].PlayerID)
	assert.JSONEq(t, `{"move":[1,2]}`, string(decoded.Events[0].Payload))
	assert.True(t, decoded.Events[1].Ignorable())
}

func TestCodec_EventsEmpty(t *testing.T) {
	raw, err := EncodeEvents(nil)
	require.NoError(t, err)

	events, err := DecodeEvents(raw)
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestCodec_EventRoundTrip(t *testing.T) {
	ev := Event{Code: 1, Priority: 3, Flags: EventFlagTransient, PlayerID: "bob"}

	raw, err := EncodeEvent(ev)
	require.NoError(t, err)

	decoded, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, ev.Code, decoded.Code)
	assert.Equal(t, ev.Priority, decoded.Priority)
	assert.True(t, decoded.Transient())
	assert.Equal(t, "bob", decoded.PlayerID)
}

func TestCodec_DecodeGarbage(t *testing.T) {
	_, err := DecodeTick([]byte{0xc1})
	assert.Error(t, err)

	_, err = DecodeEvents([]byte("not msgpack"))
	assert.Error(t, err)
}
