package wsflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

// rawConn speaks the frame protocol directly.
func rawConn(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, ts.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, raw string) ServerMessage {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)))
	return readFrame(t, ws)
}

func readFrame(t *testing.T, ws *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestServer_RawFrames(t *testing.T) {
	ts := newTestServer(t)
	ws := rawConn(t, ts)

	msg := roundTrip(t, ws, `{"id":1,"method":"open","params":{"play_id":"42"}}`)
	require.NotNil(t, msg.Res)
	assert.Equal(t, uint64(1), msg.Res.ID)
	assert.Nil(t, msg.Res.Error)

	msg = roundTrip(t, ws, `{"id":2,"method":"authenticate","params":{"token":"all"}}`)
	require.NotNil(t, msg.Res)
	assert.JSONEq(t, `{"write_tick":true,"read_tick":true,"subscribe_tick":true,"send_event":true,"subscribe_event":true,"max_event_priority":3}`,
		string(msg.Res.Result))

	// A fire-and-forget tick comes back as a push to the sender itself.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"method":"sendTick","params":{"tick":{"frame":0}}}`)))
	msg = readFrame(t, ws)
	require.NotNil(t, msg.Push)
	assert.Equal(t, PushTick, msg.Push.Kind)
	assert.Equal(t, int64(0), msg.Push.Tick.Frame)

	msg = roundTrip(t, ws, `{"id":3,"method":"getTickList","params":{"begin":0,"end":5}}`)
	require.NotNil(t, msg.Res)
	assert.JSONEq(t, `[0,5,[{"frame":0}]]`, string(msg.Res.Result))
}

func TestServer_UnknownMethod(t *testing.T) {
	ts := newTestServer(t)
	ws := rawConn(t, ts)

	msg := roundTrip(t, ws, `{"id":7,"method":"teleport"}`)
	require.NotNil(t, msg.Res)
	require.NotNil(t, msg.Res.Error)
	assert.Equal(t, amflow.KindNotImplemented, msg.Res.Error.Kind)
	assert.ErrorIs(t, msg.Res.Error.Err(), amflow.ErrNotImplemented)

	msg = roundTrip(t, ws, `{"id":8,"method":"subscribeTick"}`)
	require.NotNil(t, msg.Res.Error)
	assert.Equal(t, amflow.KindNotImplemented, msg.Res.Error.Kind)
}

func TestServer_BadParams(t *testing.T) {
	ts := newTestServer(t)
	ws := rawConn(t, ts)

	msg := roundTrip(t, ws, `{"id":1,"method":"open","params":{"play_id":5}}`)
	require.NotNil(t, msg.Res.Error)
	assert.Equal(t, amflow.KindInvalidArgument, msg.Res.Error.Kind)
	assert.Equal(t, "open", msg.Res.Error.Op)
}

func TestServer_MalformedFrameIsSkipped(t *testing.T) {
	ts := newTestServer(t)
	ws := rawConn(t, ts)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	msg := roundTrip(t, ws, `{"id":1,"method":"close"}`)
	require.NotNil(t, msg.Res)
	assert.Nil(t, msg.Res.Error, "closing a closed session succeeds")
}

func TestServer_RejectsPlainHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.http.URL+"/", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWireError_RoundTrip(t *testing.T) {
	assert.Nil(t, toWireError(nil))
	assert.NoError(t, (*WireError)(nil).Err())

	orig := amflow.NewError(amflow.KindRangeError, amflow.OpGetTickList, "empty range")
	back := toWireError(orig).Err()
	assert.Equal(t, orig, back)

	plain := toWireError(io.EOF)
	assert.Empty(t, plain.Kind)
	assert.Equal(t, "EOF", plain.Err().Error())
}

func TestMetrics_Scrape(t *testing.T) {
	ts := newTestServer(t)
	_, p := ts.connect(t, "1", "all")

	require.NoError(t, p.SendTick(playlog.Tick{Frame: 0}))
	_, err := await(t, p.GetStartPoint(amflow.BeforeFrame(0)))
	require.ErrorIs(t, err, amflow.ErrNotFound)

	resp, err := http.Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "amflow_connections_live_count 1")
	assert.Contains(t, text, "amflow_sessions_total 1")
	assert.Contains(t, text, "amflow_ticks_total 1")
	assert.Contains(t, text, `amflow_requests_total{method="getStartPoint",outcome="NotFound"} 1`)
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	ts := newTestServer(t)
	c, _ := ts.connect(t, "4", "all")
	require.Eventually(t, func() bool { return ts.hub.SessionCount("4") == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.server.Shutdown(ctx))

	assert.Equal(t, 0, ts.hub.SessionCount("4"))
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client did not observe the shutdown")
	}
}

func TestServer_ShutdownWithoutConnections(t *testing.T) {
	ts := newTestServer(t)
	assert.NoError(t, ts.server.Shutdown(context.Background()))
}

func TestServer_ShutdownRefusesNewConnections(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.server.Shutdown(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.DefaultDialer.DialContext(ctx, ts.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, ts.hub.Plays())
}

func TestServer_BinaryPushes(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dialer := *websocket.DefaultDialer
	dialer.Subprotocols = []string{SubprotocolMsgpack}
	ws, _, err := dialer.DialContext(ctx, ts.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	assert.Equal(t, SubprotocolMsgpack, ws.Subprotocol())

	// Responses stay JSON text.
	msg := roundTrip(t, ws, `{"id":1,"method":"open","params":{"play_id":"9"}}`)
	require.NotNil(t, msg.Res)
	msg = roundTrip(t, ws, `{"id":2,"method":"authenticate","params":{"token":"all"}}`)
	require.NotNil(t, msg.Res)
	require.Nil(t, msg.Res.Error)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"method":"sendTick","params":{"tick":{"frame":3,"events":[{"code":5,"priority":1,"payload":{"k":"v"}}]}}}`)))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)
	require.Equal(t, binaryPushTick, data[0])

	tick, err := playlog.DecodeTick(data[1:])
	require.NoError(t, err)
	assert.Equal(t, int64(3), tick.Frame)
	require.Len(t, tick.Events, 1)
	assert.JSONEq(t, `{"k":"v"}`, string(tick.Events[0].Payload))
}

func TestServer_JSONWithoutSubprotocol(t *testing.T) {
	ts := newTestServer(t)
	ws := rawConn(t, ts)
	assert.Equal(t, "", ws.Subprotocol())
}

func TestBinaryPush_RoundTrip(t *testing.T) {
	tick := playlog.Tick{Frame: 8, Events: []playlog.Event{{Code: 2, PlayerID: "p", Payload: json.RawMessage(`[1,2]`)}}}
	raw, err := encodeBinaryPush(Push{Kind: PushTick, Tick: &tick})
	require.NoError(t, err)
	p, err := decodeBinaryPush(raw)
	require.NoError(t, err)
	require.NotNil(t, p.Tick)
	assert.Equal(t, PushTick, p.Kind)
	assert.Equal(t, int64(8), p.Tick.Frame)
	assert.JSONEq(t, `[1,2]`, string(p.Tick.Events[0].Payload))

	event := playlog.Event{Code: 7, Priority: 2, Flags: playlog.EventFlagTransient}
	raw, err = encodeBinaryPush(Push{Kind: PushEvent, Event: &event})
	require.NoError(t, err)
	p, err = decodeBinaryPush(raw)
	require.NoError(t, err)
	require.NotNil(t, p.Event)
	assert.Equal(t, PushEvent, p.Kind)
	assert.Equal(t, playlog.EventCode(7), p.Event.Code)
	assert.True(t, p.Event.Transient())
}

func TestBinaryPush_Malformed(t *testing.T) {
	_, err := encodeBinaryPush(Push{Kind: PushTick})
	assert.Error(t, err)

	_, err = decodeBinaryPush(nil)
	assert.Error(t, err)

	_, err = decodeBinaryPush([]byte{9, 0x80})
	assert.ErrorContains(t, err, "unknown binary push kind 9")

	_, err = decodeBinaryPush([]byte{binaryPushTick, 0xc1})
	assert.Error(t, err)
}
