package wsflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

// ErrDisconnected settles requests still pending when the connection ends.
var ErrDisconnected = amflow.NewError(amflow.KindInvalidStatus, amflow.OpNone, "connection closed")

// Client is an AMFlow backend reached over WebSocket.
//
// Handlers registered with OnTick and OnEvent run on the client's read
// goroutine. Callbacks of asynchronous operations run there too.
type Client struct {
	ws           *websocket.Conn
	logger       *slog.Logger
	subprotocols []string

	writeMu sync.Mutex

	mu         sync.Mutex
	nextID     uint64
	pending    map[uint64]func(json.RawMessage, error)
	state      amflow.SessionState
	permission *amflow.Permission
	done       bool

	tickHandlers  amflow.HandlerRegistry[amflow.TickHandler]
	eventHandlers amflow.HandlerRegistry[amflow.EventHandler]

	readDone chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger. Default: slog.Default().
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithBinaryPushes asks the server for MessagePack push frames. A server
// that does not offer them keeps sending JSON, which the client also reads.
func WithBinaryPushes() ClientOption {
	return func(c *Client) {
		c.subprotocols = []string{SubprotocolMsgpack, SubprotocolJSON}
	}
}

// Dial connects to a Server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		logger:   slog.Default(),
		pending:  make(map[uint64]func(json.RawMessage, error)),
		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := *websocket.DefaultDialer
	dialer.Subprotocols = c.subprotocols
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.ws = ws

	go c.readLoop()
	return c, nil
}

// Subprotocol returns the subprotocol the server agreed to, or "".
func (c *Client) Subprotocol() string {
	return c.ws.Subprotocol()
}

// Disconnect closes the connection. Pending requests fail with
// ErrDisconnected. Safe to call more than once.
func (c *Client) Disconnect() error {
	select {
	case <-c.readDone:
		return nil
	default:
	}

	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()

	c.ws.Close()
	<-c.readDone

	if err != nil && err != websocket.ErrCloseSent {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.readDone
}

func (c *Client) readLoop() {
	defer func() {
		c.ws.Close()

		c.mu.Lock()
		pending := c.pending
		c.pending = make(map[uint64]func(json.RawMessage, error))
		c.done = true
		c.state = amflow.StateClosed
		c.permission = nil
		c.mu.Unlock()

		for _, settle := range pending {
			settle(nil, ErrDisconnected)
		}
		close(c.readDone)
	}()

	c.ws.SetPingHandler(func(data string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		mt, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ws client: readLoop", "error", err)
			}
			return
		}

		if mt == websocket.BinaryMessage {
			p, err := decodeBinaryPush(raw)
			if err != nil {
				c.logger.Warn("ws client: malformed binary frame", "error", err)
				continue
			}
			c.push(p)
			continue
		}

		var msg ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("ws client: malformed frame", "error", err)
			continue
		}

		switch {
		case msg.Res != nil:
			c.mu.Lock()
			settle, ok := c.pending[msg.Res.ID]
			delete(c.pending, msg.Res.ID)
			c.mu.Unlock()
			if !ok {
				c.logger.Warn("ws client: response to unknown request", "id", msg.Res.ID)
				continue
			}
			settle(msg.Res.Result, msg.Res.Error.Err())

		case msg.Push != nil:
			c.push(msg.Push)
		}
	}
}

func (c *Client) push(p *Push) {
	switch {
	case p.Kind == PushTick && p.Tick != nil:
		amflow.DispatchTick(&c.tickHandlers, *p.Tick)
	case p.Kind == PushEvent && p.Event != nil:
		amflow.DispatchEvent(&c.eventHandlers, *p.Event)
	default:
		c.logger.Warn("ws client: unknown push", "kind", p.Kind)
	}
}

func (c *Client) write(req Request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Method, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsWrite(c.ws, websocket.TextMessage, raw)
}

// call sends a request and arranges for settle to run with its response.
func (c *Client) call(op amflow.Operation, params any, settle func(json.RawMessage, error)) {
	raw, err := encodeParams(params)
	if err != nil {
		settle(nil, amflow.NewError(amflow.KindInvalidArgument, op, "params: %v", err))
		return
	}

	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		settle(nil, ErrDisconnected)
		return
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = settle
	c.mu.Unlock()

	if err := c.write(Request{ID: id, Method: op.String(), Params: raw}); err != nil {
		c.mu.Lock()
		_, stillPending := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if stillPending {
			settle(nil, fmt.Errorf("%s: %w", op, err))
		}
	}
}

// notify sends a request that gets no response.
func (c *Client) notify(op amflow.Operation, params any) error {
	raw, err := encodeParams(params)
	if err != nil {
		return amflow.NewError(amflow.KindInvalidArgument, op, "params: %v", err)
	}
	if err := c.write(Request{Method: op.String(), Params: raw}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}

// voidResult adapts cb to a response that carries no result.
func voidResult(cb amflow.Callback) func(json.RawMessage, error) {
	return func(_ json.RawMessage, err error) {
		if cb != nil {
			cb(err)
		}
	}
}

// decodeResult adapts cb to a response carrying a T.
func decodeResult[T any](op amflow.Operation, cb amflow.ResultCallback[T]) func(json.RawMessage, error) {
	return func(raw json.RawMessage, err error) {
		var zero T
		if err != nil {
			cb(zero, err)
			return
		}
		var v T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				cb(zero, fmt.Errorf("decode %s result: %w", op, err))
				return
			}
		}
		cb(v, nil)
	}
}

// State returns the session state as last confirmed by the server.
func (c *Client) State() amflow.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ready checks a fire-and-forget operation locally, since the server does
// not answer it.
func (c *Client) ready(op amflow.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return ErrDisconnected
	}
	if c.state != amflow.StateOpen {
		return amflow.NewError(amflow.KindInvalidStatus, op, "session is not open")
	}
	return amflow.Authorize(c.permission, op)
}

func (c *Client) Open(playID string, cb amflow.Callback) {
	c.call(amflow.OpOpen, openParams{PlayID: playID}, func(_ json.RawMessage, err error) {
		if err == nil {
			c.mu.Lock()
			c.state = amflow.StateOpen
			c.mu.Unlock()
		}
		if cb != nil {
			cb(err)
		}
	})
}

func (c *Client) Close(cb amflow.Callback) {
	c.call(amflow.OpClose, nil, func(_ json.RawMessage, err error) {
		if err == nil {
			c.mu.Lock()
			c.state = amflow.StateClosed
			c.permission = nil
			c.mu.Unlock()
		}
		if cb != nil {
			cb(err)
		}
	})
}

func (c *Client) Authenticate(token string, cb amflow.ResultCallback[*amflow.Permission]) {
	c.call(amflow.OpAuthenticate, authenticateParams{Token: token},
		decodeResult(amflow.OpAuthenticate, func(perm *amflow.Permission, err error) {
			if err == nil && perm != nil {
				local := *perm
				c.mu.Lock()
				c.permission = &local
				c.mu.Unlock()
			}
			cb(perm, err)
		}))
}

func (c *Client) SendTick(tick playlog.Tick) error {
	if err := c.ready(amflow.OpSendTick); err != nil {
		return err
	}
	if err := amflow.ValidateTick(tick); err != nil {
		return err
	}
	return c.notify(amflow.OpSendTick, sendTickParams{Tick: tick})
}

func (c *Client) OnTick(h amflow.TickHandler) {
	c.tickHandlers.Add(h)
}

func (c *Client) OffTick(h amflow.TickHandler) {
	c.tickHandlers.Remove(h)
}

func (c *Client) SendEvent(event playlog.Event) error {
	if err := c.ready(amflow.OpSendEvent); err != nil {
		return err
	}
	return c.notify(amflow.OpSendEvent, sendEventParams{Event: event})
}

func (c *Client) OnEvent(h amflow.EventHandler) {
	c.eventHandlers.Add(h)
}

func (c *Client) OffEvent(h amflow.EventHandler) {
	c.eventHandlers.Remove(h)
}

func (c *Client) GetTickList(q amflow.TickListQuery, cb amflow.ResultCallback[*playlog.TickList]) {
	opts, err := q.Normalize()
	if err != nil {
		cb(nil, err)
		return
	}
	c.call(amflow.OpGetTickList, opts, decodeResult(amflow.OpGetTickList, cb))
}

func (c *Client) PutStartPoint(sp amflow.StartPoint, cb amflow.Callback) {
	c.call(amflow.OpPutStartPoint, putStartPointParams{StartPoint: sp}, voidResult(cb))
}

func (c *Client) GetStartPoint(opts amflow.GetStartPointOptions, cb amflow.ResultCallback[*amflow.StartPoint]) {
	c.call(amflow.OpGetStartPoint, opts, decodeResult(amflow.OpGetStartPoint, cb))
}

func (c *Client) PutStorageData(key playlog.StorageKey, value playlog.StorageValue, opts amflow.PutStorageDataOptions, cb amflow.Callback) {
	c.call(amflow.OpPutStorageData, putStorageDataParams{Key: key, Value: value, Options: opts}, voidResult(cb))
}

func (c *Client) GetStorageData(keys []playlog.StorageReadKey, cb amflow.ResultCallback[[]playlog.StorageData]) {
	c.call(amflow.OpGetStorageData, getStorageDataParams{Keys: keys}, decodeResult(amflow.OpGetStorageData, cb))
}

var _ amflow.AMFlow = (*Client)(nil)
