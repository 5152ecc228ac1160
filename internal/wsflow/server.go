package wsflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/hub"
	"github.com/roach88/amflow/internal/playlog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum size of an inbound frame.
	maxMessageSize = 1 << 20

	// Outbound frames buffered per connection before it is dropped.
	sendQueueLimit = 256
)

// Server upgrades HTTP requests to WebSocket connections, each served by its
// own hub session.
type Server struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	metrics  *Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	conns   map[*conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger. Default: slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithServerMetrics counts connections. Pass the same Metrics to
// hub.WithMetrics to count sessions and operations.
func WithServerMetrics(m *Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a Server for h.
func NewServer(h *hub.Hub, opts ...ServerOption) *Server {
	s := &Server{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{SubprotocolMsgpack, SubprotocolJSON},
			// Allow connections from any Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: slog.Default(),
		conns:  make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns a mux serving WebSocket connections on "/" and, when
// metricsPath is non-empty and metrics are configured, Prometheus metrics
// on metricsPath.
func (s *Server) Handler(metricsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	if metricsPath != "" && s.metrics != nil {
		mux.Handle(metricsPath, s.metrics.Handler())
	}
	return mux
}

// ServeHTTP upgrades the request and starts the connection's loops.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.shuttingDown() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		s.logger.Warn("ws: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	// Registration and wg.Add happen under mu so Shutdown either sees this
	// connection or makes us refuse it.
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
		ws.Close()
		return
	}

	sess := s.hub.NewSession()
	c := &conn{
		server: s,
		ws:     ws,
		sess:   sess,
		binary: ws.Subprotocol() == SubprotocolMsgpack,
		send:   make(chan frame, sendQueueLimit),
		done:   make(chan struct{}),
		logger: s.logger.With("session", sess.ID(), "remote", r.RemoteAddr),
	}
	sess.OnTick(amflow.NewTickHandler(c.pushTick))
	sess.OnEvent(amflow.NewEventHandler(c.pushEvent))

	s.conns[c] = struct{}{}
	s.wg.Add(2)
	s.metrics.connectionOpened()
	s.mu.Unlock()

	c.logger.Info("ws: connection started", "subprotocol", ws.Subprotocol())

	go c.writeLoop()
	go c.readLoop()
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Wait blocks until every connection's loops have exited.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Shutdown stops every live connection and waits for their loops to exit
// or ctx to end. Each connection's session is closed on the way out. New
// connections are refused from then on.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for c := range s.conns {
		c.stop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// conn is one WebSocket connection bound to one hub session.
type conn struct {
	server *Server
	ws     *websocket.Conn
	sess   *hub.Session
	logger *slog.Logger

	// binary sends pushes as MessagePack frames.
	binary bool

	send     chan frame
	done     chan struct{}
	stopOnce sync.Once
}

// frame is one outbound WebSocket message.
type frame struct {
	mt   int
	data []byte
}

// stop ends both loops. Safe to call more than once.
func (c *conn) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

func (c *conn) readLoop() {
	defer func() {
		c.stop()
		c.ws.Close()
		c.sess.Close(nil)
		c.server.mu.Lock()
		delete(c.server.conns, c)
		c.server.mu.Unlock()
		c.server.metrics.connectionClosed()
		c.logger.Info("ws: connection closed")
		c.server.wg.Done()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Warn("ws: readLoop", "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.logger.Warn("ws: malformed request", "error", err)
			continue
		}
		c.dispatch(req)
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Break readLoop
		c.ws.Close()
		c.server.wg.Done()
	}()

	for {
		select {
		case f := <-c.send:
			if err := wsWrite(c.ws, f.mt, f.data); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
					websocket.CloseNormalClosure) {
					c.logger.Warn("ws: writeLoop", "error", err)
				}
				return
			}

		case <-ticker.C:
			if err := wsWrite(c.ws, websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// wsWrite writes a message with the given message type and payload.
func wsWrite(ws *websocket.Conn, mt int, msg []byte) error {
	if msg == nil {
		msg = []byte{}
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(mt, msg)
}

// enqueue queues a JSON frame for the write loop.
func (c *conn) enqueue(msg ServerMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("ws: encode frame", "error", err)
		return
	}
	c.queue(frame{mt: websocket.TextMessage, data: raw})
}

// queue hands f to the write loop. A full queue means the peer is not
// reading; the connection is dropped.
func (c *conn) queue(f frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		c.logger.Warn("ws: outbound queue limit exceeded")
		c.server.metrics.connectionDropped()
		c.stop()
	}
}

func (c *conn) push(p Push) {
	if !c.binary {
		c.enqueue(ServerMessage{Push: &p})
		return
	}
	raw, err := encodeBinaryPush(p)
	if err != nil {
		c.logger.Error("ws: encode binary push", "kind", p.Kind, "error", err)
		return
	}
	c.queue(frame{mt: websocket.BinaryMessage, data: raw})
}

func (c *conn) pushTick(tick playlog.Tick) {
	c.push(Push{Kind: PushTick, Tick: &tick})
}

func (c *conn) pushEvent(event playlog.Event) {
	c.push(Push{Kind: PushEvent, Event: &event})
}

// reply answers req. Requests with ID 0 get no response.
func (c *conn) reply(req Request, result any, err error) {
	if req.ID == 0 {
		if err != nil {
			c.logger.Warn("ws: request failed", "method", req.Method, "error", err)
		}
		return
	}

	res := &Response{ID: req.ID, Error: toWireError(err)}
	if err == nil && result != nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			res.Error = toWireError(fmt.Errorf("encode result: %w", merr))
		} else {
			res.Result = raw
		}
	}
	c.enqueue(ServerMessage{Res: res})
}

// dispatch runs req against the session. Hub callbacks run synchronously,
// so each reply is queued before dispatch returns and responses keep
// request order.
func (c *conn) dispatch(req Request) {
	op, ok := amflow.ParseOperation(req.Method)
	if !ok || op == amflow.OpNone {
		c.reply(req, nil, amflow.NewError(amflow.KindNotImplemented, amflow.OpNone, "unknown method %q", req.Method))
		return
	}

	badParams := func(err error) {
		c.reply(req, nil, amflow.NewError(amflow.KindInvalidArgument, op, "params: %v", err))
	}

	switch op {
	case amflow.OpOpen:
		var p openParams
		if err := decodeParams(req.Params, &p); err != nil {
			badParams(err)
			return
		}
		c.sess.Open(p.PlayID, func(err error) { c.reply(req, nil, err) })

	case amflow.OpClose:
		c.sess.Close(func(err error) { c.reply(req, nil, err) })

	case amflow.OpAuthenticate:
		var p authenticateParams
		if err := decodeParams(req.Params, &p); err != nil {
			badParams(err)
			return
		}
		c.sess.Authenticate(p.Token, func(perm *amflow.Permission, err error) { c.reply(req, perm, err) })

	case amflow.OpSendTick:
		var p sendTickParams
		if err := decodeParams(req.Params, &p); err != nil {
			badParams(err)
			return
		}
		c.reply(req, nil, c.sess.SendTick(p.Tick))

	case amflow.OpSendEvent:
		var p sendEventParams
		if err := decodeParams(req.Params, &p); err != nil {
			badParams(err)
			return
		}
		c.reply(req, nil, c.sess.SendEvent(p.Event))

	case amflow.OpGetTickList:
		var opts amflow.GetTickListOptions
		if err := decodeParams(req.Params, &opts); err != nil {
			badParams(err)
			return
		}
		c.sess.GetTickList(amflow.OptionsTickListQuery(opts), func(tl *playlog.TickList, err error) { c.reply(req, tl, err) })

	case amflow.OpPutStartPoint:
		var p putStartPointParams
		if err := decodeParams(req.Params, &p); err != nil {
			badParams(err)
			return
		}
		c.sess.PutStartPoint(p.StartPoint, func(err error) { c.reply(req, nil, err) })

	case amflow.OpGetStartPoint:
		var opts amflow.GetStartPointOptions
		if err := decodeParams(req.Params, &opts); err != nil {
			badParams(err)
			return
		}
		c.sess.GetStartPoint(opts, func(sp *amflow.StartPoint, err error) { c.reply(req, sp, err) })

	case amflow.OpPutStorageData:
		var p putStorageDataParams
		if err := decodeParams(req.Params, &p); err != nil {
			badParams(err)
			return
		}
		c.sess.PutStorageData(p.Key, p.Value, p.Options, func(err error) { c.reply(req, nil, err) })

	case amflow.OpGetStorageData:
		var p getStorageDataParams
		if err := decodeParams(req.Params, &p); err != nil {
			badParams(err)
			return
		}
		c.sess.GetStorageData(p.Keys, func(data []playlog.StorageData, err error) { c.reply(req, data, err) })

	default:
		// subscribeTick and subscribeEvent are not requests: every
		// connection is subscribed and the hub filters by permission.
		c.reply(req, nil, amflow.NewError(amflow.KindNotImplemented, op, "%s is not a request", op))
	}
}

// decodeParams unmarshals params into v. Absent params leave v zero.
func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, v)
}
