package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

// Session is one client's view of a play. It implements amflow.AMFlow.
//
// Callbacks run synchronously before the method returns. Operations other
// than Open, Close and handler registration fail with InvalidStatus while the
// session is closed.
//
// Thread-safety: all methods are safe for concurrent use.
type Session struct {
	hub    *Hub
	id     string
	logger *slog.Logger

	mu     sync.Mutex
	state  amflow.SessionState
	playID string
	perm   *amflow.Permission

	tickHandlers  amflow.HandlerRegistry[amflow.TickHandler]
	eventHandlers amflow.HandlerRegistry[amflow.EventHandler]
}

var _ amflow.AMFlow = (*Session)(nil)

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// State returns the lifecycle state.
func (s *Session) State() amflow.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PlayID returns the play the session is bound to, or "" when closed.
func (s *Session) PlayID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playID
}

// Permission returns a copy of the granted permission, or nil before a
// successful Authenticate.
func (s *Session) Permission() *amflow.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perm == nil {
		return nil
	}
	p := *s.perm
	return &p
}

// ready checks that the session is open and permitted to run op, returning
// the bound play and permission.
func (s *Session) ready(op amflow.Operation) (string, *amflow.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != amflow.StateOpen {
		return "", nil, amflow.NewError(amflow.KindInvalidStatus, op, "session is closed")
	}
	if err := amflow.Authorize(s.perm, op); err != nil {
		return "", nil, err
	}
	return s.playID, s.perm, nil
}

// receives reports whether the session currently accepts deliveries gated
// by op.
func (s *Session) receives(op amflow.Operation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == amflow.StateOpen && amflow.Authorize(s.perm, op) == nil
}

// finish records the outcome of op.
func (s *Session) finish(op amflow.Operation, err error) {
	s.hub.metrics.Request(op, err)
	if err != nil {
		s.logger.Debug("operation failed", "op", op, "error", err)
	}
}

func (s *Session) Open(playID string, cb amflow.Callback) {
	err := s.open(playID)
	s.finish(amflow.OpOpen, err)
	if cb != nil {
		cb(err)
	}
}

func (s *Session) open(playID string) error {
	if playID == "" {
		return amflow.NewError(amflow.KindInvalidArgument, amflow.OpOpen, "empty play id")
	}

	s.mu.Lock()
	if s.state == amflow.StateOpen {
		s.mu.Unlock()
		return amflow.NewError(amflow.KindInvalidStatus, amflow.OpOpen, "session is already open on play %q", s.playID)
	}
	s.state = amflow.StateOpen
	s.playID = playID
	s.mu.Unlock()

	s.hub.join(playID, s)
	s.logger.Info("session opened", "play", playID)
	return nil
}

// Close ends the session. Closing a closed session succeeds. Registered
// handlers stay registered but receive nothing until the session is opened
// and authenticated again.
func (s *Session) Close(cb amflow.Callback) {
	s.mu.Lock()
	playID := s.playID
	wasOpen := s.state == amflow.StateOpen
	s.state = amflow.StateClosed
	s.playID = ""
	s.perm = nil
	s.mu.Unlock()

	if wasOpen {
		s.hub.leave(playID, s)
		s.logger.Info("session closed", "play", playID)
	}
	s.finish(amflow.OpClose, nil)
	if cb != nil {
		cb(nil)
	}
}

func (s *Session) Authenticate(token string, cb amflow.ResultCallback[*amflow.Permission]) {
	perm, err := s.authenticate(token)
	s.finish(amflow.OpAuthenticate, err)
	cb(perm, err)
}

func (s *Session) authenticate(token string) (*amflow.Permission, error) {
	if _, _, err := s.ready(amflow.OpAuthenticate); err != nil {
		return nil, err
	}

	perm, err := s.hub.auth.Authenticate(token)
	if err != nil {
		if amflow.KindOf(err) == "" {
			err = amflow.NewError(amflow.KindAuthenticationFailure, amflow.OpAuthenticate, "%v", err)
		}
		return nil, err
	}

	s.mu.Lock()
	granted := perm
	s.perm = &granted
	s.mu.Unlock()

	s.logger.Info("session authenticated",
		"write_tick", perm.WriteTick,
		"read_tick", perm.ReadTick,
		"subscribe_tick", perm.SubscribeTick,
		"send_event", perm.SendEvent,
		"subscribe_event", perm.SubscribeEvent,
		"max_event_priority", perm.MaxEventPriority,
	)
	result := perm
	return &result, nil
}

// SendTick persists tick without its transient events, then delivers the
// full tick to every subscribed session of the play.
func (s *Session) SendTick(tick playlog.Tick) error {
	err := s.sendTick(tick)
	s.finish(amflow.OpSendTick, err)
	return err
}

func (s *Session) sendTick(tick playlog.Tick) error {
	playID, _, err := s.ready(amflow.OpSendTick)
	if err != nil {
		return err
	}
	if err := amflow.ValidateTick(tick); err != nil {
		return err
	}

	if err := s.hub.persist.AppendTick(s.hub.ctx, playID, tick.WithoutTransient()); err != nil {
		return fmt.Errorf("send tick %d: %w", tick.Frame, err)
	}

	delivered := 0
	for _, member := range s.hub.members(playID) {
		if !member.receives(amflow.OpSubscribeTick) {
			continue
		}
		delivered++
		amflow.DispatchTick(&member.tickHandlers, tick)
	}

	s.hub.metrics.TickSent(playID, delivered)
	s.logger.Debug("tick sent", "play", playID, "frame", tick.Frame, "events", len(tick.Events), "delivered", delivered)
	return nil
}

func (s *Session) OnTick(h amflow.TickHandler) {
	s.tickHandlers.Add(h)
}

func (s *Session) OffTick(h amflow.TickHandler) {
	s.tickHandlers.Remove(h)
}

// SendEvent clamps the event priority to the sender's MaxEventPriority and
// delivers it to every session of the play allowed to subscribe to events.
func (s *Session) SendEvent(event playlog.Event) error {
	err := s.sendEvent(event)
	s.finish(amflow.OpSendEvent, err)
	return err
}

func (s *Session) sendEvent(event playlog.Event) error {
	playID, perm, err := s.ready(amflow.OpSendEvent)
	if err != nil {
		return err
	}

	event = event.WithPriority(perm.ClampPriority(event.Priority))

	delivered := 0
	for _, member := range s.hub.members(playID) {
		if !member.receives(amflow.OpSubscribeEvent) {
			continue
		}
		delivered++
		amflow.DispatchEvent(&member.eventHandlers, event)
	}

	s.hub.metrics.EventSent(playID, delivered)
	s.logger.Debug("event sent", "play", playID, "code", event.Code, "priority", event.Priority, "delivered", delivered)
	return nil
}

func (s *Session) OnEvent(h amflow.EventHandler) {
	s.eventHandlers.Add(h)
}

func (s *Session) OffEvent(h amflow.EventHandler) {
	s.eventHandlers.Remove(h)
}

func (s *Session) GetTickList(q amflow.TickListQuery, cb amflow.ResultCallback[*playlog.TickList]) {
	tl, err := s.getTickList(q)
	s.finish(amflow.OpGetTickList, err)
	cb(tl, err)
}

func (s *Session) getTickList(q amflow.TickListQuery) (*playlog.TickList, error) {
	playID, _, err := s.ready(amflow.OpGetTickList)
	if err != nil {
		return nil, err
	}
	opts, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	last, ok, err := s.hub.persist.LastFrame(s.hub.ctx, playID)
	if err != nil {
		return nil, fmt.Errorf("get tick list: %w", err)
	}
	if ok && opts.Begin > last {
		return nil, amflow.NewError(amflow.KindRangeError, amflow.OpGetTickList, "begin %d is beyond last frame %d", opts.Begin, last)
	}

	ticks, err := s.hub.persist.TickRange(s.hub.ctx, playID, opts.Begin, opts.End)
	if err != nil {
		return nil, fmt.Errorf("get tick list: %w", err)
	}

	tl := playlog.NewTickList(opts.Begin, opts.End, ticks)
	if opts.ExcludeIgnorable() {
		tl = tl.WithoutIgnorable()
	}
	return &tl, nil
}

func (s *Session) PutStartPoint(sp amflow.StartPoint, cb amflow.Callback) {
	err := s.putStartPoint(sp)
	s.finish(amflow.OpPutStartPoint, err)
	cb(err)
}

func (s *Session) putStartPoint(sp amflow.StartPoint) error {
	playID, _, err := s.ready(amflow.OpPutStartPoint)
	if err != nil {
		return err
	}
	if sp.Frame < 0 {
		return amflow.NewError(amflow.KindInvalidArgument, amflow.OpPutStartPoint, "negative frame %d", sp.Frame)
	}
	if err := s.hub.persist.PutStartPoint(s.hub.ctx, playID, sp); err != nil {
		return fmt.Errorf("put start point: %w", err)
	}
	return nil
}

func (s *Session) GetStartPoint(opts amflow.GetStartPointOptions, cb amflow.ResultCallback[*amflow.StartPoint]) {
	sp, err := s.getStartPoint(opts)
	s.finish(amflow.OpGetStartPoint, err)
	cb(sp, err)
}

func (s *Session) getStartPoint(opts amflow.GetStartPointOptions) (*amflow.StartPoint, error) {
	playID, _, err := s.ready(amflow.OpGetStartPoint)
	if err != nil {
		return nil, err
	}
	sp, err := s.hub.persist.FindStartPoint(s.hub.ctx, playID, opts)
	if err != nil {
		if amflow.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("get start point: %w", err)
	}
	return &sp, nil
}

func (s *Session) PutStorageData(key playlog.StorageKey, value playlog.StorageValue, opts amflow.PutStorageDataOptions, cb amflow.Callback) {
	err := s.putStorageData(key, value, opts)
	s.finish(amflow.OpPutStorageData, err)
	cb(err)
}

func (s *Session) putStorageData(key playlog.StorageKey, value playlog.StorageValue, opts amflow.PutStorageDataOptions) error {
	playID, _, err := s.ready(amflow.OpPutStorageData)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	value, err = value.Normalize()
	if err != nil {
		return amflow.NewError(amflow.KindInvalidArgument, amflow.OpPutStorageData, "%v", err)
	}
	key = key.Normalize()

	applied, err := s.hub.persist.PutStorageData(s.hub.ctx, playID, key, value, opts)
	if err != nil {
		if amflow.KindOf(err) != "" {
			return err
		}
		return fmt.Errorf("put storage data: %w", err)
	}
	s.logger.Debug("storage data put", "play", playID, "key", key.String(), "applied", applied)
	return nil
}

func (s *Session) GetStorageData(keys []playlog.StorageReadKey, cb amflow.ResultCallback[[]playlog.StorageData]) {
	data, err := s.getStorageData(keys)
	s.finish(amflow.OpGetStorageData, err)
	cb(data, err)
}

func (s *Session) getStorageData(keys []playlog.StorageReadKey) ([]playlog.StorageData, error) {
	playID, _, err := s.ready(amflow.OpGetStorageData)
	if err != nil {
		return nil, err
	}
	data, err := s.hub.persist.GetStorageData(s.hub.ctx, playID, keys)
	if err != nil {
		return nil, fmt.Errorf("get storage data: %w", err)
	}
	return data, nil
}
