package wsflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/playlog"
)

// Request is a client → server frame. Method is the amflow.Operation name.
type Request struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     uint64          `json:"id"`
	Error  *WireError      `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Push kinds.
const (
	PushTick  = "tick"
	PushEvent = "event"
)

// Push delivers a tick or an event.
type Push struct {
	Kind  string         `json:"kind"`
	Tick  *playlog.Tick  `json:"tick,omitempty"`
	Event *playlog.Event `json:"event,omitempty"`
}

// Subprotocols a connection may negotiate. Without one, or with
// SubprotocolJSON, every frame is JSON text. With SubprotocolMsgpack pushes
// are binary frames instead: a kind byte followed by the MessagePack tick or
// event. Requests and responses are JSON text either way.
const (
	SubprotocolJSON    = "amflow.json"
	SubprotocolMsgpack = "amflow.msgpack"
)

const (
	binaryPushTick  byte = 1
	binaryPushEvent byte = 2
)

// encodeBinaryPush renders p as a binary push frame.
func encodeBinaryPush(p Push) ([]byte, error) {
	var (
		kind byte
		body []byte
		err  error
	)
	switch {
	case p.Kind == PushTick && p.Tick != nil:
		kind = binaryPushTick
		body, err = playlog.EncodeTick(*p.Tick)
	case p.Kind == PushEvent && p.Event != nil:
		kind = binaryPushEvent
		body, err = playlog.EncodeEvent(*p.Event)
	default:
		return nil, fmt.Errorf("push %q has no payload", p.Kind)
	}
	if err != nil {
		return nil, err
	}
	return append([]byte{kind}, body...), nil
}

// decodeBinaryPush parses a frame produced by encodeBinaryPush.
func decodeBinaryPush(raw []byte) (*Push, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty binary frame")
	}
	switch raw[0] {
	case binaryPushTick:
		tick, err := playlog.DecodeTick(raw[1:])
		if err != nil {
			return nil, err
		}
		return &Push{Kind: PushTick, Tick: &tick}, nil
	case binaryPushEvent:
		event, err := playlog.DecodeEvent(raw[1:])
		if err != nil {
			return nil, err
		}
		return &Push{Kind: PushEvent, Event: &event}, nil
	default:
		return nil, fmt.Errorf("unknown binary push kind %d", raw[0])
	}
}

// ServerMessage is a server → client frame. Exactly one field is set.
type ServerMessage struct {
	Res  *Response `json:"res,omitempty"`
	Push *Push     `json:"push,omitempty"`
}

// WireError is an error as carried in a Response.
type WireError struct {
	Kind    amflow.ErrorKind `json:"kind,omitempty"`
	Op      string           `json:"op,omitempty"`
	Message string           `json:"message"`
}

// toWireError flattens err. A kinded error keeps its kind, op and message.
func toWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	var ae *amflow.Error
	if errors.As(err, &ae) {
		return &WireError{Kind: ae.Kind, Op: ae.Op.String(), Message: ae.Message}
	}
	return &WireError{Message: err.Error()}
}

// Err rebuilds the error: an *amflow.Error when a kind was sent, a plain
// error otherwise.
func (w *WireError) Err() error {
	if w == nil {
		return nil
	}
	if w.Kind == "" {
		return errors.New(w.Message)
	}
	op, _ := amflow.ParseOperation(w.Op)
	return &amflow.Error{Kind: w.Kind, Op: op, Message: w.Message}
}

// Request params, one per method.

type openParams struct {
	PlayID string `json:"play_id"`
}

type authenticateParams struct {
	Token string `json:"token"`
}

type sendTickParams struct {
	Tick playlog.Tick `json:"tick"`
}

type sendEventParams struct {
	Event playlog.Event `json:"event"`
}

type putStartPointParams struct {
	StartPoint amflow.StartPoint `json:"start_point"`
}

type putStorageDataParams struct {
	Key     playlog.StorageKey           `json:"key"`
	Value   playlog.StorageValue         `json:"value"`
	Options amflow.PutStorageDataOptions `json:"options"`
}

type getStorageDataParams struct {
	Keys []playlog.StorageReadKey `json:"keys"`
}
