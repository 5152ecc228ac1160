package amflow

import (
	"github.com/roach88/amflow/internal/playlog"
)

// Callback receives the outcome of an operation that yields no value.
type Callback func(err error)

// ResultCallback receives the outcome of an operation that yields a value.
// On failure the value is the zero value of T.
type ResultCallback[T any] func(value T, err error)

// AMFlow is the contract every backend implements.
//
// Asynchronous operations report through their callback exactly once and
// never panic. Open and Close accept a nil callback.
type AMFlow interface {
	// Open begins a session bound to playID. Fails with InvalidStatus if the
	// session is already open.
	Open(playID string, cb Callback)

	// Close ends the session. Closing a closed session succeeds.
	Close(cb Callback)

	// Authenticate exchanges a token for a Permission. An unrecognized token
	// fails with AuthenticationFailure.
	Authenticate(token string, cb ResultCallback[*Permission])

	// SendTick broadcasts a tick to subscribers. Backends that persist ticks
	// store it without its transient events. Requires WriteTick.
	SendTick(tick playlog.Tick) error

	// OnTick registers a tick handler. Deliveries require SubscribeTick;
	// registration itself is not gated.
	OnTick(h TickHandler)

	// OffTick removes a handler registered with OnTick. Only the identical
	// handler value is removed.
	OffTick(h TickHandler)

	// SendEvent broadcasts an event. The priority is clamped to the sender's
	// MaxEventPriority. Requires SendEvent.
	SendEvent(event playlog.Event) error

	// OnEvent registers an event handler. Deliveries require SubscribeEvent.
	OnEvent(h EventHandler)

	// OffEvent removes a handler registered with OnEvent.
	OffEvent(h EventHandler)

	// GetTickList returns the stored ticks of a half-open range. Requires
	// ReadTick.
	GetTickList(q TickListQuery, cb ResultCallback[*playlog.TickList])

	// PutStartPoint stores a start point. Requires WriteTick.
	PutStartPoint(sp StartPoint, cb Callback)

	// GetStartPoint returns the start point selected by opts. Requires
	// ReadTick.
	GetStartPoint(opts GetStartPointOptions, cb ResultCallback[*StartPoint])

	// PutStorageData writes one value under key. Requires WriteTick.
	PutStorageData(key playlog.StorageKey, value playlog.StorageValue, opts PutStorageDataOptions, cb Callback)

	// GetStorageData reads values for keys. The result holds one entry per
	// key, in the order of keys. Requires ReadTick.
	GetStorageData(keys []playlog.StorageReadKey, cb ResultCallback[[]playlog.StorageData])
}

// SessionState is the lifecycle state of a session.
type SessionState int

const (
	StateClosed SessionState = iota
	StateOpen
)

func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// StorageCondition gates a conditional PutStorageData.
type StorageCondition int

const (
	// StorageConditionNone writes unconditionally.
	StorageConditionNone StorageCondition = iota
	// StorageConditionEqual writes only if the stored value equals the
	// comparison value.
	StorageConditionEqual
	// StorageConditionGreaterThan writes only if the stored value is greater
	// than the comparison value.
	StorageConditionGreaterThan
	// StorageConditionLessThan writes only if the stored value is less than
	// the comparison value.
	StorageConditionLessThan
)

// PutStorageDataOptions carries the optional write condition.
type PutStorageDataOptions struct {
	Condition       StorageCondition      `json:"condition,omitempty"`
	ComparisonValue *playlog.StorageValue `json:"comparison_value,omitempty"`
}

// Validate rejects a condition without a comparison value.
func (o PutStorageDataOptions) Validate() error {
	if o.Condition < StorageConditionNone || o.Condition > StorageConditionLessThan {
		return NewError(KindInvalidArgument, OpPutStorageData, "unknown storage condition %d", o.Condition)
	}
	if o.Condition != StorageConditionNone && o.ComparisonValue == nil {
		return NewError(KindInvalidArgument, OpPutStorageData, "condition requires a comparison value")
	}
	return nil
}

// Allows reports whether a write may replace current. current is nil when
// nothing is stored; a conditional write never lands on an empty slot.
// Both values must be normalized.
func (o PutStorageDataOptions) Allows(current *playlog.StorageValue) (bool, error) {
	if o.Condition == StorageConditionNone {
		return true, nil
	}
	if current == nil {
		return false, nil
	}
	cmp, err := o.ComparisonValue.Normalize()
	if err != nil {
		return false, NewError(KindInvalidArgument, OpPutStorageData, "%v", err)
	}
	c, err := current.Compare(cmp)
	if err != nil {
		return false, NewError(KindInvalidArgument, OpPutStorageData, "%v", err)
	}
	switch o.Condition {
	case StorageConditionEqual:
		return c == 0, nil
	case StorageConditionGreaterThan:
		return c > 0, nil
	case StorageConditionLessThan:
		return c < 0, nil
	}
	return false, nil
}
