package amflow

// Permission is the capability set granted by a successful Authenticate.
// It is immutable once issued.
type Permission struct {
	// WriteTick allows SendTick, PutStartPoint and PutStorageData.
	WriteTick bool `json:"write_tick" yaml:"write_tick" toml:"write_tick"`

	// ReadTick allows GetTickList, GetStartPoint and GetStorageData.
	ReadTick bool `json:"read_tick" yaml:"read_tick" toml:"read_tick"`

	// SubscribeTick allows receiving ticks through OnTick handlers.
	SubscribeTick bool `json:"subscribe_tick" yaml:"subscribe_tick" toml:"subscribe_tick"`

	// SendEvent allows SendEvent.
	SendEvent bool `json:"send_event" yaml:"send_event" toml:"send_event"`

	// SubscribeEvent allows receiving events through OnEvent handlers.
	SubscribeEvent bool `json:"subscribe_event" yaml:"subscribe_event" toml:"subscribe_event"`

	// MaxEventPriority is the highest priority an event sent by this session
	// may carry. Higher priorities are clamped, not rejected.
	MaxEventPriority int `json:"max_event_priority" yaml:"max_event_priority" toml:"max_event_priority"`
}

// ClampPriority caps priority at MaxEventPriority.
func (p Permission) ClampPriority(priority int) int {
	if priority > p.MaxEventPriority {
		return p.MaxEventPriority
	}
	return priority
}

// Operation tags an AMFlow operation for authorization and error reporting.
type Operation int

const (
	OpNone Operation = iota
	OpOpen
	OpClose
	OpAuthenticate
	OpSendTick
	OpSubscribeTick
	OpSendEvent
	OpSubscribeEvent
	OpGetTickList
	OpPutStartPoint
	OpGetStartPoint
	OpPutStorageData
	OpGetStorageData
)

var operationNames = map[Operation]string{
	OpNone:           "none",
	OpOpen:           "open",
	OpClose:          "close",
	OpAuthenticate:   "authenticate",
	OpSendTick:       "sendTick",
	OpSubscribeTick:  "subscribeTick",
	OpSendEvent:      "sendEvent",
	OpSubscribeEvent: "subscribeEvent",
	OpGetTickList:    "getTickList",
	OpPutStartPoint:  "putStartPoint",
	OpGetStartPoint:  "getStartPoint",
	OpPutStorageData: "putStorageData",
	OpGetStorageData: "getStorageData",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "unknown"
}

// ParseOperation resolves an operation by its String name.
func ParseOperation(name string) (Operation, bool) {
	for op, n := range operationNames {
		if n == name {
			return op, true
		}
	}
	return OpNone, false
}

// Gated reports whether the operation requires a permission bit.
func (op Operation) Gated() bool {
	switch op {
	case OpNone, OpOpen, OpClose, OpAuthenticate:
		return false
	}
	return true
}

// Authorize decides whether p allows op. Ungated operations are always
// allowed. A nil permission (no successful Authenticate yet) denies every
// gated operation.
func Authorize(p *Permission, op Operation) error {
	if !op.Gated() {
		return nil
	}
	if p == nil {
		return NewError(KindPermissionDenied, op, "session is not authenticated")
	}

	var allowed bool
	switch op {
	case OpSendTick, OpPutStartPoint, OpPutStorageData:
		allowed = p.WriteTick
	case OpGetTickList, OpGetStartPoint, OpGetStorageData:
		allowed = p.ReadTick
	case OpSubscribeTick:
		allowed = p.SubscribeTick
	case OpSendEvent:
		allowed = p.SendEvent
	case OpSubscribeEvent:
		allowed = p.SubscribeEvent
	}

	if !allowed {
		return NewError(KindPermissionDenied, op, "permission denied")
	}
	return nil
}
