package hub

import (
	"github.com/roach88/amflow/internal/amflow"
)

// Metrics observes hub activity. Implementations must be safe for
// concurrent use and must not call back into the hub.
type Metrics interface {
	SessionOpened(playID string)
	SessionClosed(playID string)

	// TickSent is called once per accepted tick with the number of sessions
	// it was delivered to.
	TickSent(playID string, delivered int)

	// EventSent is called once per accepted event.
	EventSent(playID string, delivered int)

	// Request is called once per completed operation; err is nil on success.
	Request(op amflow.Operation, err error)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) SessionOpened(string) {}
func (NopMetrics) SessionClosed(string) {}
func (NopMetrics) TickSent(string, int) {}
func (NopMetrics) EventSent(string, int) {}
func (NopMetrics) Request(amflow.Operation, error) {}
