package amflow

import "github.com/roach88/amflow/internal/playlog"

// ValidateTick checks the arguments of a sendTick call. Every backend runs
// it after the state and permission checks, so a transport that does not
// wait for an answer reports the same error as the in-process session.
func ValidateTick(tick playlog.Tick) error {
	if tick.Frame < 0 {
		return NewError(KindInvalidArgument, OpSendTick, "negative frame %d", tick.Frame)
	}
	return nil
}
