package amflow

import (
	"encoding/json"
	"strconv"
)

// StartPoint is a snapshot of simulation state at Frame, letting a replay
// begin there instead of at frame 0. Start points are never mutated; several
// may coexist for the same play.
type StartPoint struct {
	Frame     int64           `json:"frame" yaml:"frame"`
	Timestamp int64           `json:"timestamp" yaml:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty" yaml:"-"`
}

// GetStartPointOptions bounds start point selection. At most one of Frame and
// Timestamp may be set.
type GetStartPointOptions struct {
	// Frame selects the start point with the greatest frame strictly less
	// than *Frame.
	Frame *int64 `json:"frame,omitempty" yaml:"frame,omitempty"`

	// Timestamp selects the start point with the greatest timestamp strictly
	// less than *Timestamp.
	Timestamp *int64 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// BeforeFrame builds options bounded by frame.
func BeforeFrame(frame int64) GetStartPointOptions {
	return GetStartPointOptions{Frame: &frame}
}

// BeforeTimestamp builds options bounded by timestamp.
func BeforeTimestamp(ts int64) GetStartPointOptions {
	return GetStartPointOptions{Timestamp: &ts}
}

// Validate rejects options that set both bounds.
func (o GetStartPointOptions) Validate() error {
	if o.Frame != nil && o.Timestamp != nil {
		return NewError(KindInvalidArgument, OpGetStartPoint, "frame and timestamp bounds are mutually exclusive")
	}
	return nil
}

// SelectStartPoint picks the start point opts asks for from points:
//   - no bound: the frame 0 start point
//   - Frame bound: greatest frame strictly less than the bound
//   - Timestamp bound: greatest timestamp strictly less than the bound
//
// Ties on the compared field keep the start point stored last.
// Returns NotFound when nothing qualifies.
func SelectStartPoint(points []StartPoint, opts GetStartPointOptions) (StartPoint, error) {
	if err := opts.Validate(); err != nil {
		return StartPoint{}, err
	}

	var (
		best  StartPoint
		found bool
	)
	for _, sp := range points {
		switch {
		case opts.Frame != nil:
			if sp.Frame < *opts.Frame && (!found || sp.Frame >= best.Frame) {
				best, found = sp, true
			}
		case opts.Timestamp != nil:
			if sp.Timestamp < *opts.Timestamp && (!found || sp.Timestamp >= best.Timestamp) {
				best, found = sp, true
			}
		default:
			if sp.Frame == 0 {
				best, found = sp, true
			}
		}
	}

	if !found {
		return StartPoint{}, NewError(KindNotFound, OpGetStartPoint, "no start point matches %s", opts)
	}
	return best, nil
}

// String renders the bound for messages and logs.
func (o GetStartPointOptions) String() string {
	switch {
	case o.Frame != nil && o.Timestamp != nil:
		return "frame+timestamp"
	case o.Frame != nil:
		return "frame<" + strconv.FormatInt(*o.Frame, 10)
	case o.Timestamp != nil:
		return "timestamp<" + strconv.FormatInt(*o.Timestamp, 10)
	}
	return "frame=0"
}

