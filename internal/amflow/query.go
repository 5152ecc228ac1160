package amflow

// ExcludeEventFlags selects events to omit from a tick list.
type ExcludeEventFlags struct {
	// Ignorable omits events flagged ignorable.
	Ignorable bool `json:"ignorable,omitempty" yaml:"ignorable,omitempty"`
}

// GetTickListOptions requests the stored ticks of [Begin, End).
type GetTickListOptions struct {
	Begin             int64              `json:"begin" yaml:"begin"`
	End               int64              `json:"end" yaml:"end"`
	ExcludeEventFlags *ExcludeEventFlags `json:"exclude_event_flags,omitempty" yaml:"exclude_event_flags,omitempty"`
}

// ExcludeIgnorable reports whether ignorable events must be omitted.
func (o GetTickListOptions) ExcludeIgnorable() bool {
	return o.ExcludeEventFlags != nil && o.ExcludeEventFlags.Ignorable
}

// Validate rejects negative or empty ranges.
func (o GetTickListOptions) Validate() error {
	if o.Begin < 0 {
		return NewError(KindRangeError, OpGetTickList, "begin %d is negative", o.Begin)
	}
	if o.Begin >= o.End {
		return NewError(KindRangeError, OpGetTickList, "empty range [%d, %d)", o.Begin, o.End)
	}
	return nil
}

// TickListQueryKind tags the shape a tick-list request was made in.
type TickListQueryKind int

const (
	// TickListQueryLegacy is the positional (begin, end) form.
	TickListQueryLegacy TickListQueryKind = iota + 1
	// TickListQueryOptions is the GetTickListOptions form.
	TickListQueryOptions
)

func (k TickListQueryKind) String() string {
	switch k {
	case TickListQueryLegacy:
		return "legacy"
	case TickListQueryOptions:
		return "options"
	}
	return "invalid"
}

// TickListQuery is the tagged union of the two accepted GetTickList call
// shapes. Build one with LegacyTickListQuery or OptionsTickListQuery; the
// zero value is invalid.
type TickListQuery struct {
	Kind TickListQueryKind

	// Begin and End are set for TickListQueryLegacy.
	Begin int64
	End   int64

	// Options is set for TickListQueryOptions.
	Options GetTickListOptions
}

// LegacyTickListQuery builds the (begin, end) form.
//
// Deprecated: use OptionsTickListQuery. Kept for callers of the positional
// signature.
func LegacyTickListQuery(begin, end int64) TickListQuery {
	return TickListQuery{Kind: TickListQueryLegacy, Begin: begin, End: end}
}

// OptionsTickListQuery builds the options form.
func OptionsTickListQuery(opts GetTickListOptions) TickListQuery {
	return TickListQuery{Kind: TickListQueryOptions, Options: opts}
}

// Normalize returns the options record both forms dispatch with. The legacy
// form never excludes events. Range validity is left to the backend.
func (q TickListQuery) Normalize() (GetTickListOptions, error) {
	switch q.Kind {
	case TickListQueryLegacy:
		return GetTickListOptions{Begin: q.Begin, End: q.End}, nil
	case TickListQueryOptions:
		return q.Options, nil
	}
	return GetTickListOptions{}, NewError(KindInvalidArgument, OpGetTickList, "invalid tick list query kind %d", q.Kind)
}
