package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/hub"
	"github.com/roach88/amflow/internal/playlog"
	"github.com/roach88/amflow/internal/store"
)

// stepTimeout bounds how long a step's future may stay pending. Hub
// sessions settle before returning, so only a broken backend waits.
const stepTimeout = 5 * time.Second

// Harness executes one scenario against a fresh hub.
type Harness struct {
	store    *store.Store
	hub      *hub.Hub
	sessions map[string]*sessionRunner
	result   *Result
	seq      int64
	logger   *slog.Logger
}

// sessionRunner drives one named session through the promise adapter.
type sessionRunner struct {
	name   string
	flow   *amflow.PromisifiedAMFlow
	ticks  amflow.TickHandler
	events amflow.EventHandler
}

// argsError marks step arguments that do not decode. It aborts the run
// instead of becoming the step's outcome.
type argsError struct {
	err error
}

func (e *argsError) Error() string { return "bad args: " + e.err.Error() }
func (e *argsError) Unwrap() error { return e.err }

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh hub persisting to an in-memory SQLite
// database. Session IDs come from a sequence generator and the trace is
// numbered by a step counter, so a scenario always yields the same trace.
//
// Execution flow:
// 1. Create fresh in-memory database and hub
// 2. Create the named sessions and their recording handlers
// 3. Execute setup steps (all must succeed)
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions against the trace and database
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with step logging sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	h := &Harness{
		store: st,
		hub: hub.New(hub.TokenTable(scenario.Tokens),
			hub.WithPersistence(st),
			hub.WithIDGenerator(hub.NewSequenceGenerator("session")),
			hub.WithLogger(logger),
			hub.WithContext(ctx),
		),
		sessions: make(map[string]*sessionRunner, len(scenario.Sessions)),
		result:   NewResult(),
		logger:   logger,
	}

	for _, name := range scenario.Sessions {
		h.sessions[name] = h.newSessionRunner(name)
	}

	for i, step := range scenario.Setup {
		outputCase, _, err := h.executeStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if outputCase != CaseSuccess {
			return nil, fmt.Errorf("setup step %d: %s.%s failed with %s", i, step.Session, step.Invoke, outputCase)
		}
	}

	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

func (h *Harness) newSessionRunner(name string) *sessionRunner {
	r := &sessionRunner{
		name: name,
		flow: amflow.Promisify(h.hub.NewSession()),
	}
	r.ticks = amflow.NewTickHandler(func(tick playlog.Tick) {
		h.recordDelivery(name, "tick", tick)
	})
	r.events = amflow.NewEventHandler(func(event playlog.Event) {
		h.recordDelivery(name, "event", event)
	})
	return r
}

func (h *Harness) recordDelivery(session, kind string, payload any) {
	generic, err := toGeneric(payload)
	if err != nil {
		h.result.AddError(fmt.Sprintf("delivery to %s: %v", session, err))
		return
	}
	h.result.AddDeliveryTrace(session, kind, generic, h.next())
}

// executeFlow runs all flow steps and validates expect clauses against the
// outcome the session actually produced.
func (h *Harness) executeFlow(ctx context.Context, flow []Step) error {
	for i, step := range flow {
		outputCase, result, err := h.executeStep(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		if step.Expect == nil {
			continue
		}
		if outputCase != step.Expect.Case {
			h.result.AddError(fmt.Sprintf("flow[%d] %s.%s: expected case %s, got %s",
				i, step.Session, step.Invoke, step.Expect.Case, outputCase))
			continue
		}
		if step.Expect.Result != nil && !matchValue(result, step.Expect.Result) {
			h.result.AddError(fmt.Sprintf("flow[%d] %s.%s: expected result %v, got %v",
				i, step.Session, step.Invoke, step.Expect.Result, result))
		}
	}
	return nil
}

// executeStep traces and runs one step. It returns the output case and the
// completion value in generic JSON form.
func (h *Harness) executeStep(ctx context.Context, step Step) (string, any, error) {
	r := h.sessions[step.Session]

	var args any
	if len(step.Args) > 0 {
		args = step.Args
	}
	h.result.AddInvocationTrace(step.Session, step.Invoke, args, h.next())

	stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	value, opErr := h.invoke(stepCtx, r, step)

	var ae *argsError
	if errors.As(opErr, &ae) {
		return "", nil, fmt.Errorf("%s.%s: %w", step.Session, step.Invoke, opErr)
	}
	if errors.Is(opErr, context.DeadlineExceeded) {
		return "", nil, fmt.Errorf("%s.%s: did not settle within %s", step.Session, step.Invoke, stepTimeout)
	}

	result, err := toGeneric(value)
	if err != nil {
		return "", nil, fmt.Errorf("%s.%s: %w", step.Session, step.Invoke, err)
	}

	outputCase := outputCaseOf(opErr)
	h.result.AddCompletionTrace(step.Session, outputCase, result, h.next())

	h.logger.Info("step completed",
		"session", step.Session,
		"op", step.Invoke,
		"output_case", outputCase,
	)
	return outputCase, result, nil
}

// outputCaseOf names an outcome: Success, the error kind, or Error for
// errors without a kind.
func outputCaseOf(err error) string {
	if err == nil {
		return CaseSuccess
	}
	if kind := amflow.KindOf(err); kind != "" {
		return string(kind)
	}
	return "Error"
}

// invoke runs step on r. Its error is the operation's outcome, except for
// an *argsError.
func (h *Harness) invoke(ctx context.Context, r *sessionRunner, step Step) (any, error) {
	switch step.Invoke {
	case InvokeOnTick:
		r.flow.OnTick(r.ticks)
		return nil, nil
	case InvokeOffTick:
		r.flow.OffTick(r.ticks)
		return nil, nil
	case InvokeOnEvent:
		r.flow.OnEvent(r.events)
		return nil, nil
	case InvokeOffEvent:
		r.flow.OffEvent(r.events)
		return nil, nil
	}

	op, _ := amflow.ParseOperation(step.Invoke)
	switch op {
	case amflow.OpOpen:
		var p struct {
			PlayID string `json:"play_id"`
		}
		if err := decodeArgs(step.Args, &p); err != nil {
			return nil, err
		}
		return awaitVoid(ctx, r.flow.Open(p.PlayID))

	case amflow.OpClose:
		return awaitVoid(ctx, r.flow.Close())

	case amflow.OpAuthenticate:
		var p struct {
			Token string `json:"token"`
		}
		if err := decodeArgs(step.Args, &p); err != nil {
			return nil, err
		}
		return awaitValue(ctx, r.flow.Authenticate(p.Token))

	case amflow.OpSendTick:
		var p struct {
			Tick playlog.Tick `json:"tick"`
		}
		if err := decodeArgs(step.Args, &p); err != nil {
			return nil, err
		}
		return nil, r.flow.SendTick(p.Tick)

	case amflow.OpSendEvent:
		var p struct {
			Event playlog.Event `json:"event"`
		}
		if err := decodeArgs(step.Args, &p); err != nil {
			return nil, err
		}
		return nil, r.flow.SendEvent(p.Event)

	case amflow.OpGetTickList:
		var p struct {
			amflow.GetTickListOptions
			Legacy bool `json:"legacy"`
		}
		if err := decodeArgs(step.Args, &p); err != nil {
			return nil, err
		}
		q := amflow.OptionsTickListQuery(p.GetTickListOptions)
		if p.Legacy {
			q = amflow.LegacyTickListQuery(p.Begin, p.End)
		}
		return awaitValue(ctx, r.flow.GetTickList(q))

	case amflow.OpPutStartPoint:
		var p struct {
			StartPoint amflow.StartPoint `json:"start_point"`
		}
		if err := decodeArgs(step.Args, &p); err != nil {
			return nil, err
		}
		return awaitVoid(ctx, r.flow.PutStartPoint(p.StartPoint))

	case amflow.OpGetStartPoint:
		var opts amflow.GetStartPointOptions
		if err := decodeArgs(step.Args, &opts); err != nil {
			return nil, err
		}
		return awaitValue(ctx, r.flow.GetStartPoint(opts))

	case amflow.OpPutStorageData:
		var p struct {
			Key     playlog.StorageKey           `json:"key"`
			Value   playlog.StorageValue         `json:"value"`
			Options amflow.PutStorageDataOptions `json:"options"`
		}
		if err := decodeArgs(step.Args, &p); err != nil {
			return nil, err
		}
		return awaitVoid(ctx, r.flow.PutStorageData(p.Key, p.Value, p.Options))

	case amflow.OpGetStorageData:
		var p struct {
			Keys []playlog.StorageReadKey `json:"keys"`
		}
		if err := decodeArgs(step.Args, &p); err != nil {
			return nil, err
		}
		return awaitValue(ctx, r.flow.GetStorageData(p.Keys))
	}

	return nil, &argsError{err: fmt.Errorf("operation %q cannot be invoked", step.Invoke)}
}

func awaitVoid(ctx context.Context, f *amflow.Future[struct{}]) (any, error) {
	_, err := f.Await(ctx)
	return nil, err
}

func awaitValue[T any](ctx context.Context, f *amflow.Future[T]) (any, error) {
	v, err := f.Await(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// decodeArgs converts YAML-parsed args to the operation's parameter type
// by way of their JSON form, so args are spelled as on the wire.
func decodeArgs(args map[string]any, v any) error {
	if len(args) == 0 {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return &argsError{err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &argsError{err: err}
	}
	return nil
}

// toGeneric converts a value to its JSON data model (maps, slices,
// float64, string, bool, nil) for tracing and matching.
func toGeneric(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
