package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/amflow/internal/amflow"
)

// Scenario is a conformance scenario: named sessions on one hub run a
// sequence of AMFlow operations, and assertions check the resulting trace
// and stored state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Sessions names the sessions the steps run on. Deliveries to several
	// sessions are traced in the order the sessions opened.
	Sessions []string `yaml:"sessions"`

	// Tokens grants a permission per authentication token.
	Tokens map[string]amflow.Permission `yaml:"tokens,omitempty"`

	// Setup runs before the flow. Every setup step must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence. Steps may fail; an expect clause checks
	// the outcome.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step invokes one operation on one session.
type Step struct {
	// Session names the session, from Scenario.Sessions.
	Session string `yaml:"session"`

	// Invoke is an AMFlow operation name ("sendTick", "getTickList", ...)
	// or a handler operation: onTick, offTick, onEvent, offEvent.
	Invoke string `yaml:"invoke"`

	// Args are the operation's arguments, named as on the wire.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect checks the outcome. If nil, any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Case is "Success" or an error kind such as "PermissionDenied".
	Case string `yaml:"case"`

	// Result is matched against the completion value. Maps match as
	// subsets; lists must match element by element.
	Result any `yaml:"result,omitempty"`
}

// Assertion validates the trace or stored state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, delivered
	// or final_state.
	Type string `yaml:"type"`

	// Action is the operation name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Session restricts trace_contains, trace_count and delivered to one
	// session.
	Session string `yaml:"session,omitempty"`

	// Args are matched as a subset of the invocation args (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Kind is "tick" or "event" (delivered).
	Kind string `yaml:"kind,omitempty"`

	// Table is ticks, start_points or storage_data (final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters rows by column equality (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected column values (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of matches (trace_count, delivered).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected operation order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertDelivered     = "delivered"
	AssertFinalState    = "final_state"
)

// Handler operations accepted by Step.Invoke besides AMFlow operations.
const (
	InvokeOnTick   = "onTick"
	InvokeOffTick  = "offTick"
	InvokeOnEvent  = "onEvent"
	InvokeOffEvent = "offEvent"
)

// CaseSuccess is the output case of a step that did not fail.
const CaseSuccess = "Success"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Sessions) == 0 {
		return fmt.Errorf("sessions list is required and must be non-empty")
	}

	sessions := make(map[string]bool, len(s.Sessions))
	for i, name := range s.Sessions {
		if name == "" {
			return fmt.Errorf("sessions[%d]: name is required", i)
		}
		if sessions[name] {
			return fmt.Errorf("sessions[%d]: duplicate session %q", i, name)
		}
		sessions[name] = true
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(sessions, step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot have expect clauses", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(sessions, step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, sessions, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(sessions map[string]bool, step Step) error {
	if step.Session == "" {
		return fmt.Errorf("session is required")
	}
	if !sessions[step.Session] {
		return fmt.Errorf("unknown session %q", step.Session)
	}
	if step.Invoke == "" {
		return fmt.Errorf("invoke is required")
	}
	if !knownInvoke(step.Invoke) {
		return fmt.Errorf("unknown operation %q", step.Invoke)
	}
	return nil
}

// knownInvoke reports whether name is a steppable operation.
func knownInvoke(name string) bool {
	switch name {
	case InvokeOnTick, InvokeOffTick, InvokeOnEvent, InvokeOffEvent:
		return true
	}
	op, ok := amflow.ParseOperation(name)
	return ok && op != amflow.OpNone && op != amflow.OpSubscribeTick && op != amflow.OpSubscribeEvent
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, sessions map[string]bool, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Session != "" && !sessions[a.Session] {
		return fmt.Errorf("assertions[%d]: unknown session %q", index, a.Session)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertDelivered:
		if a.Session == "" {
			return fmt.Errorf("assertions[%d]: session is required for delivered", index)
		}
		if a.Kind != "tick" && a.Kind != "event" {
			return fmt.Errorf("assertions[%d]: kind must be tick or event for delivered", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for delivered", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
