package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario drives one app through a flow of steps.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// App is the fixture app to mount.
	App string `yaml:"app"`

	// Props are the root props.
	Props map[string]any `yaml:"props,omitempty"`

	// KV seeds the app's key-value scope before the first render.
	KV map[string]any `yaml:"kv,omitempty"`

	// Flow runs after the initial render, in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one host interaction. Exactly one of Press, Event, Publish,
// Render or Advance must be set.
type Step struct {
	// Press triggers onPress of the first block with this text.
	Press string `yaml:"press,omitempty"`

	// Data is the user action payload of Press.
	Data any `yaml:"data,omitempty"`

	// Event is a raw protocol event.
	Event map[string]any `yaml:"event,omitempty"`

	// Publish delivers a channel message.
	Publish *Publish `yaml:"publish,omitempty"`

	// Render sends a render-all event.
	Render bool `yaml:"render,omitempty"`

	// Advance moves the clock forward by this many milliseconds and runs
	// the rerender jobs that became due.
	Advance int `yaml:"advance,omitempty"`

	// Blocking marks the sent event as blocking.
	Blocking bool `yaml:"blocking,omitempty"`

	// Expect checks the outcome of this step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Publish names a channel and the message to deliver on it.
type Publish struct {
	Channel string `yaml:"channel"`
	Data    any    `yaml:"data"`
}

// Expect checks a step outcome.
type Expect struct {
	// Texts must all appear in the latest tree.
	Texts []string `yaml:"texts,omitempty"`

	// Error is the validation code, or a substring of the message, the
	// step must fail with.
	Error string `yaml:"error,omitempty"`

	// Pending is the number of events left unresolved.
	Pending *int `yaml:"pending,omitempty"`
}

// Assertion validates the final outcome.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Hook is the hook id (state_equals, state_absent).
	Hook string `yaml:"hook,omitempty"`

	// Value is the expected hook value (state_equals).
	Value any `yaml:"value,omitempty"`

	// Text must appear in the final tree (text_contains).
	Text string `yaml:"text,omitempty"`

	// Effect is the effect type counted over the whole trace (effect_count).
	Effect string `yaml:"effect,omitempty"`

	// Count is the expected number of effects or invocations.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStateEquals  = "state_equals"
	AssertStateAbsent  = "state_absent"
	AssertTextContains = "text_contains"
	AssertEffectCount  = "effect_count"
	AssertStepCount    = "step_count"
)

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

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
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
	if s.App == "" {
		return fmt.Errorf("app is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		set := 0
		for _, ok := range []bool{step.Press != "", step.Event != nil, step.Publish != nil, step.Render, step.Advance != 0} {
			if ok {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of press, event, publish, render, advance is required", i)
		}
		if step.Data != nil && step.Press == "" {
			return fmt.Errorf("flow[%d]: data is only valid with press", i)
		}
		if step.Publish != nil && step.Publish.Channel == "" {
			return fmt.Errorf("flow[%d].publish: channel is required", i)
		}
		if step.Blocking && step.Publish != nil {
			return fmt.Errorf("flow[%d]: publish cannot be blocking", i)
		}
		if step.Advance < 0 {
			return fmt.Errorf("flow[%d]: advance must be positive", i)
		}
		if step.Blocking && step.Advance != 0 {
			return fmt.Errorf("flow[%d]: advance cannot be blocking", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertStateEquals:
		if a.Hook == "" {
			return fmt.Errorf("assertions[%d]: state_equals requires 'hook'", index)
		}
	case AssertStateAbsent:
		if a.Hook == "" {
			return fmt.Errorf("assertions[%d]: state_absent requires 'hook'", index)
		}
	case AssertTextContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text_contains requires 'text'", index)
		}
	case AssertEffectCount:
		if a.Effect == "" {
			return fmt.Errorf("assertions[%d]: effect_count requires 'effect'", index)
		}
	case AssertStepCount:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: step_count requires a positive 'count'", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
