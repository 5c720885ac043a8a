package harness

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/blockrt/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		kinds := make([]string, len(ev.Events))
		for i, in := range ev.Events {
			kinds[i] = in.Kind().String()
		}
		fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, strings.Join(kinds, ","))
		if ev.Error != "" {
			fmt.Fprintf(&buf, " error=%s", ev.Error)
		}
		fmt.Fprintf(&buf, "\n")
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertStateEquals:
		return assertStateEquals(result, a)
	case AssertStateAbsent:
		return assertStateAbsent(result, a)
	case AssertTextContains:
		return assertTextContains(result, a)
	case AssertEffectCount:
		return assertEffectCount(result, a)
	case AssertStepCount:
		return assertStepCount(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertStateEquals compares a hook value with the expected value as
// canonical JSON, so key order and number spelling do not matter.
func assertStateEquals(result *Result, a Assertion) error {
	raw, ok := result.State[a.Hook]
	if !ok {
		return &AssertionError{
			Type:     AssertStateEquals,
			Expected: fmt.Sprintf("%s = %v", a.Hook, a.Value),
			Actual:   "hook has no state",
			Trace:    result.Trace,
		}
	}
	want, err := json.Marshal(a.Value)
	if err != nil {
		return fmt.Errorf("state_equals: encode expected value: %w", err)
	}
	if !value.Equal(raw, want) {
		return &AssertionError{
			Type:     AssertStateEquals,
			Expected: fmt.Sprintf("%s = %s", a.Hook, want),
			Actual:   string(raw),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStateAbsent(result *Result, a Assertion) error {
	if raw, ok := result.State[a.Hook]; ok {
		return &AssertionError{
			Type:     AssertStateAbsent,
			Expected: a.Hook + " absent",
			Actual:   string(raw),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertTextContains(result *Result, a Assertion) error {
	var texts []string
	if result.Blocks != nil {
		texts = result.Blocks.Texts()
	}
	if !slices.Contains(texts, a.Text) {
		return &AssertionError{
			Type:     AssertTextContains,
			Expected: fmt.Sprintf("text %q", a.Text),
			Actual:   fmt.Sprintf("%q", texts),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertEffectCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Trace {
		for _, eff := range ev.Effects {
			if string(eff.Type) == a.Effect {
				count++
			}
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEffectCount,
			Expected: fmt.Sprintf("%d %s effects", a.Count, a.Effect),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStepCount(result *Result, a Assertion) error {
	if len(result.Trace) != a.Count {
		return &AssertionError{
			Type:     AssertStepCount,
			Expected: fmt.Sprintf("%d invocations", a.Count),
			Actual:   fmt.Sprintf("%d", len(result.Trace)),
			Trace:    result.Trace,
		}
	}
	return nil
}
