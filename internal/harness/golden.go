package harness

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/blockrt/internal/value"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// Snapshots are canonical JSON; comparison is by JSON value, so a golden
// file may be indented by hand.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
		goldie.WithEqualFn(jsonEqual),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

// Snapshot returns the canonical JSON trace snapshot of result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	return value.MarshalCanonical(TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace})
}

func jsonEqual(actual, expected []byte) bool {
	if bytes.Equal(actual, expected) {
		return true
	}
	var a, e any
	if json.Unmarshal(actual, &a) != nil || json.Unmarshal(expected, &e) != nil {
		return false
	}
	return reflect.DeepEqual(a, e)
}
