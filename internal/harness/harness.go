package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/blockrt/internal/apps"
	"github.com/roach88/blockrt/internal/host"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/store"
	"github.com/roach88/blockrt/internal/testutil"
	"github.com/roach88/blockrt/internal/value"
)

// sessionID is the id every scenario session is mounted under.
const sessionID = "scenario"

// Harness is the test execution engine.
// It runs scenarios with deterministic invocation ids and wall clock.
type Harness struct {
	store  *store.Store
	host   *host.Host
	clock  *testutil.DeterministicClock
	result *Result
}

// Option configures a scenario run.
type Option func(*config)

type config struct {
	logger *slog.Logger
	apps   *apps.Registry
}

// WithLogger routes engine and host logs to l. Logs are discarded by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithApps replaces the built-in app registry.
func WithApps(r *apps.Registry) Option {
	return func(c *config) {
		c.apps = r
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// A returned error means the scenario could not run at all; failed
// expectations are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &config{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		apps:   apps.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewDeterministicClock()
	h := &Harness{
		store: st,
		clock: clock,
		host: host.New(st, cfg.apps,
			host.WithLogger(cfg.logger),
			host.WithIDGenerator(testutil.NewSequentialIDs(scenario.Name)),
			host.WithNow(clock.Now),
		),
		result: NewResult(),
	}

	ctx := context.Background()
	if err := h.setup(ctx, scenario); err != nil {
		return nil, err
	}

	for i, step := range scenario.Flow {
		if err := h.runStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	state, err := st.LoadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h.result.State = state

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	for _, key := range value.SortedKeys(scenario.KV) {
		raw, err := json.Marshal(scenario.KV[key])
		if err != nil {
			return fmt.Errorf("kv %q: %w", key, err)
		}
		if err := h.store.KV(scenario.App).Set(ctx, key, raw); err != nil {
			return err
		}
	}

	var props json.RawMessage
	if scenario.Props != nil {
		var err error
		if props, err = json.Marshal(scenario.Props); err != nil {
			return fmt.Errorf("props: %w", err)
		}
	}
	if _, err := h.host.Mount(ctx, sessionID, scenario.App, props); err != nil {
		return err
	}

	out, err := h.host.Pump(ctx, sessionID, nil)
	h.record(out)
	if err != nil {
		return fmt.Errorf("initial render: %w", err)
	}
	return nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step) error {
	var (
		out *host.Outcome
		err error
	)
	switch {
	case step.Advance > 0:
		var outs []*host.Outcome
		outs, err = h.host.RunDue(ctx, h.clock.Advance(time.Duration(step.Advance)*time.Millisecond))
		for _, o := range outs[:max(len(outs)-1, 0)] {
			h.record(o)
		}
		if len(outs) > 0 {
			out = outs[len(outs)-1]
		}
	case step.Publish != nil:
		data, merr := json.Marshal(step.Publish.Data)
		if merr != nil {
			return fmt.Errorf("publish data: %w", merr)
		}
		out, err = h.host.Publish(ctx, sessionID, step.Publish.Channel, data)
	default:
		ev, berr := h.event(step)
		if berr != nil {
			return berr
		}
		out, err = h.host.Pump(ctx, sessionID, []protocol.Event{ev})
	}
	h.record(out)

	expect := step.Expect
	if expect == nil {
		expect = &Expect{}
	}
	switch {
	case err != nil && expect.Error == "":
		h.result.AddError(fmt.Sprintf("flow[%d]: unexpected error: %v", i, err))
	case err == nil && expect.Error != "":
		h.result.AddError(fmt.Sprintf("flow[%d]: expected error %q, got none", i, expect.Error))
	case err != nil && !strings.Contains(err.Error(), expect.Error):
		h.result.AddError(fmt.Sprintf("flow[%d]: expected error %q, got %v", i, expect.Error, err))
	}

	if len(expect.Texts) > 0 {
		var texts []string
		if h.result.Blocks != nil {
			texts = h.result.Blocks.Texts()
		}
		for _, want := range expect.Texts {
			if !slices.Contains(texts, want) {
				h.result.AddError(fmt.Sprintf("flow[%d]: text %q not in tree %q", i, want, texts))
			}
		}
	}
	if expect.Pending != nil {
		got := 0
		if out != nil {
			got = len(out.Pending)
		}
		if got != *expect.Pending {
			h.result.AddError(fmt.Sprintf("flow[%d]: %d pending events, want %d", i, got, *expect.Pending))
		}
	}
	return nil
}

// event builds the protocol event a step sends.
func (h *Harness) event(step Step) (protocol.Event, error) {
	var ev protocol.Event
	switch {
	case step.Render:
		ev = protocol.RenderAll()
	case step.Press != "":
		if h.result.Blocks == nil {
			return ev, fmt.Errorf("press %q: nothing rendered yet", step.Press)
		}
		id, ok := h.result.Blocks.ActionFor(step.Press, "onPress")
		if !ok {
			return ev, fmt.Errorf("press %q: no such button in %q", step.Press, h.result.Blocks.Texts())
		}
		ev = protocol.Event{Hook: id, UserAction: &protocol.UserAction{ActionID: "press"}}
		if step.Data != nil {
			data, err := json.Marshal(step.Data)
			if err != nil {
				return ev, fmt.Errorf("press %q: data: %w", step.Press, err)
			}
			ev.UserAction.Data = data
		}
	default:
		raw, err := json.Marshal(step.Event)
		if err != nil {
			return ev, fmt.Errorf("event: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ev); err != nil {
			return ev, fmt.Errorf("event: %w", err)
		}
	}
	ev.Blocking = ev.Blocking || step.Blocking
	return ev, nil
}

// record appends the steps of out to the trace.
func (h *Harness) record(out *host.Outcome) {
	if out == nil {
		return
	}
	for _, step := range out.Steps {
		te := TraceEvent{Seq: step.Seq, Events: step.Request.Events}
		if step.Err != nil {
			te.Error = step.Err.Error()
		}
		if resp := step.Response; resp != nil {
			te.Delta = resp.State
			te.Effects = resp.Effects
			te.Emitted = resp.Events
			if resp.Blocks != nil {
				te.Texts = resp.Blocks.Texts()
			}
		}
		h.result.Trace = append(h.result.Trace, te)
	}
	if out.Blocks != nil {
		h.result.Blocks = out.Blocks
	}
}
