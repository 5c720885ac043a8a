package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/blockrt/internal/host"
	"github.com/roach88/blockrt/internal/protocol"
	"github.com/roach88/blockrt/internal/store"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	App      string
	Database string // empty means an in-memory store
	Session  string
	Props    string
	Request  string // request file, "-" for stdin
	Pump     bool
}

// StepResult is one invocation in render output.
type StepResult struct {
	Seq      int64              `json:"seq"`
	Response *protocol.Response `json:"response,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// RenderResult is the output of the render command.
type RenderResult struct {
	Session string            `json:"session"`
	App     string            `json:"app"`
	Steps   []StepResult      `json:"steps"`
	Texts   []string          `json:"texts,omitempty"`
	Pending []protocol.Event  `json:"pending,omitempty"`
	Effects []protocol.Effect `json:"effects,omitempty"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Invoke an app session with a request",
		Long: `Mount an app as a session and run one invocation against its stored state.

The request file holds a wire request; only its events are used, the state
comes from the session. Without --request a render-all invocation is made.
With --pump, async requests, async responses and requeued events are fed
back until the session settles.

Exit codes:
  0 - Invocation succeeded
  1 - Invocation failed (validation or handler error)
  2 - Command error (invalid request file, unknown app, etc.)

Examples:
  blockrt render --app counter
  blockrt render --app counter --db ./blockrt.db --session s1 --request press.json
  blockrt render --app loader --pump --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "app to mount (required)")
	_ = cmd.MarkFlagRequired("app")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default in-memory)")
	cmd.Flags().StringVar(&opts.Session, "session", "default", "session id")
	cmd.Flags().StringVar(&opts.Props, "props", "", "root props as a JSON object")
	cmd.Flags().StringVar(&opts.Request, "request", "", `request file ("-" for stdin)`)
	cmd.Flags().BoolVar(&opts.Pump, "pump", false, "feed returned events back until the session settles")

	return cmd
}

func runRender(ctx context.Context, opts *RenderOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	events, err := readEvents(opts.Request, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read request", err)
	}
	var props json.RawMessage
	if opts.Props != "" {
		props = json.RawMessage(opts.Props)
		if !json.Valid(props) {
			return NewExitError(ExitCommandError, "--props is not valid JSON")
		}
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	h := host.New(st, registry(opts.RootOptions), host.WithLogger(newLogger(opts.RootOptions, formatter.GetErrWriter())))
	if _, err := h.Mount(ctx, opts.Session, opts.App, props); err != nil {
		return WrapExitError(ExitCommandError, "failed to mount session", err)
	}
	if props != nil && cmd.Flags().Changed("props") {
		if err := st.SetProps(ctx, opts.Session, props); err != nil {
			return WrapExitError(ExitCommandError, "failed to update props", err)
		}
	}
	formatter.VerboseLog("session %s mounted with app %s", opts.Session, opts.App)

	var out *host.Outcome
	if opts.Pump {
		out, err = h.Pump(ctx, opts.Session, events)
	} else {
		var step host.Step
		step, err = h.Send(ctx, opts.Session, events)
		out = &host.Outcome{Steps: []host.Step{step}}
		if err == nil {
			out.Blocks = step.Response.Blocks
			out.Effects = step.Response.Effects
			out.Pending = step.Response.Events
		}
	}

	result := renderResult(opts, out)
	if err != nil {
		return renderFailure(formatter, result, err)
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	printRenderText(cmd.OutOrStdout(), result)
	return nil
}

func openStore(path string) (*store.Store, error) {
	if path == "" {
		return store.OpenMemory()
	}
	return store.Open(path)
}

// readEvents loads the events of a request file. An empty path yields no
// events, which the engine treats as render-all.
func readEvents(path string, stdin io.Reader) ([]protocol.Event, error) {
	if path == "" {
		return nil, nil
	}
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	req, err := protocol.ParseRequest(raw)
	if err != nil {
		return nil, err
	}
	return req.Events, nil
}

func renderResult(opts *RenderOptions, out *host.Outcome) RenderResult {
	result := RenderResult{Session: opts.Session, App: opts.App, Steps: []StepResult{}}
	if out == nil {
		return result
	}
	for _, step := range out.Steps {
		sr := StepResult{Seq: step.Seq, Response: step.Response}
		if step.Err != nil {
			sr.Error = step.Err.Error()
		}
		result.Steps = append(result.Steps, sr)
	}
	if out.Blocks != nil {
		result.Texts = out.Blocks.Texts()
	}
	result.Pending = out.Pending
	result.Effects = out.Effects
	return result
}

func renderFailure(f *OutputFormatter, result RenderResult, err error) error {
	if code := ErrorCodeOf(err); code == CodeCommand || code == CodeInvalidRequest {
		return WrapExitError(ExitCommandError, "render failed", err)
	}
	if outErr := f.Fail(err, result); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "invocation failed", err)
}

func printRenderText(w io.Writer, result RenderResult) {
	for _, step := range result.Steps {
		fmt.Fprintf(w, "step %d:", step.Seq)
		if step.Response != nil {
			fmt.Fprintf(w, " %d state changes, %d effects, %d events",
				len(step.Response.State), len(step.Response.Effects), len(step.Response.Events))
		}
		fmt.Fprintln(w)
	}
	if len(result.Texts) > 0 {
		fmt.Fprintf(w, "texts: %s\n", strings.Join(result.Texts, " | "))
	}
	for _, eff := range result.Effects {
		fmt.Fprintf(w, "effect: %s %s\n", eff.Type, eff.Hook)
	}
	if len(result.Pending) > 0 {
		fmt.Fprintf(w, "%d events pending\n", len(result.Pending))
	}
}
