// Package cli implements the blockrt command line: rendering sessions,
// validating requests, running scenarios and replaying transcripts.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/blockrt/internal/apps"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Apps resolves app names. Defaults to the built-in registry.
	Apps *apps.Registry
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the blockrt CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Apps: apps.Default()}

	cmd := &cobra.Command{
		Use:   "blockrt",
		Short: "blockrt - component runtime for block-based UIs",
		Long: `A stateless component runtime: each invocation takes events and prior
hook state and returns a state delta, effects, follow-up events and a
rendered block tree.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewAppsCommand(opts))

	return cmd
}

// newLogger returns the text logger commands hand to the host. Debug
// records are kept only in verbose mode.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func registry(opts *RootOptions) *apps.Registry {
	if opts.Apps == nil {
		return apps.Default()
	}
	return opts.Apps
}
