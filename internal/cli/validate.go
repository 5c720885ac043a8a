package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/blockrt/internal/protocol"
)

// FileValidation is the validation outcome of one request file.
type FileValidation struct {
	Path    string `json:"path"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// ValidateResult holds the output of the validate command.
type ValidateResult struct {
	Files   []FileValidation `json:"files"`
	Invalid int              `json:"invalid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <request.json>...",
		Short: "Validate request files against the wire schema",
		Long: `Check that each file holds a well-formed request: an events list where
every event carries exactly one payload, or is a render-all event.

Exit codes:
  0 - All requests are valid
  1 - One or more requests are invalid
  2 - Command error (file not found, etc.)

Examples:
  blockrt validate press.json
  blockrt validate requests/*.json --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	result := ValidateResult{Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read request", err)
		}
		fv := FileValidation{Path: path, Valid: true}
		if err := protocol.Validate(raw); err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			var se *protocol.SchemaError
			if errors.As(err, &se) {
				fv.Error = se.Message
				fv.Details = se.Details
			}
			result.Invalid++
		}
		result.Files = append(result.Files, fv)
	}

	if opts.Format == "json" {
		if result.Invalid > 0 {
			if err := formatter.Error(CodeInvalidRequest, fmt.Sprintf("%d request(s) invalid", result.Invalid), result); err != nil {
				return err
			}
		} else if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(w, "✓ %s\n", fv.Path)
				continue
			}
			fmt.Fprintf(w, "✗ %s\n  %s\n", fv.Path, fv.Error)
			if opts.Verbose && fv.Details != "" {
				fmt.Fprintf(w, "  %s\n", fv.Details)
			}
		}
	}

	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d request(s) invalid", result.Invalid))
	}
	return nil
}
