package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/blockrt/internal/engine"
	"github.com/roach88/blockrt/internal/protocol"
)

// ErrorCode identifies a failure in JSON output. Engine validation failures
// keep their own code (ROOT_COUNT, HOOK_COUNT_MISMATCH, ...); everything
// else uses one of the E_* codes below.
type ErrorCode string

const (
	CodeHandler          ErrorCode = "E_HANDLER"
	CodeInvalidRequest   ErrorCode = "E_INVALID_REQUEST"
	CodeTestFailed       ErrorCode = "E_TEST_FAILED"
	CodeNondeterministic ErrorCode = "E_NONDETERMINISTIC"
	CodeCommand          ErrorCode = "E_COMMAND"
)

// ErrorCodeOf classifies err for output.
func ErrorCodeOf(err error) ErrorCode {
	var (
		ve *engine.ValidationError
		he *engine.HandlerError
		se *protocol.SchemaError
	)
	switch {
	case errors.As(err, &ve):
		return ErrorCode(ve.Code)
	case errors.As(err, &he):
		return CodeHandler
	case errors.As(err, &se):
		return CodeInvalidRequest
	default:
		return CodeCommand
	}
}

// CLIResponse is the envelope of every JSON result.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failure in a CLIResponse.
type CLIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// OutputFormatter writes command results as JSON envelopes or text.
// Diagnostics go to ErrWriter so they never interleave with JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool {
	return f.Format == "json"
}

// Respond encodes resp as indented JSON.
func (f *OutputFormatter) Respond(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Success writes data. Text mode prints it with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.Respond(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure with the given code. Details are always part of
// the JSON envelope but only printed in verbose text mode.
func (f *OutputFormatter) Error(code ErrorCode, message string, details any) error {
	if f.isJSON() {
		return f.Respond(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail writes err under the code ErrorCodeOf assigns it.
func (f *OutputFormatter) Fail(err error, details any) error {
	return f.Error(ErrorCodeOf(err), err.Error(), details)
}

// VerboseLog prints a diagnostic line in verbose mode.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
	}
}

// GetErrWriter returns ErrWriter, falling back to Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
