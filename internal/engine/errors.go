package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/blockrt/internal/protocol"
)

// ValidationError reports a malformed tree, hook, or request. Validation
// errors are always fatal: they propagate to the caller before any state is
// returned and are never recovered by rollback.
type ValidationError struct {
	// Code identifies the error category.
	Code ValidationErrorCode

	// Path is the component path or hook id where the problem was found.
	Path string

	// Message is a human-readable description.
	Message string
}

// ValidationErrorCode categorizes validation errors.
type ValidationErrorCode string

const (
	// ErrCodeInvalidNamespace indicates an empty hook namespace or one that
	// contains a reserved delimiter.
	ErrCodeInvalidNamespace ValidationErrorCode = "INVALID_NAMESPACE"

	// ErrCodeInvalidName indicates a component name or tag containing a
	// reserved delimiter.
	ErrCodeInvalidName ValidationErrorCode = "INVALID_NAME"

	// ErrCodeHookCountMismatch indicates a component registered a different
	// number of hooks than on a previous pass.
	ErrCodeHookCountMismatch ValidationErrorCode = "HOOK_COUNT_MISMATCH"

	// ErrCodeInvalidChannel indicates an empty or non-alphanumeric channel.
	ErrCodeInvalidChannel ValidationErrorCode = "INVALID_CHANNEL"

	// ErrCodeDuplicateChannel indicates two channel hooks in one tree share
	// a channel name.
	ErrCodeDuplicateChannel ValidationErrorCode = "DUPLICATE_CHANNEL"

	// ErrCodeRootCount indicates the root did not render exactly one block.
	ErrCodeRootCount ValidationErrorCode = "ROOT_COUNT"

	// ErrCodeAsyncComponent indicates a component returned a Pending value.
	ErrCodeAsyncComponent ValidationErrorCode = "ASYNC_COMPONENT"

	// ErrCodeInvalidElement indicates an element the renderer cannot handle.
	ErrCodeInvalidElement ValidationErrorCode = "INVALID_ELEMENT"

	// ErrCodeInvalidRequest indicates a malformed request or event.
	ErrCodeInvalidRequest ValidationErrorCode = "INVALID_REQUEST"
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsHookCountError reports whether err is a hook count mismatch.
func IsHookCountError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code == ErrCodeHookCountMismatch
	}
	return false
}

// HandlerError wraps a failure raised while rendering a component or
// applying an event to a hook. Panics in user code are converted into
// HandlerErrors at the pass boundary.
type HandlerError struct {
	// Hook is the hook id or component path that failed.
	Hook string

	// Event is the kind of event being applied, or KindUnknown when the
	// failure happened during rendering.
	Event protocol.EventKind

	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Event == protocol.KindUnknown {
		return fmt.Sprintf("render %s: %v", e.Hook, e.Err)
	}
	return fmt.Sprintf("handle %s event for %s: %v", e.Event, e.Hook, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsHandlerError reports whether err wraps a *HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
