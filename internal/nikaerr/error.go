// Package nikaerr defines the stable NIKA-NNN error codes surfaced across
// the engine, modeled on the teacher's runtime/agent/toolerrors shapes: a
// typed error carrying a code, a human message, and optional task/cause
// context, composable with errors.As/errors.Is via %w wrapping.
package nikaerr

import (
	"errors"
	"fmt"
)

// Code is a stable NIKA-NNN identifier embedded in every surfaced error
// message.
type Code string

const (
	CycleDetected       Code = "NIKA-020"
	BindingNotFound     Code = "NIKA-042"
	PathNotFound        Code = "NIKA-052"
	InvalidTaskID       Code = "NIKA-055"
	InvalidDefault      Code = "NIKA-056"
	InvalidJSONOutput   Code = "NIKA-060"
	UnknownAlias        Code = "NIKA-071"
	NullValue           Code = "NIKA-072"
	InvalidTraversal    Code = "NIKA-073"
	AgentParamInvalid   Code = "NIKA-113"
	ReasoningCapture    Code = "NIKA-116"
	ReasoningUnsupported Code = "NIKA-117"

	ToolPermissionDenied   Code = "NIKA-130"
	ToolFileNotFound       Code = "NIKA-131"
	ToolReadFailed         Code = "NIKA-132"
	ToolWriteFailed        Code = "NIKA-133"
	ToolFileAlreadyExists  Code = "NIKA-134"
	ToolEditFailed         Code = "NIKA-135"
	ToolOldStringNotUnique Code = "NIKA-136"
	ToolMustReadFirst      Code = "NIKA-137"
	ToolRelativePath       Code = "NIKA-138"
	ToolPathOutOfBounds    Code = "NIKA-139"
	ToolInvalidGlobPattern Code = "NIKA-140"

	ConfigInvalid Code = "NIKA-090"
)

// Error is the engine's coded error type. Message already includes
// human-readable detail; Code is kept alongside for programmatic
// inspection via As.
type Error struct {
	Code    Code
	Message string
	TaskID  string
	Cause   error
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTask returns a copy of e scoped to the given task id.
func (e *Error) WithTask(taskID string) *Error {
	cp := *e
	cp.TaskID = taskID
	return &cp
}

// Wrap returns a copy of e with cause attached for unwrapping.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s (task %s)", msg, e.TaskID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target shares the same Code, so errors.Is(err,
// nikaerr.New(nikaerr.CycleDetected, "")) works regardless of message text.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the Code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
