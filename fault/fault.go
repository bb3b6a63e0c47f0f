// Package fault provides structured error types for the concierge engine.
//
// It defines the error taxonomy shared by the tool manager and the agent
// state machine: every provider-level failure is converted into a *Error
// carrying a standard code and class before it crosses a package boundary.
// The type integrates with Go's standard errors package for wrapping and
// unwrapping.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes used across the engine for consistent reporting.
const (
	// CodeUnknownTool indicates the requested tool is not in the registry.
	CodeUnknownTool = "UNKNOWN_TOOL"

	// CodeMissingArgument indicates a required tool argument could not be
	// resolved from the user's intent, even after a re-prompt.
	CodeMissingArgument = "MISSING_ARGUMENT"

	// CodeSchemaViolation indicates a registry or LLM contract mismatch,
	// such as an action outside the allowed vocabulary.
	CodeSchemaViolation = "SCHEMA_VIOLATION"

	// CodeResolutionFailed indicates argument resolution produced output
	// that could not be coerced to the tool's schema.
	CodeResolutionFailed = "RESOLUTION_FAILED"

	// CodeHandlerException wraps a provider's native failure.
	CodeHandlerException = "HANDLER_EXCEPTION"

	// CodeTimeout indicates an LLM or provider call exceeded its deadline.
	CodeTimeout = "TIMEOUT"

	// CodeNetwork indicates a network-level provider failure.
	CodeNetwork = "NETWORK_ERROR"

	// CodePermission indicates an auth or permission provider failure.
	CodePermission = "PERMISSION_DENIED"

	// CodeNotFound indicates the provider reported a missing resource.
	CodeNotFound = "NOT_FOUND"

	// CodeInvalidInput indicates bad or malformed tool arguments.
	CodeInvalidInput = "INVALID_INPUT"

	// CodeConcurrentModification indicates a rejected state race.
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// CodeConflictDetected marks a calendar overlap. It is a branch
	// requiring user choice, not a failure, but travels as an error so the
	// state machine can route it.
	CodeConflictDetected = "CONFLICT_DETECTED"

	// CodeLLMUnavailable indicates the LLM backend could not be reached.
	CodeLLMUnavailable = "LLM_UNAVAILABLE"

	// CodeLLMMalformed indicates the LLM emitted output that does not
	// match the requested structure.
	CodeLLMMalformed = "LLM_MALFORMED_OUTPUT"
)

// Class categorizes errors by their nature for recovery planning. The state
// machine uses the class to decide between retrying, surfacing to the user,
// or failing the turn.
type Class string

const (
	// ClassValidation indicates bad or missing tool arguments. Recovered
	// locally via one re-prompt; never retried at the handler level.
	ClassValidation Class = "validation"

	// ClassTransient indicates temporary failures that may resolve, such
	// as network timeouts. Retried exactly once.
	ClassTransient Class = "transient"

	// ClassPermanent indicates non-recoverable provider failures such as
	// auth errors. Surfaced to the user, never retried.
	ClassPermanent Class = "permanent"

	// ClassSchema indicates a registry or LLM contract mismatch. Fatal to
	// the turn; the session continues.
	ClassSchema Class = "schema"

	// ClassConcurrency indicates a rejected state race. The caller must
	// retry the whole turn.
	ClassConcurrency Class = "concurrency"

	// ClassConflict indicates a calendar overlap requiring user choice.
	ClassConflict Class = "conflict"
)

// Retryable reports whether a failure of this class may be retried.
func (c Class) Retryable() bool {
	return c == ClassTransient
}

// ClassForCode returns the default class for a given error code.
func ClassForCode(code string) Class {
	switch code {
	case CodeMissingArgument, CodeInvalidInput, CodeResolutionFailed:
		return ClassValidation
	case CodeTimeout, CodeNetwork, CodeLLMUnavailable:
		return ClassTransient
	case CodePermission, CodeNotFound, CodeHandlerException:
		return ClassPermanent
	case CodeSchemaViolation, CodeUnknownTool, CodeLLMMalformed:
		return ClassSchema
	case CodeConcurrentModification:
		return ClassConcurrency
	case CodeConflictDetected:
		return ClassConflict
	default:
		// Only network and timeout codes are retryable; an unknown
		// failure may have taken effect and must not be re-issued.
		return ClassPermanent
	}
}

// Error is a structured error for engine operations. It records which tool
// and operation failed, a standard code, and the underlying cause.
type Error struct {
	// Tool is the name of the tool involved, if any.
	Tool string

	// Operation is the specific operation that failed (e.g. "resolve",
	// "invoke", "decide").
	Operation string

	// Code is one of the Code* constants.
	Code string

	// Message is a human-readable description. It must never contain raw
	// provider exception text; use UserMessage for user-facing output.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]any

	// Cause is the wrapped underlying error.
	Cause error

	// Class categorizes the error; zero value means ClassForCode(Code).
	Class Class
}

// New creates a structured engine error with the default class for the code.
func New(tool, operation, code, message string) *Error {
	return &Error{
		Tool:      tool,
		Operation: operation,
		Code:      code,
		Message:   message,
		Class:     ClassForCode(code),
	}
}

// WithCause attaches the underlying error and returns the receiver.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches extra context and returns the receiver.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithClass overrides the default classification and returns the receiver.
func (e *Error) WithClass(class Class) *Error {
	e.Class = class
	return e
}

// Error formats as "tool [operation/code]: message: cause".
func (e *Error) Error() string {
	var parts []string
	scope := e.Tool
	if scope == "" {
		scope = "engine"
	}
	parts = append(parts, fmt.Sprintf("%s [%s/%s]", scope, e.Operation, e.Code))
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is treats two *Error values as equal when tool, operation and code match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Tool == t.Tool && e.Operation == t.Operation && e.Code == t.Code
}

// UserMessage returns a plain-language description safe to show to the user.
// Provider exception text and internal identifiers are never included.
func (e *Error) UserMessage() string {
	switch e.Class {
	case ClassValidation:
		return "I couldn't work out all the details I need for that. Could you rephrase with a bit more information?"
	case ClassTransient:
		return "I'm having trouble reaching that service right now. Please try again in a moment."
	case ClassPermanent:
		return "I don't have access to do that at the moment."
	case ClassConcurrency:
		return "I'm still working on your previous request. Please try again in a second."
	case ClassConflict:
		return "That time overlaps with something already on your calendar."
	default:
		return "Sorry, something went wrong while handling that. Please try again."
	}
}

// Classify extracts the class from any error. Non-engine errors default to
// transient.
func Classify(err error) Class {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Class != "" {
			return fe.Class
		}
		return ClassForCode(fe.Code)
	}
	return ClassTransient
}

// UserMessageFor returns a user-safe message for any error.
func UserMessageFor(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	return "Sorry, something went wrong while handling that. Please try again."
}
