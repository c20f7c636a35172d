package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of engine errors
type ErrorCategory string

const (
	CategoryState         ErrorCategory = "state"
	CategoryValidation    ErrorCategory = "validation"
	CategoryRule          ErrorCategory = "rule"
	CategoryEvaluation    ErrorCategory = "evaluation"
	CategoryConcurrency   ErrorCategory = "concurrency"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// State errors
	CodeDuplicateSession   ErrorCode = "duplicate_session"
	CodeInvalidTransition  ErrorCode = "invalid_transition"
	CodeUnresolvedCritical ErrorCode = "unresolved_critical"
	CodeSessionNotFound    ErrorCode = "session_not_found"
	CodeRecordNotFound     ErrorCode = "record_not_found"

	// Validation errors
	CodeMissingField ErrorCode = "missing_field"
	CodeInvalidData  ErrorCode = "invalid_data"

	// Rule errors
	CodeInvalidRule      ErrorCode = "invalid_rule"
	CodeInvalidFormula   ErrorCode = "invalid_formula"
	CodeUnknownStrategy  ErrorCode = "unknown_strategy"
	CodeInsufficientData ErrorCode = "insufficient_data"

	// Evaluation errors
	CodeFormulaUndefined ErrorCode = "formula_undefined"
	CodeEvaluationFailed ErrorCode = "evaluation_failed"

	// Concurrency errors
	CodeStaleStatus ErrorCode = "stale_status"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// EngineError is the base error type for all reconciliation engine errors
type EngineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may safely retry the operation.
// Only optimistic-concurrency conflicts are retryable; nothing in the engine
// retries automatically.
func (e *EngineError) Retryable() bool {
	return e.Category == CategoryConcurrency
}

// GetExitCode returns an appropriate process exit code for the error
func (e *EngineError) GetExitCode() int {
	switch e.Category {
	case CategoryState:
		return 2
	case CategoryValidation:
		return 3
	case CategoryConfiguration, CategoryRule:
		return 4
	case CategoryEvaluation, CategoryInternal:
		return 5
	case CategoryConcurrency:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError
func New(category ErrorCategory, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with EngineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}

	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// DuplicateSessionError indicates an active session already exists for the
// (property, period) pair
func DuplicateSessionError(propertyID, periodID, existingSessionID string) *EngineError {
	return New(CategoryState, CodeDuplicateSession,
		fmt.Sprintf("an active reconciliation session already exists for property %s period %s", propertyID, periodID)).
		WithSuggestion("complete or abort the existing session before creating a new one").
		WithContext("property_id", propertyID).
		WithContext("period_id", periodID).
		WithContext("existing_session_id", existingSessionID)
}

// SessionStateError indicates an operation was attempted in the wrong
// session state
func SessionStateError(sessionID string, current, required string) *EngineError {
	return New(CategoryState, CodeInvalidTransition,
		fmt.Sprintf("session %s is %s, operation requires %s", sessionID, current, required)).
		WithSuggestion("check the session state before invoking this operation").
		WithContext("session_id", sessionID).
		WithContext("current_state", current).
		WithContext("required_state", required)
}

// UnresolvedCriticalDiscrepancyError indicates completion was blocked by
// open critical discrepancies
func UnresolvedCriticalDiscrepancyError(sessionID string, count int) *EngineError {
	return New(CategoryState, CodeUnresolvedCritical,
		fmt.Sprintf("session %s has %d unresolved critical discrepancies", sessionID, count)).
		WithSuggestion("resolve all critical discrepancies before completing the session").
		WithContext("session_id", sessionID).
		WithContext("unresolved_critical", count)
}

// SessionNotFoundError indicates the session ID is unknown
func SessionNotFoundError(sessionID string) *EngineError {
	return New(CategoryState, CodeSessionNotFound,
		fmt.Sprintf("session not found: %s", sessionID)).
		WithContext("session_id", sessionID)
}

// RecordNotFoundError indicates a match or discrepancy ID is unknown
func RecordNotFoundError(kind, id string) *EngineError {
	return New(CategoryState, CodeRecordNotFound,
		fmt.Sprintf("%s not found: %s", kind, id)).
		WithContext("record_kind", kind).
		WithContext("record_id", id)
}

// ConflictError indicates an optimistic-concurrency failure on an auditor
// action; the caller may retry with the current status
func ConflictError(recordID, expected, actual string) *EngineError {
	return New(CategoryConcurrency, CodeStaleStatus,
		fmt.Sprintf("record %s status is %s, expected %s", recordID, actual, expected)).
		WithSuggestion("re-read the record and retry with its current status").
		WithContext("record_id", recordID).
		WithContext("expected_status", expected).
		WithContext("actual_status", actual)
}

// RuleError creates a rule-configuration error
func RuleError(code ErrorCode, ruleName string, err error) *EngineError {
	var message string
	switch code {
	case CodeInvalidRule:
		message = fmt.Sprintf("invalid rule definition: %s", ruleName)
	case CodeInvalidFormula:
		message = fmt.Sprintf("invalid formula in rule %s", ruleName)
	case CodeUnknownStrategy:
		message = fmt.Sprintf("unknown matching strategy in rule %s", ruleName)
	default:
		message = fmt.Sprintf("rule error in %s", ruleName)
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryRule, code, message)
	} else {
		result = New(CategoryRule, code, message)
	}

	return result.
		WithSuggestion("check the rule definition against the rule schema").
		WithContext("rule", ruleName)
}

// EvaluationError creates a per-rule evaluation error. These are caught by
// the orchestrator, logged, and skipped without aborting the run.
func EvaluationError(code ErrorCode, ruleName string, err error) *EngineError {
	var message string
	switch code {
	case CodeFormulaUndefined:
		message = fmt.Sprintf("formula undefined for rule %s", ruleName)
	default:
		message = fmt.Sprintf("evaluation failed for rule %s", ruleName)
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryEvaluation, code, message)
	} else {
		result = New(CategoryEvaluation, code, message)
	}

	return result.WithContext("rule", ruleName)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *EngineError {
	var message string
	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
	case CodeInvalidData:
		message = fmt.Sprintf("invalid data in field '%s': %v", field, value)
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, err error) *EngineError {
	var message string
	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s'", setting)
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
	}

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.WithContext("setting", setting)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *EngineError {
	result := Wrap(err, CategoryInternal, CodeUnexpectedError,
		fmt.Sprintf("unexpected error during %s", operation))
	if result == nil {
		result = New(CategoryInternal, CodeUnexpectedError,
			fmt.Sprintf("unexpected error during %s", operation))
	}
	return result.WithContext("operation", operation)
}

// Utility functions

// IsEngineError checks if an error is an EngineError
func IsEngineError(err error) bool {
	_, ok := AsEngineError(err)
	return ok
}

// AsEngineError extracts an EngineError from an error chain
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

// HasCode reports whether the error chain contains an EngineError with the
// given code
func HasCode(err error, code ErrorCode) bool {
	engineErr, ok := AsEngineError(err)
	return ok && engineErr.Code == code
}

// IsConflict reports whether the error is a retryable concurrency conflict
func IsConflict(err error) bool {
	engineErr, ok := AsEngineError(err)
	return ok && engineErr.Retryable()
}
