package runtime

import (
	"context"
	"errors"
	"fmt"
)

// FlowErrorType classifies an error and decides whether it is retried.
type FlowErrorType string

const (
	// ErrorTypeConfiguration covers missing credentials, platforms and
	// methods. Never retried.
	ErrorTypeConfiguration FlowErrorType = "configuration"
	// ErrorTypeValidation covers malformed blueprints and step inputs.
	// Never retried.
	ErrorTypeValidation FlowErrorType = "validation"
	// ErrorTypeTransient covers non-2xx responses and network failures.
	ErrorTypeTransient FlowErrorType = "transient"
	// ErrorTypeCircuitOpen is a call rejected by an open circuit breaker.
	ErrorTypeCircuitOpen FlowErrorType = "circuit_open"
	// ErrorTypeExpression is an evaluator failure. The evaluator downgrades
	// these to false; the type exists for reporting.
	ErrorTypeExpression FlowErrorType = "expression"
	// ErrorTypeCancelled signals the run's context ended.
	ErrorTypeCancelled FlowErrorType = "cancelled"
)

// FlowErrorCode identifies known engine error codes.
type FlowErrorCode string

const (
	ErrorCodeInvalidBlueprint   FlowErrorCode = "INVALID_BLUEPRINT"
	ErrorCodeInvalidStepConfig  FlowErrorCode = "INVALID_STEP_CONFIG"
	ErrorCodeUnknownStepType    FlowErrorCode = "UNKNOWN_STEP_TYPE"
	ErrorCodeInvalidLoopSource  FlowErrorCode = "INVALID_LOOP_SOURCE"
	ErrorCodeMissingCredentials FlowErrorCode = "MISSING_CREDENTIALS"
	ErrorCodeUnknownMethod      FlowErrorCode = "UNKNOWN_METHOD"
	ErrorCodeAgentNotFound      FlowErrorCode = "AGENT_NOT_FOUND"
	ErrorCodeAgentFailed        FlowErrorCode = "AGENT_FAILED"
	ErrorCodeHTTPStatus         FlowErrorCode = "HTTP_STATUS"
	ErrorCodeNetwork            FlowErrorCode = "NETWORK_ERROR"
	ErrorCodeRetryExhausted     FlowErrorCode = "RETRY_EXHAUSTED"
	ErrorCodeCircuitOpen        FlowErrorCode = "CIRCUIT_OPEN"
	ErrorCodeContextCancelled   FlowErrorCode = "CONTEXT_CANCELLED"
	ErrorCodeDeadlineExceeded   FlowErrorCode = "DEADLINE_EXCEEDED"
	ErrorCodeStore              FlowErrorCode = "STORE_ERROR"
)

// FlowError is the canonical error propagated through a blueprint run.
type FlowError struct {
	Type        FlowErrorType  `json:"type"`
	Code        FlowErrorCode  `json:"code"`
	Message     string         `json:"message"`
	Step        string         `json:"step,omitempty"`
	Integration string         `json:"integration,omitempty"`
	Cause       error          `json:"-"`
	Retries     int            `json:"retries"`
	Meta        map[string]any `json:"meta,omitempty"`
}

func (e *FlowError) Error() string {
	msg := fmt.Sprintf("[%s/%s] %s (step: %s, retries: %d)", e.Type, e.Code, e.Message, e.Step, e.Retries)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the resilience layer may retry the operation.
func (e *FlowError) Retryable() bool {
	return e.Type == ErrorTypeTransient
}

// WithStep sets the step id when it is not already known.
func (e *FlowError) WithStep(step string) *FlowError {
	if e.Step == "" {
		e.Step = step
	}
	return e
}

func (e *FlowError) WithIntegration(name string) *FlowError {
	e.Integration = name
	return e
}

func (e *FlowError) WithMeta(key string, value any) *FlowError {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// ToMap converts the error to a map suitable for storing in the variable bag.
func (e *FlowError) ToMap() map[string]any {
	m := map[string]any{
		"type":    string(e.Type),
		"code":    string(e.Code),
		"message": e.Message,
		"step":    e.Step,
		"retries": e.Retries,
	}
	if e.Cause != nil {
		m["cause"] = e.Cause.Error()
	}
	return m
}

func newFlowError(t FlowErrorType, code FlowErrorCode, msg string, cause error) *FlowError {
	return &FlowError{Type: t, Code: code, Message: msg, Cause: cause}
}

func NewConfigurationError(code FlowErrorCode, msg string, cause error) *FlowError {
	return newFlowError(ErrorTypeConfiguration, code, msg, cause)
}

func NewValidationError(code FlowErrorCode, msg string, cause error) *FlowError {
	return newFlowError(ErrorTypeValidation, code, msg, cause)
}

func NewTransientError(code FlowErrorCode, msg string, cause error) *FlowError {
	return newFlowError(ErrorTypeTransient, code, msg, cause)
}

func NewCircuitOpenError(integration string, cause error) *FlowError {
	return newFlowError(ErrorTypeCircuitOpen, ErrorCodeCircuitOpen,
		fmt.Sprintf("circuit open for %s", integration), cause).WithIntegration(integration)
}

// NewCancelledError wraps a context error.
func NewCancelledError(err error) *FlowError {
	code := ErrorCodeContextCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		code = ErrorCodeDeadlineExceeded
	}
	return newFlowError(ErrorTypeCancelled, code, "run cancelled", err)
}

// AsFlowError extracts the outermost *FlowError from err's chain.
func AsFlowError(err error) (*FlowError, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// ErrorTypeOf returns the type of the first FlowError in err's chain, or
// the empty type.
func ErrorTypeOf(err error) FlowErrorType {
	if fe, ok := AsFlowError(err); ok {
		return fe.Type
	}
	return ""
}

// IsCancelled reports whether err stems from a cancelled or expired context.
func IsCancelled(err error) bool {
	return ErrorTypeOf(err) == ErrorTypeCancelled ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
