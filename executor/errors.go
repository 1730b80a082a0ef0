package executor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common conditions.
var (
	// ErrPolicyDenied indicates the command was denied by the policy.
	ErrPolicyDenied = errors.New("command denied by policy")

	// ErrTimeout indicates the command exceeded its timeout.
	ErrTimeout = errors.New("command timed out")

	// ErrInvalidCommand indicates invalid command configuration.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrExecutorShutdown indicates the executor has been shut down.
	ErrExecutorShutdown = errors.New("executor shutdown")
)

// ErrorCode provides structured error classification.
type ErrorCode string

const (
	// ErrCodePolicyViolation indicates a policy violation.
	ErrCodePolicyViolation ErrorCode = "POLICY_VIOLATION"

	// ErrCodeValidationFailed indicates command validation failure.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrCodeExecutionFailed indicates the process could not run.
	ErrCodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// ErrCodeTimeout indicates timeout.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeInternalError indicates an internal error.
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ExecutionError provides detailed error information.
type ExecutionError struct {
	// Op is the operation that failed.
	Op string

	// Command is a loggable rendering of the command involved.
	Command string

	// Err is the underlying error.
	Err error

	// Code is the structured error code.
	Code ErrorCode

	// Details provides human-readable details safe to surface to callers.
	Details string
}

// Error returns the error message.
func (e *ExecutionError) Error() string {
	if e.Details != "" {
		return e.Details
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewPolicyError creates a policy violation error. The exact rule stays in
// server-side logs; the caller-facing detail is generic.
func NewPolicyError(command string) error {
	return &ExecutionError{
		Op:      "authorize",
		Command: command,
		Err:     ErrPolicyDenied,
		Code:    ErrCodePolicyViolation,
		Details: "command not permitted by policy",
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(command string, timeout time.Duration) error {
	return &ExecutionError{
		Op:      "execute",
		Command: command,
		Err:     ErrTimeout,
		Code:    ErrCodeTimeout,
		Details: fmt.Sprintf("command timed out after %ds", int(timeout.Seconds())),
	}
}

// NewSpawnError creates an execution failure error for a process that never
// produced an exit status.
func NewSpawnError(command string, err error) error {
	return &ExecutionError{
		Op:      "spawn",
		Command: command,
		Err:     err,
		Code:    ErrCodeExecutionFailed,
		Details: "command could not be started",
	}
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Code
	}
	return ErrCodeInternalError
}
