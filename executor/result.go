package executor

import "time"

// Result contains the outcome of one command execution.
type Result struct {
	// CommandID uniquely identifies this execution for logs and audit.
	CommandID string

	// Status classifies the terminal outcome.
	Status ExitStatus

	// ExitCode is the process exit code (-1 when killed before exiting).
	ExitCode int

	// Stdout and Stderr hold the captured output, decoded with invalid
	// byte sequences replaced and trailing whitespace trimmed.
	Stdout string
	Stderr string

	// Duration is the wall clock time from spawn to reap.
	Duration time.Duration

	// Mode is the resolved dispatch mode.
	Mode DispatchMode
}

// Success reports whether the command completed with exit code zero.
func (r *Result) Success() bool {
	return r.Status == StatusSuccess
}

// ExitStatus represents the terminal outcome of command execution.
type ExitStatus int

const (
	// StatusSuccess indicates successful execution (exit code 0).
	StatusSuccess ExitStatus = iota
	// StatusError indicates a non-zero exit code.
	StatusError
	// StatusTimeout indicates the timeout expired and the process was killed.
	StatusTimeout
	// StatusCanceled indicates the execution context was canceled.
	StatusCanceled
	// StatusKilled indicates the process was killed by an external signal.
	StatusKilled
	// StatusPolicyDenied indicates the command was denied before spawning.
	StatusPolicyDenied
)

// String returns the string representation of the exit status.
func (s ExitStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	case StatusCanceled:
		return "canceled"
	case StatusKilled:
		return "killed"
	case StatusPolicyDenied:
		return "policy_denied"
	default:
		return "unknown"
	}
}
