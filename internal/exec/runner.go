// Package exec provides the internal child-process wrapper.
// This is the ONLY package in the entire service that imports os/exec.
// All process invocation MUST go through this package.
package exec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Runner spawns child processes using os/exec.CommandContext.
// This is the sole abstraction for process invocation.
type Runner struct{}

// NewRunner creates a new process runner.
func NewRunner() *Runner {
	return &Runner{}
}

// RunConfig contains configuration for running a command.
type RunConfig struct {
	// Binary is the program to execute. Resolution through PATH is
	// acceptable here; authorization happens before this layer.
	Binary string

	// Args are the command arguments (excluding the binary name).
	Args []string

	// Env is the child environment. If nil, the service environment is
	// inherited (kiosk utilities need DISPLAY/XAUTHORITY from the session).
	Env []string

	// Dir is the working directory. Empty means the service's directory.
	Dir string

	// OnStart is invoked once the process has been spawned, before waiting
	// for it. Used by the executor to register the process record.
	OnStart func(pid int)
}

// RunResult contains the outcome of a reaped process.
type RunResult struct {
	// ExitCode is the process exit code (-1 if killed by signal).
	ExitCode int

	// Signal is the signal that terminated the process, if any.
	Signal syscall.Signal

	// Stdout and Stderr are the captured output streams.
	Stdout []byte
	Stderr []byte

	// Duration is the wall clock time from spawn to reap.
	Duration time.Duration

	// Pid is the OS process ID.
	Pid int
}

// Run spawns the configured command and waits for it to be reaped. If the
// context carries a deadline, expiry kills the whole process group; without a
// deadline the wait is unbounded. The process is always reaped before Run
// returns, so a RunResult is produced even on cancellation paths (alongside
// the context error).
func (r *Runner) Run(ctx context.Context, config *RunConfig) (*RunResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Binary and Args have passed the authorization engine (or are
	// service-built trusted commands) before reaching this point; no shell
	// is involved here.
	// #nosec G204 -- command content is authorized upstream
	cmd := exec.CommandContext(ctx, config.Binary, config.Args...)

	if config.Env != nil {
		cmd.Env = config.Env
	} else {
		cmd.Env = os.Environ()
	}
	if config.Dir != "" {
		cmd.Dir = config.Dir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	// New process group so that timeout expiry can take down children the
	// command spawned (browsers fork aggressively).
	cmd.SysProcAttr = defaultSysProcAttr()
	cmd.Cancel = func() error {
		return terminateProcess(cmd)
	}
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if config.OnStart != nil {
		config.OnStart(cmd.Process.Pid)
	}

	err := cmd.Wait()
	result := &RunResult{
		Duration: time.Since(start),
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
		Pid:      cmd.Process.Pid,
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
		if sig, ok := extractSignal(cmd.ProcessState.Sys()); ok {
			result.Signal = sig
		}
	}

	// Timeout/cancellation surfaces as the context error, not as the
	// (less useful) "signal: killed" from Wait.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	return result, err
}
