package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/victoralfred/kioskd/internal/shellwords"
	"github.com/victoralfred/kioskd/policy"

	internalexec "github.com/victoralfred/kioskd/internal/exec"
)

// Executor is the single abstraction for all process invocation.
// All command execution MUST go through this interface.
type Executor interface {
	// Run executes a command synchronously. The caller's context governs
	// only the wait for a concurrency permit; once spawned, the child is
	// bounded solely by its timeout (caller disconnects never kill it).
	Run(ctx context.Context, cmd *Command) (*Result, error)

	// ActiveCount reports the number of currently running child processes.
	ActiveCount() int

	// Limit reports the concurrency budget N.
	Limit() int

	// ActiveProcesses returns a snapshot of in-flight process records.
	ActiveProcesses() []ProcessRecord

	// Shutdown gracefully shuts down the executor, waiting for in-flight
	// commands to finish.
	Shutdown(ctx context.Context) error
}

// Runner abstracts the internal process runner for testing.
type Runner interface {
	Run(ctx context.Context, config *internalexec.RunConfig) (*internalexec.RunResult, error)
}

// Hook defines extension points around command execution.
type Hook interface {
	// PreExecute is called before authorization; it may replace the command.
	PreExecute(ctx context.Context, cmd *Command) (*Command, error)
	// PostExecute is called after the terminal outcome is known.
	PostExecute(ctx context.Context, cmd *Command, result *Result, err error) error
}

// Telemetry provides observability.
type Telemetry interface {
	// StartSpan starts a new trace span.
	StartSpan(ctx context.Context, name string) (context.Context, func())
	// RecordMetric records a metric.
	RecordMetric(name string, value float64, labels map[string]string)
}

// executor is the default implementation.
type executor struct {
	authorizer     policy.Decider
	runner         Runner
	permits        chan struct{}
	active         *processTable
	hooks          []Hook
	telemetry      Telemetry
	logger         *slog.Logger
	console        io.Writer
	defaultTimeout time.Duration
	forceShell     bool
	wg             sync.WaitGroup
	mu             sync.RWMutex // protects shutdown check and wg.Add
	shutdown       int32
}

// Builder creates configured Executor instances.
type Builder struct {
	authorizer     policy.Decider
	runner         Runner
	hooks          []Hook
	telemetry      Telemetry
	logger         *slog.Logger
	console        io.Writer
	maxConcurrent  int
	defaultTimeout time.Duration
	forceShell     bool
}

// NewBuilder creates a new executor builder.
func NewBuilder() *Builder {
	return &Builder{
		maxConcurrent: 5,
	}
}

// WithAuthorizer sets the authorization engine consulted for untrusted
// commands. Nil means every command is treated as denied unless trusted.
func (b *Builder) WithAuthorizer(d policy.Decider) *Builder {
	b.authorizer = d
	return b
}

// WithMaxConcurrent sets the concurrency budget N.
func (b *Builder) WithMaxConcurrent(n int) *Builder {
	b.maxConcurrent = n
	return b
}

// WithDefaultTimeout sets the timeout applied when a command carries none.
// Zero means unbounded.
func (b *Builder) WithDefaultTimeout(timeout time.Duration) *Builder {
	b.defaultTimeout = timeout
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithConsole sets the writer that mirrors child output for operator
// visibility. Defaults to stdout.
func (b *Builder) WithConsole(w io.Writer) *Builder {
	b.console = w
	return b
}

// WithHooks adds execution hooks.
func (b *Builder) WithHooks(hooks ...Hook) *Builder {
	b.hooks = append(b.hooks, hooks...)
	return b
}

// WithTelemetry sets the telemetry provider.
func (b *Builder) WithTelemetry(telemetry Telemetry) *Builder {
	b.telemetry = telemetry
	return b
}

// WithRunner overrides the process runner. Intended for tests.
func (b *Builder) WithRunner(r Runner) *Builder {
	b.runner = r
	return b
}

// WithForceShell makes every raw command line run through the shell,
// mirroring the policy override flag.
func (b *Builder) WithForceShell(force bool) *Builder {
	b.forceShell = force
	return b
}

// Build creates the executor.
func (b *Builder) Build() (Executor, error) {
	if b.maxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent must be positive, got %d", b.maxConcurrent)
	}

	runner := b.runner
	if runner == nil {
		runner = internalexec.NewRunner()
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	console := b.console
	if console == nil {
		console = os.Stdout
	}

	return &executor{
		authorizer:     b.authorizer,
		runner:         runner,
		permits:        make(chan struct{}, b.maxConcurrent),
		active:         newProcessTable(),
		hooks:          b.hooks,
		telemetry:      b.telemetry,
		logger:         logger,
		console:        console,
		defaultTimeout: b.defaultTimeout,
		forceShell:     b.forceShell,
	}, nil
}

// Run implements Executor.
func (e *executor) Run(ctx context.Context, cmd *Command) (*Result, error) {
	// Shutdown check and wg.Add must be atomic so Shutdown cannot start
	// waiting between the two.
	e.mu.RLock()
	if atomic.LoadInt32(&e.shutdown) == 1 {
		e.mu.RUnlock()
		return nil, ErrExecutorShutdown
	}
	e.wg.Add(1)
	e.mu.RUnlock()
	defer e.wg.Done()

	if e.telemetry != nil {
		var endSpan func()
		ctx, endSpan = e.telemetry.StartSpan(ctx, "executor.Run")
		defer endSpan()
	}

	commandID := uuid.New().String()

	var err error
	cmd, err = e.runPreHooks(ctx, cmd)
	if err != nil {
		return nil, err
	}

	// Authorization: untrusted commands never spawn if denied.
	if !cmd.Trusted {
		decision := e.decide(cmd)
		if !decision.Allowed {
			e.logger.Warn("policy violation",
				"op", cmd.Label,
				"command", cmd.String(),
				"rule", decision.Reason,
				"id", commandID)
			result := &Result{CommandID: commandID, Status: StatusPolicyDenied, ExitCode: -1}
			err = NewPolicyError(cmd.String())
			e.record(cmd, result)
			if hookErr := e.runPostHooks(ctx, cmd, result, err); hookErr != nil {
				return result, hookErr
			}
			return result, err
		}
	}

	binary, args, mode, err := e.resolveDispatch(cmd)
	if err != nil {
		return nil, err
	}

	// Sole pre-spawn suspension point: callers queue here once N
	// processes are running.
	select {
	case e.permits <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.permits }()

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}

	// The child's lifetime is bound to its timeout, not the request.
	execCtx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, timeout)
		defer cancel()
	}

	e.logger.Info("executing",
		"op", cmd.Label,
		"command", cmd.String(),
		"mode", string(mode),
		"id", commandID)

	label := cmd.Label
	defer e.active.remove(commandID) // unconditional on every exit path
	runResult, runErr := e.runner.Run(execCtx, &internalexec.RunConfig{
		Binary: binary,
		Args:   args,
		OnStart: func(pid int) {
			e.active.add(ProcessRecord{
				CommandID: commandID,
				Pid:       pid,
				Label:     label,
				StartedAt: time.Now(),
			})
		},
	})

	result, err := e.buildResult(cmd, runResult, runErr, commandID, mode, timeout)
	if result != nil {
		e.mirror(result)
		e.record(cmd, result)
	}
	if hookErr := e.runPostHooks(ctx, cmd, result, err); hookErr != nil {
		return result, hookErr
	}
	return result, err
}

// decide consults the authorization engine, failing closed when none is
// configured.
func (e *executor) decide(cmd *Command) policy.Decision {
	if e.authorizer == nil {
		return policy.Deny("no authorization engine configured")
	}
	return e.authorizer.Decide(cmd.program())
}

// resolveDispatch picks the execution mode. Argument-list commands always run
// directly. Raw lines run through the shell only when they carry
// shell-significant syntax or the override forces it; plain lines are
// tokenized and exec'd directly.
func (e *executor) resolveDispatch(cmd *Command) (binary string, args []string, mode DispatchMode, err error) {
	if len(cmd.Argv) > 0 {
		return cmd.Argv[0], cmd.Argv[1:], ModeDirect, nil
	}

	line := strings.TrimSpace(cmd.Line)
	if line == "" {
		return "", nil, "", fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}

	if e.forceShell || shellwords.NeedsShell(line) {
		return "/bin/sh", []string{"-c", line}, ModeShell, nil
	}

	words, splitErr := shellwords.Split(line)
	if splitErr != nil || len(words) == 0 {
		return "", nil, "", fmt.Errorf("%w: %q", ErrInvalidCommand, cmd.Line)
	}
	return words[0], words[1:], ModeDirect, nil
}

// buildResult classifies the runner outcome.
func (e *executor) buildResult(cmd *Command, runResult *internalexec.RunResult, runErr error, commandID string, mode DispatchMode, timeout time.Duration) (*Result, error) {
	if runResult == nil {
		if runErr == nil {
			runErr = errors.New("runner returned no result")
		}
		e.logger.Error("spawn failed", "op", cmd.Label, "command", cmd.String(), "error", runErr, "id", commandID)
		return nil, NewSpawnError(cmd.String(), runErr)
	}

	result := &Result{
		CommandID: commandID,
		ExitCode:  runResult.ExitCode,
		Stdout:    decodeOutput(runResult.Stdout),
		Stderr:    decodeOutput(runResult.Stderr),
		Duration:  runResult.Duration,
		Mode:      mode,
	}

	switch {
	case errors.Is(runErr, context.DeadlineExceeded):
		result.Status = StatusTimeout
		e.logger.Error("command timed out",
			"op", cmd.Label, "command", cmd.String(),
			"timeout", timeout, "mode", string(mode), "id", commandID)
		return result, NewTimeoutError(cmd.String(), timeout)

	case errors.Is(runErr, context.Canceled):
		result.Status = StatusCanceled
		e.logger.Warn("command canceled",
			"op", cmd.Label, "command", cmd.String(), "mode", string(mode), "id", commandID)
		return result, runErr

	case runResult.Signal != 0:
		result.Status = StatusKilled
		e.logger.Error("command killed",
			"op", cmd.Label, "command", cmd.String(),
			"signal", runResult.Signal.String(), "mode", string(mode), "id", commandID)
		return result, nil

	case runResult.ExitCode == 0:
		result.Status = StatusSuccess
		e.logger.Info("command succeeded",
			"op", cmd.Label, "command", cmd.String(),
			"duration", result.Duration, "mode", string(mode), "id", commandID)
		return result, nil

	default:
		result.Status = StatusError
		e.logger.Error("command failed",
			"op", cmd.Label, "command", cmd.String(),
			"exit_code", result.ExitCode, "mode", string(mode), "id", commandID)
		return result, nil
	}
}

// decodeOutput replaces invalid byte sequences and trims trailing whitespace.
// Output decoding is never fatal.
func decodeOutput(b []byte) string {
	return strings.TrimRight(strings.ToValidUTF8(string(b), "�"), " \t\r\n")
}

// mirror copies captured output lines to the operator console.
func (e *executor) mirror(result *Result) {
	for _, out := range []string{result.Stdout, result.Stderr} {
		if out == "" {
			continue
		}
		for _, line := range strings.Split(out, "\n") {
			fmt.Fprintln(e.console, " "+line)
		}
	}
}

// record emits an execution metric.
func (e *executor) record(cmd *Command, result *Result) {
	if e.telemetry == nil {
		return
	}
	e.telemetry.RecordMetric("executor.execution_duration_ms",
		float64(result.Duration.Milliseconds()), map[string]string{
			"op":     cmd.Label,
			"status": result.Status.String(),
			"mode":   string(result.Mode),
		})
}

// ActiveCount implements Executor.
func (e *executor) ActiveCount() int {
	return e.active.count()
}

// Limit implements Executor.
func (e *executor) Limit() int {
	return cap(e.permits)
}

// ActiveProcesses implements Executor.
func (e *executor) ActiveProcesses() []ProcessRecord {
	return e.active.snapshot()
}

// Shutdown implements Executor.
func (e *executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	atomic.StoreInt32(&e.shutdown, 1)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runPreHooks runs pre-execute hooks.
// Hooks are read-only after executor creation, so no lock needed.
func (e *executor) runPreHooks(ctx context.Context, cmd *Command) (*Command, error) {
	current := cmd
	for _, hook := range e.hooks {
		modified, err := hook.PreExecute(ctx, current)
		if err != nil {
			return nil, err
		}
		current = modified
	}
	return current, nil
}

// runPostHooks runs post-execute hooks.
func (e *executor) runPostHooks(ctx context.Context, cmd *Command, result *Result, execErr error) error {
	for _, hook := range e.hooks {
		if err := hook.PostExecute(ctx, cmd, result, execErr); err != nil {
			return err
		}
	}
	return nil
}
