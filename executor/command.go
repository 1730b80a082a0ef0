// Package executor provides the process execution engine: it spawns, bounds,
// times out, and reaps child processes on behalf of registered operations.
package executor

import (
	"fmt"
	"strings"
	"time"
)

// Command represents one command to execute. Exactly one of Line and Argv is
// set: Line is raw shell-syntax text, Argv is an explicit argument list that
// never touches a shell interpreter. Commands are immutable once built.
type Command struct {
	// Line is the raw command text. Whether it runs through a shell depends
	// on its content (see DispatchMode).
	Line string

	// Argv is the explicit argument list form, argv[0] being the program.
	Argv []string

	// Timeout is the maximum execution time. Zero means the executor's
	// default; negative is invalid.
	Timeout time.Duration

	// Trusted marks commands constructed by the service itself. Trusted
	// commands bypass the authorization engine. Never set it for commands
	// derived from caller input.
	Trusted bool

	// Label names the originating operation for logging and audit.
	Label string
}

// DispatchMode is how a command reaches the OS.
type DispatchMode string

const (
	// ModeDirect executes the program directly, no shell involved.
	ModeDirect DispatchMode = "direct"

	// ModeShell executes the line through /bin/sh -c.
	ModeShell DispatchMode = "shell"
)

// CommandBuilder constructs commands with a fluent interface.
type CommandBuilder struct {
	cmd *Command
	err error
}

// NewCommand creates a builder for a raw command line.
func NewCommand(line string) *CommandBuilder {
	return &CommandBuilder{cmd: &Command{Line: line}}
}

// NewArgvCommand creates a builder for an explicit argument-list command.
func NewArgvCommand(argv ...string) *CommandBuilder {
	return &CommandBuilder{cmd: &Command{Argv: argv}}
}

// WithTimeout sets the execution timeout.
func (b *CommandBuilder) WithTimeout(timeout time.Duration) *CommandBuilder {
	if b.err != nil {
		return b
	}
	if timeout < 0 {
		b.err = fmt.Errorf("%w: timeout must not be negative", ErrInvalidCommand)
		return b
	}
	b.cmd.Timeout = timeout
	return b
}

// Trusted marks the command as service-built, bypassing authorization.
func (b *CommandBuilder) Trusted() *CommandBuilder {
	if b.err != nil {
		return b
	}
	b.cmd.Trusted = true
	return b
}

// WithLabel names the originating operation.
func (b *CommandBuilder) WithLabel(label string) *CommandBuilder {
	if b.err != nil {
		return b
	}
	b.cmd.Label = label
	return b
}

// Build validates and returns the command.
func (b *CommandBuilder) Build() (*Command, error) {
	if b.err != nil {
		return nil, b.err
	}

	hasLine := strings.TrimSpace(b.cmd.Line) != ""
	hasArgv := len(b.cmd.Argv) > 0
	switch {
	case hasLine && hasArgv:
		return nil, fmt.Errorf("%w: line and argv are mutually exclusive", ErrInvalidCommand)
	case !hasLine && !hasArgv:
		return nil, fmt.Errorf("%w: empty command", ErrInvalidCommand)
	case hasArgv && b.cmd.Argv[0] == "":
		return nil, fmt.Errorf("%w: empty program name", ErrInvalidCommand)
	}

	return b.cmd, nil
}

// MustBuild validates and returns the command, panicking on error. Use only
// for commands the service constructs itself.
func (b *CommandBuilder) MustBuild() *Command {
	cmd, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cmd
}

// String returns a loggable representation of the command.
func (c *Command) String() string {
	if len(c.Argv) > 0 {
		return strings.Join(c.Argv, " ")
	}
	return c.Line
}

// program returns the text the authorization engine should judge.
func (c *Command) program() string {
	if len(c.Argv) > 0 {
		return c.Argv[0]
	}
	return c.Line
}
