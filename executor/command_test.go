package executor

import (
	"errors"
	"testing"
	"time"
)

func TestCommandBuilder(t *testing.T) {
	cmd, err := NewCommand("xset s off").
		WithTimeout(5 * time.Second).
		Trusted().
		WithLabel("display_on").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cmd.Line != "xset s off" || cmd.Timeout != 5*time.Second || !cmd.Trusted || cmd.Label != "display_on" {
		t.Errorf("built command = %+v", cmd)
	}

	argv, err := NewArgvCommand("xdotool", "key", "ctrl+r").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(argv.Argv) != 3 || argv.Trusted {
		t.Errorf("built command = %+v", argv)
	}
}

func TestCommandBuilderErrors(t *testing.T) {
	tests := []struct {
		name    string
		builder *CommandBuilder
	}{
		{"empty line", NewCommand("")},
		{"whitespace line", NewCommand("   ")},
		{"empty argv", NewArgvCommand()},
		{"empty program name", NewArgvCommand("", "arg")},
		{"negative timeout", NewCommand("ls").WithTimeout(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.builder.Build(); !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("error = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestMustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustBuild on an invalid command did not panic")
		}
	}()
	NewCommand("").MustBuild()
}

func TestCommandString(t *testing.T) {
	if got := NewCommand("ls -la").MustBuild().String(); got != "ls -la" {
		t.Errorf("String = %q", got)
	}
	if got := NewArgvCommand("xset", "s", "off").MustBuild().String(); got != "xset s off" {
		t.Errorf("String = %q", got)
	}
}

func TestExitStatusString(t *testing.T) {
	tests := []struct {
		status ExitStatus
		want   string
	}{
		{StatusSuccess, "success"},
		{StatusError, "error"},
		{StatusTimeout, "timeout"},
		{StatusCanceled, "canceled"},
		{StatusKilled, "killed"},
		{StatusPolicyDenied, "policy_denied"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("ExitStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}
