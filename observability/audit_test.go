package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/victoralfred/kioskd/executor"
)

func TestFileAuditLogger(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileAuditLogger(AuditConfig{
		Enabled:  true,
		LogLevel: AuditLogAll,
		BasePath: dir,
		FilePath: "audit.log",
	})
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	defer logger.Close()

	events := []*AuditEvent{
		{Timestamp: time.Now(), ID: "a", Type: AuditEventExecution, Command: "xset s off", Status: "success"},
		{Timestamp: time.Now(), ID: "b", Type: AuditEventPolicyDenied, Command: "rm -rf /", Status: "policy_denied"},
	}
	for _, ev := range events {
		if err := logger.Log(context.Background(), ev); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("opening audit log: %v", err)
	}
	defer f.Close()

	var got []AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line is not JSON: %v (%s)", err, scanner.Text())
		}
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("logged %d events, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].Type != AuditEventPolicyDenied {
		t.Errorf("events = %+v", got)
	}
}

func TestAuditLogLevels(t *testing.T) {
	success := &AuditEvent{Type: AuditEventExecution, Status: "success"}
	failure := &AuditEvent{Type: AuditEventExecution, Status: "error"}
	denied := &AuditEvent{Type: AuditEventPolicyDenied, Status: "policy_denied"}

	tests := []struct {
		level AuditLogLevel
		event *AuditEvent
		want  bool
	}{
		{AuditLogAll, success, true},
		{AuditLogAll, denied, true},
		{AuditLogFailures, success, false},
		{AuditLogFailures, failure, true},
		{AuditLogFailures, denied, true},
		{AuditLogPolicyViolations, failure, false},
		{AuditLogPolicyViolations, denied, true},
	}
	for _, tt := range tests {
		l := &fileAuditLogger{config: AuditConfig{Enabled: true, LogLevel: tt.level}}
		if got := l.shouldLog(tt.event); got != tt.want {
			t.Errorf("level %s, status %s: shouldLog = %v, want %v",
				tt.level, tt.event.Status, got, tt.want)
		}
	}
}

func TestCreateAuditEvent(t *testing.T) {
	cmd := executor.NewCommand("ls -la").WithLabel("run_command").MustBuild()

	t.Run("execution", func(t *testing.T) {
		result := &executor.Result{
			CommandID: "id-1",
			Status:    executor.StatusSuccess,
			ExitCode:  0,
			Mode:      executor.ModeDirect,
			Duration:  time.Second,
		}
		ev := CreateAuditEvent(cmd, result, nil)
		if ev.Type != AuditEventExecution || ev.ID != "id-1" || ev.Op != "run_command" {
			t.Errorf("event = %+v", ev)
		}
		if ev.Status != "success" || ev.Mode != "direct" || ev.Error != "" {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("policy denial", func(t *testing.T) {
		result := &executor.Result{CommandID: "id-2", Status: executor.StatusPolicyDenied, ExitCode: -1}
		ev := CreateAuditEvent(cmd, result, executor.NewPolicyError(cmd.String()))
		if ev.Type != AuditEventPolicyDenied {
			t.Errorf("type = %v, want policy_denied", ev.Type)
		}
		if ev.Error == "" {
			t.Error("denial error missing from event")
		}
	})
}

type failingAuditLogger struct{}

func (failingAuditLogger) Log(context.Context, *AuditEvent) error { return errors.New("disk full") }
func (failingAuditLogger) Close() error                           { return nil }

func TestAuditHookBestEffort(t *testing.T) {
	hook := NewAuditHook(failingAuditLogger{})
	cmd := executor.NewCommand("ls").Trusted().MustBuild()

	if _, err := hook.PreExecute(context.Background(), cmd); err != nil {
		t.Fatalf("PreExecute: %v", err)
	}
	result := &executor.Result{Status: executor.StatusSuccess}
	if err := hook.PostExecute(context.Background(), cmd, result, nil); err != nil {
		t.Errorf("audit failure must not fail the command: %v", err)
	}
}

func TestNoopTelemetry(t *testing.T) {
	tel := Noop()
	ctx, end := tel.StartSpan(context.Background(), "test")
	if ctx == nil {
		t.Fatal("StartSpan returned nil context")
	}
	end()
	tel.RecordMetric("m", 1.0, map[string]string{"k": "v"})
	tel.RecordCounter("c", nil)
}
