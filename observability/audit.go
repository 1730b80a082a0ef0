package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/victoralfred/gowritter/safepath"
	"github.com/victoralfred/kioskd/executor"
)

// AuditLogger provides append-only audit logging of command executions.
type AuditLogger interface {
	// Log logs an audit event.
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the audit logger.
	Close() error
}

// AuditEvent represents one audit log entry.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	ID        string         `json:"id"`
	Type      AuditEventType `json:"type"`
	Op        string         `json:"op,omitempty"`
	Command   string         `json:"command"`
	Mode      string         `json:"mode,omitempty"`
	Status    string         `json:"status"`
	ExitCode  int            `json:"exit_code"`
	Trusted   bool           `json:"trusted"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// AuditEventExecution is a command execution event.
	AuditEventExecution AuditEventType = "execution"

	// AuditEventPolicyDenied is a policy denial event.
	AuditEventPolicyDenied AuditEventType = "policy_denied"
)

// AuditLogLevel determines what events to log.
type AuditLogLevel string

const (
	// AuditLogAll logs all events.
	AuditLogAll AuditLogLevel = "all"

	// AuditLogFailures logs only failures.
	AuditLogFailures AuditLogLevel = "failures"

	// AuditLogPolicyViolations logs only policy denials.
	AuditLogPolicyViolations AuditLogLevel = "policy_violations"
)

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled  bool
	LogLevel AuditLogLevel
	BasePath string
	FilePath string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:  true,
		LogLevel: AuditLogAll,
		BasePath: "/var/log",
		FilePath: "kioskd/audit.log",
	}
}

// fileAuditLogger implements AuditLogger using gowritter.
type fileAuditLogger struct {
	safePath *safepath.SafePath
	config   AuditConfig
	mu       sync.Mutex
}

// NewFileAuditLogger creates a new file-based audit logger.
func NewFileAuditLogger(config AuditConfig) (AuditLogger, error) {
	sp, err := safepath.New(config.BasePath)
	if err != nil {
		return nil, fmt.Errorf("creating safe path: %w", err)
	}
	return &fileAuditLogger{config: config, safePath: sp}, nil
}

// Log implements AuditLogger.Log.
func (l *fileAuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	if !l.config.Enabled || !l.shouldLog(event) {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.safePath.AppendFile(l.config.FilePath, data, 0o644); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}

// Close implements AuditLogger.Close.
func (l *fileAuditLogger) Close() error {
	return nil
}

func (l *fileAuditLogger) shouldLog(event *AuditEvent) bool {
	switch l.config.LogLevel {
	case AuditLogFailures:
		return event.Status != "success"
	case AuditLogPolicyViolations:
		return event.Type == AuditEventPolicyDenied
	default:
		return true
	}
}

// CreateAuditEvent creates an audit event from an execution outcome.
func CreateAuditEvent(cmd *executor.Command, result *executor.Result, execErr error) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now(),
		Type:      AuditEventExecution,
		Op:        cmd.Label,
		Command:   cmd.String(),
		Trusted:   cmd.Trusted,
	}
	if execErr != nil {
		event.Error = execErr.Error()
	}
	if result != nil {
		event.ID = result.CommandID
		event.Status = result.Status.String()
		event.ExitCode = result.ExitCode
		event.Mode = string(result.Mode)
		event.Duration = result.Duration
		if result.Status == executor.StatusPolicyDenied {
			event.Type = AuditEventPolicyDenied
		}
	}
	return event
}

// AuditHook adapts an AuditLogger into an executor hook so every terminal
// outcome, including policy denials, lands in the audit trail.
type AuditHook struct {
	logger AuditLogger
}

// NewAuditHook creates the hook.
func NewAuditHook(logger AuditLogger) *AuditHook {
	return &AuditHook{logger: logger}
}

// PreExecute implements executor.Hook.
func (h *AuditHook) PreExecute(ctx context.Context, cmd *executor.Command) (*executor.Command, error) {
	return cmd, nil
}

// PostExecute implements executor.Hook. Audit failures never fail the
// command; the event is best-effort.
func (h *AuditHook) PostExecute(ctx context.Context, cmd *executor.Command, result *executor.Result, execErr error) error {
	_ = h.logger.Log(ctx, CreateAuditEvent(cmd, result, execErr))
	return nil
}
