package tactile

import (
	"io"
	"os"
	"time"
)

// ExecutorConfig configures the executors.
type ExecutorConfig struct {
	// WorkingDir pins the shell working directory. Empty captures the
	// process working directory once, at construction.
	WorkingDir string

	// MaxOutputBytes caps stdout and stderr capture, each (default 10MB).
	MaxOutputBytes int64

	// Stdout and Stderr receive script prints (default os.Stdout/os.Stderr).
	Stdout io.Writer
	Stderr io.Writer

	// Unrestricted gives script fragments the whole standard library.
	Unrestricted bool

	// AuditCallback is called for each execution event (optional).
	AuditCallback func(AuditEvent)
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxOutputBytes: 10 * 1024 * 1024,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		Unrestricted:   true,
	}
}

// AuditEventType identifies an execution lifecycle event.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventFailed   AuditEventType = "failed"
	AuditEventKilled   AuditEventType = "killed"
)

// AuditEvent records one step of a command's lifecycle.
type AuditEvent struct {
	Type      AuditEventType
	Timestamp time.Time
	Executor  string
	Command   string
	ExitCode  int
	Duration  time.Duration
	Error     string
}
