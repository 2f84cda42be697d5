package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"codeprompt/internal/logging"
	"codeprompt/internal/vars"
)

// ciEnv is always appended to a child environment.
const ciEnv = "CI=true"

var _ AuditedExecutor = (*ShellExecutor)(nil)

// ShellExecutor runs fragment bodies through the platform shell.
// There is no sandboxing.
type ShellExecutor struct {
	mu      sync.RWMutex
	workDir string
	maxOut  int64

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewShellExecutor creates a shell executor with default config, pinned to
// the current working directory.
func NewShellExecutor() (*ShellExecutor, error) {
	return NewShellExecutorWithConfig(DefaultExecutorConfig())
}

// NewShellExecutorWithConfig creates a shell executor with custom config.
// The working directory is captured here and never changes afterwards.
func NewShellExecutorWithConfig(config ExecutorConfig) (*ShellExecutor, error) {
	dir := config.WorkingDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to capture working directory: %w", err)
		}
		dir = wd
	}
	maxOut := config.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = DefaultExecutorConfig().MaxOutputBytes
	}

	logging.TactileDebug("Creating ShellExecutor: dir=%s, maxOutput=%d bytes", dir, maxOut)
	return &ShellExecutor{
		workDir:       dir,
		maxOut:        maxOut,
		auditCallback: config.AuditCallback,
	}, nil
}

// Name returns the executor name.
func (e *ShellExecutor) Name() string { return "shell" }

// WorkingDir returns the directory commands run in.
func (e *ShellExecutor) WorkingDir() string { return e.workDir }

// SetAuditCallback sets the callback for audit events.
func (e *ShellExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

// emitAudit emits an audit event if a callback is registered.
func (e *ShellExecutor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		event.Executor = e.Name()
		callback(event)
	}
}

// Execute substitutes placeholders in body, runs it and returns
// {"output": stdout+stderr}.
func (e *ShellExecutor) Execute(ctx context.Context, v vars.Map, body string) (vars.Map, error) {
	if body == "" {
		return nil, ErrEmptyCommand
	}

	script, err := Substitute(body, v)
	if err != nil {
		logging.TactileWarn("Placeholder substitution failed: %v", err)
		return nil, err
	}

	output, err := e.Run(ctx, v, script)
	if err != nil {
		return nil, err
	}
	return vars.Map{vars.KeyOutput: output}, nil
}

// Run spawns script through the platform shell with the environment built
// from v and waits for it. Exit status 0 returns stdout followed by stderr;
// any other status returns *CommandError carrying the same output.
func (e *ShellExecutor) Run(ctx context.Context, v vars.Map, script string) (string, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Shell command execution")
	defer timer.Stop()

	logging.TactileDebug("Executing in %s: %s", e.workDir, firstLine(script))

	cmd := shellCommand(ctx, script)
	cmd.Dir = e.workDir
	cmd.Env = BuildEnvironment(os.Environ(), v)
	cmd.WaitDelay = time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: e.maxOut}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: e.maxOut}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	e.emitAudit(AuditEvent{Type: AuditEventStart, Timestamp: time.Now(), Command: script})
	start := time.Now()

	err := cmd.Run()

	duration := time.Since(start)
	output := stdoutBuf.String() + stderrBuf.String()

	if stdoutLimited.truncated || stderrLimited.truncated {
		logging.TactileWarn("Command output truncated: %d bytes discarded",
			stdoutLimited.discarded+stderrLimited.discarded)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logging.TactileWarn("Command killed after %s: %v", duration, ctxErr)
			e.emitAudit(AuditEvent{Type: AuditEventKilled, Timestamp: time.Now(), Command: script,
				ExitCode: -1, Duration: duration, Error: ctxErr.Error()})
			return "", fmt.Errorf("command killed after %s: %w", duration.Round(time.Millisecond), ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			logging.TactileDebug("Command exited non-zero: %d", code)
			e.emitAudit(AuditEvent{Type: AuditEventFailed, Timestamp: time.Now(), Command: script,
				ExitCode: code, Duration: duration, Error: err.Error()})
			return "", &CommandError{ExitCode: code, Output: output}
		}

		e.emitAudit(AuditEvent{Type: AuditEventFailed, Timestamp: time.Now(), Command: script,
			ExitCode: -1, Duration: duration, Error: err.Error()})
		return "", fmt.Errorf("failed to start shell: %w", err)
	}

	e.emitAudit(AuditEvent{Type: AuditEventComplete, Timestamp: time.Now(), Command: script, Duration: duration})
	logging.Tactile("Command completed: duration=%s, output=%d bytes", duration, len(output))

	return output, nil
}

// BuildEnvironment returns base extended with every scalar entry of v and
// CI=true. exec.Cmd keeps the last value of a duplicated key, so context
// entries shadow inherited variables.
func BuildEnvironment(base []string, v vars.Map) []string {
	env := make([]string, 0, len(base)+len(v)+1)
	env = append(env, base...)

	scalars := v.Scalars()
	for _, key := range v.Keys() {
		val, ok := scalars[key]
		if !ok || key == "" || strings.ContainsAny(key, "=\x00") {
			continue
		}
		env = append(env, key+"="+val)
	}

	return append(env, ciEnv)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		toWrite := p[:remaining]
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(toWrite)
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
