// Package tactile runs fragment bodies: shell commands through the platform
// shell and Go scripts through the yaegi interpreter. Every executor takes
// the current context and a body and returns a partial context to merge.
package tactile

import (
	"context"

	"codeprompt/internal/vars"
)

// Executor is the interface for fragment execution.
// All executor implementations must satisfy this interface.
type Executor interface {
	// Execute runs body against the current variables and returns the
	// partial result to merge into them. Errors are returned unwrapped so
	// callers can match *CommandError and *MissingKeyError.
	Execute(ctx context.Context, v vars.Map, body string) (vars.Map, error)

	// Name identifies the executor in logs and audit events.
	Name() string
}

// AuditedExecutor is an executor that emits audit events.
type AuditedExecutor interface {
	Executor

	// SetAuditCallback sets the callback for audit events.
	SetAuditCallback(callback func(AuditEvent))
}
