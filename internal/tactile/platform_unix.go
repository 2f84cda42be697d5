//go:build !windows

package tactile

import (
	"context"
	"os/exec"
)

// shellCommand builds the POSIX shell invocation for script.
func shellCommand(ctx context.Context, script string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", script)
}
