//go:build windows

package tactile

import (
	"context"
	"os/exec"
	"syscall"
)

// shellCommand builds the cmd.exe invocation for script. The command line
// is passed verbatim; cmd.exe does its own quote parsing.
func shellCommand(ctx context.Context, script string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "cmd.exe")
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: "cmd.exe /C " + script}
	return cmd
}
