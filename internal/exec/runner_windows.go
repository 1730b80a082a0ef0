//go:build windows

package exec

import (
	"os/exec"
	"syscall"
)

// defaultSysProcAttr returns default process attributes for Windows.
// Windows doesn't support Setpgid/Pgid, so we return nil.
func defaultSysProcAttr() *syscall.SysProcAttr {
	return nil
}

// terminateProcess kills a started command. Windows has no process groups in
// the Unix sense, so only the direct child is killed.
func terminateProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// extractSignal is a no-op on Windows as signals work differently.
func extractSignal(_ interface{}) (syscall.Signal, bool) {
	return 0, false
}
