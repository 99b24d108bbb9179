//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the decoder in its own process group so signals reach
// any helpers it spawned.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// sendTermSignal sends SIGTERM to the process group for graceful shutdown.
func sendTermSignal(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

// sendKillSignal sends SIGKILL to the process group.
func sendKillSignal(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
