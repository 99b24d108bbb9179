//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func setSysProcAttr(cmd *exec.Cmd) {}

// sendTermSignal has no graceful equivalent here.
func sendTermSignal(p *os.Process) error {
	return p.Kill()
}

func sendKillSignal(p *os.Process) error {
	return p.Kill()
}
