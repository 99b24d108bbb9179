package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"time"

	"gortlbridge/shared"
)

// Process is one running decoder.
type Process interface {
	Pid() int
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits. Callers must finish reading
	// Stdout and Stderr first.
	Wait() error
	// Terminate asks the process to exit and force-kills it after grace.
	Terminate(grace time.Duration) error
}

// Launcher starts decoder processes.
type Launcher interface {
	Launch(ctx context.Context, argv []string) (Process, error)
}

// ExecLauncher runs decoders as child processes in their own process group.
type ExecLauncher struct{}

func (ExecLauncher) Launch(_ context.Context, argv []string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrBinaryNotFound, argv[0])
	}

	// Not CommandContext: shutdown goes through Terminate so the decoder
	// gets SIGTERM and a grace period rather than an immediate kill.
	cmd := exec.Command(argv[0], argv[1:]...)
	setSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", shared.ErrBinaryNotFound, argv[0])
		}
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr, exited: make(chan struct{})}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
	exited chan struct{}
}

func (p *execProcess) Pid() int          { return p.cmd.Process.Pid }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	close(p.exited)
	return err
}

func (p *execProcess) Terminate(grace time.Duration) error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := sendTermSignal(p.cmd.Process); err != nil {
		return sendKillSignal(p.cmd.Process)
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(grace):
		return sendKillSignal(p.cmd.Process)
	}
}
