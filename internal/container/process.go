package container

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"

	"aurora/internal/pkg/errors"
)

// DockerBinary is the container runtime CLI.
const DockerBinary = "docker"

// Process is a started workload with stdout and stderr combined on one stream.
type Process interface {
	Output() io.Reader
	Terminate() error
	Kill() error
	// Wait blocks until exit and returns the exit status.
	Wait() (int, error)
	// Close releases the output stream.
	Close() error
}

type Launcher interface {
	Start(ctx context.Context, args []string) (Process, error)
}

// ExecLauncher starts the docker CLI as a child process.
type ExecLauncher struct {
	Binary string
}

func (l ExecLauncher) Start(ctx context.Context, args []string) (Process, error) {
	bin := l.Binary
	if bin == "" {
		bin = DockerBinary
	}
	// not CommandContext: termination is driven by the supervisor
	return StartCommand(exec.Command(bin, args...))
}

// StartCommand starts cmd with stdout and stderr sharing one pipe.
func StartCommand(cmd *exec.Cmd) (Process, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	// the child holds its own copy
	w.Close()

	return &execProcess{cmd: cmd, out: r}, nil
}

type execProcess struct {
	cmd *exec.Cmd
	out *os.File
}

func (p *execProcess) Output() io.Reader { return p.out }

func (p *execProcess) Terminate() error { return p.cmd.Process.Signal(syscall.SIGTERM) }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}

func (p *execProcess) Close() error { return p.out.Close() }
