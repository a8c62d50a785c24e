package launcher

import (
	"io"
	"os/exec"
	"syscall"
)

// ProcessSpec describes one process of the group.
type ProcessSpec struct {
	Rank   int
	Target string
	Args   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

type Process interface {
	// Wait returns once the process has exited and its output is flushed.
	Wait() error
	Kill() error
}

type Spawner interface {
	Spawn(spec ProcessSpec) (Process, error)
}

// ExecSpawner runs every rank as an operating system process.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(spec ProcessSpec) (Process, error) {
	cmd := exec.Command(spec.Target, spec.Args...)

	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	// keep terminal signals away from the ranks, the launcher kills them itself
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &execProcess{cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}
