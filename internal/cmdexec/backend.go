package cmdexec

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
)

// Process is one spawned command under supervision.
//
// Wait must be called exactly once and always reaps the process. Kill
// may be called at most once, concurrently with Wait, and must make a
// pending Wait return promptly.
type Process interface {
	// Wait blocks until the command leaves the system and returns its
	// merged stdout/stderr and exit code. A non-nil error means the
	// outcome is unknowable (the output plumbing failed or the
	// transport dropped), not that the command exited non-zero.
	Wait() (output []byte, exitCode int, err error)
	Kill() error
}

// Backend spawns processes on some host. Start reports spawn failures;
// everything after a successful spawn is reported through the Process.
type Backend interface {
	Name() string
	Start(cmd Command) (Process, error)
}

const defaultShell = "/bin/sh"

// LocalBackend runs commands on the local host.
type LocalBackend struct {
	Shell string
}

func (b LocalBackend) Name() string { return "local" }

func (b LocalBackend) Start(c Command) (Process, error) {
	argv := c.Argv
	if c.Line != "" {
		shell := b.Shell
		if shell == "" {
			shell = defaultShell
		}
		argv = []string{shell, "-c", c.Line}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &localProcess{cmd: cmd, output: &output}, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	output *bytes.Buffer
}

func (p *localProcess) Wait() ([]byte, int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return p.output.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return p.output.Bytes(), exitErr.ExitCode(), nil
	}
	return p.output.Bytes(), 0, err
}

func (p *localProcess) Kill() error {
	return p.cmd.Process.Kill()
}
