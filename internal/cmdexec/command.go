package cmdexec

import (
	"fmt"
	"strings"
	"time"
)

// Command describes one external command dispatch.
//
// Exactly one of Line and Argv must be set. Line runs through the host
// shell so pipelines and redirections work; Argv executes the program
// directly without shell interpretation.
type Command struct {
	Line    string
	Argv    []string
	Timeout time.Duration
	Retries int
	Stdin   string
}

// Shell builds the common shell-line form of a Command.
func Shell(line string, timeout time.Duration, retries int) Command {
	return Command{Line: line, Timeout: timeout, Retries: retries}
}

func (c Command) String() string {
	if c.Line != "" {
		return c.Line
	}
	return strings.Join(c.Argv, " ")
}

func (c Command) Validate() error {
	if c.Line == "" && len(c.Argv) == 0 {
		return fmt.Errorf("%w: no command text", ErrInvalidCommand)
	}
	if c.Line != "" && len(c.Argv) > 0 {
		return fmt.Errorf("%w: both line and argv set", ErrInvalidCommand)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidCommand)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: negative retry budget", ErrInvalidCommand)
	}
	return nil
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
	StatusAborted   Status = "aborted"
)

// Result is the terminal outcome of one Run call. Output and ExitCode
// are meaningful only when Status is StatusCompleted; a timed-out
// command carries no output even if it produced some before the kill.
type Result struct {
	Status   Status
	Output   string
	ExitCode int
	Attempts int
	Elapsed  time.Duration
}

// Absent reports whether the command produced no usable result.
func (r Result) Absent() bool {
	return r.Status != StatusCompleted
}
