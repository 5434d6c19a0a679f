package cmdexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dutlab/dutctl/internal/observability"
	"github.com/dutlab/dutctl/internal/telemetry"
)

// Liveness poll cadence. Kill latency after a deadline expires is at
// most one tick.
const pollInterval = 100 * time.Millisecond

var (
	ErrAborted        = errors.New("cmdexec: command aborted")
	ErrInvalidCommand = errors.New("cmdexec: invalid command")
)

type Config struct {
	Backend Backend
	Sink    telemetry.Sink
}

// Executor supervises command dispatch against a single lab host. One
// command runs at a time per Executor; callers serialize their own use.
type Executor struct {
	backend Backend
	sink    telemetry.Sink
}

func New(cfg Config) *Executor {
	backend := cfg.Backend
	if backend == nil {
		backend = LocalBackend{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Executor{backend: backend, sink: sink}
}

func (e *Executor) Backend() Backend { return e.backend }

// Run dispatches cmd and supervises it to a terminal status.
//
// A non-nil error is fatal: the command could not be spawned, its
// outcome is unknowable, or ctx was cancelled. Recoverable failure is
// not an error; it comes back as a Result with StatusTimedOut and no
// output, after the retry budget re-dispatched the identical command
// cmd.Retries extra times. Re-dispatch means commands with side effects
// can execute more than once; callers own idempotency.
func (e *Executor) Run(ctx context.Context, cmd Command) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{Status: StatusAborted}, err
	}

	start := time.Now()
	budget := cmd.Retries
	attempt := 0
	for {
		attempt++
		outcome, status, err := e.attempt(ctx, cmd)
		if err != nil {
			res := Result{Status: StatusAborted, Attempts: attempt, Elapsed: time.Since(start)}
			e.finish(cmd, res, err)
			return res, err
		}
		if status == StatusCompleted {
			res := Result{
				Status:   StatusCompleted,
				Output:   string(outcome.output),
				ExitCode: outcome.exitCode,
				Attempts: attempt,
				Elapsed:  time.Since(start),
			}
			e.finish(cmd, res, nil)
			return res, nil
		}

		if budget == 0 {
			res := Result{Status: StatusTimedOut, Attempts: attempt, Elapsed: time.Since(start)}
			e.finish(cmd, res, nil)
			return res, nil
		}
		budget--
		log.Debug().
			Str("command", cmd.String()).
			Int("attempt", attempt).
			Int("budget", budget).
			Msg("command unresponsive, retrying")
	}
}

type waitOutcome struct {
	output   []byte
	exitCode int
	err      error
}

// attempt runs one spawn-supervise-reap cycle. On deadline or ctx
// cancellation it kills the process and joins the waiter before
// returning, so no attempt ever leaks a goroutine or a zombie.
func (e *Executor) attempt(ctx context.Context, cmd Command) (waitOutcome, Status, error) {
	log.Debug().
		Str("backend", e.backend.Name()).
		Str("command", cmd.String()).
		Dur("timeout", cmd.Timeout).
		Msg("command dispatch")

	proc, err := e.backend.Start(cmd)
	if err != nil {
		return waitOutcome{}, StatusAborted, fmt.Errorf("%w: spawn: %v", ErrAborted, err)
	}

	done := make(chan waitOutcome, 1)
	go func() {
		out, code, err := proc.Wait()
		done <- waitOutcome{output: out, exitCode: code, err: err}
	}()

	deadline := time.Now().Add(cmd.Timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case w := <-done:
			if w.err != nil {
				return w, StatusAborted, fmt.Errorf("%w: %v", ErrAborted, w.err)
			}
			if w.exitCode != 0 {
				log.Debug().
					Str("command", cmd.String()).
					Int("exit_code", w.exitCode).
					Msg("command exited non-zero")
			}
			return w, StatusCompleted, nil
		case <-ctx.Done():
			_ = proc.Kill()
			<-done
			return waitOutcome{}, StatusAborted, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				_ = proc.Kill()
				<-done
				observability.RecordCommandKill(e.backend.Name())
				log.Debug().
					Str("command", cmd.String()).
					Dur("timeout", cmd.Timeout).
					Msg("deadline exceeded, process killed")
				return waitOutcome{}, StatusTimedOut, nil
			}
		}
	}
}

func (e *Executor) finish(cmd Command, res Result, err error) {
	observability.RecordCommand(e.backend.Name(), string(res.Status), res.Elapsed)

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	e.sink.Emit(telemetry.Event{
		Time:    time.Now(),
		Kind:    telemetry.KindCommand,
		Command: cmd.String(),
		Status:  string(res.Status),
		Attempt: res.Attempts,
		Detail:  detail,
	})
}
