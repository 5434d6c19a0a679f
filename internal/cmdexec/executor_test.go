package cmdexec

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dutlab/dutctl/internal/telemetry"
	"github.com/dutlab/dutctl/internal/testutil/testlog"
)

// scriptedProcess hangs until killed, or releases immediately with a
// canned outcome when hang is false.
type scriptedProcess struct {
	mu      sync.Mutex
	killed  bool
	release chan struct{}
	output  []byte
	code    int
	err     error
}

func newHungProcess() *scriptedProcess {
	return &scriptedProcess{release: make(chan struct{})}
}

func (p *scriptedProcess) Wait() ([]byte, int, error) {
	<-p.release
	return p.output, p.code, p.err
}

func (p *scriptedProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.killed {
		p.killed = true
		close(p.release)
	}
	return nil
}

func (p *scriptedProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type scriptedBackend struct {
	mu    sync.Mutex
	procs []*scriptedProcess
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Start(Command) (Process, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := newHungProcess()
	b.procs = append(b.procs, p)
	return p, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *captureSink) Emit(ev telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func TestRunCompletesShellCommand(t *testing.T) {
	testlog.Start(t)

	ex := New(Config{})
	res, err := ex.Run(context.Background(), Shell("echo hello", 5*time.Second, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusCompleted || res.Absent() {
		t.Fatalf("expected completed result, got %+v", res)
	}
	if strings.TrimSpace(res.Output) != "hello" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected single attempt, got %d", res.Attempts)
	}
}

func TestRunMergesStderrAndKeepsExitCode(t *testing.T) {
	testlog.Start(t)

	ex := New(Config{})
	res, err := ex.Run(context.Background(), Shell("echo oops >&2; exit 3", 5*time.Second, 0))
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", res.Status)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "oops") {
		t.Fatalf("stderr not merged into output: %q", res.Output)
	}
}

func TestRunFeedsStdin(t *testing.T) {
	testlog.Start(t)

	ex := New(Config{})
	cmd := Command{Line: "cat", Timeout: 5 * time.Second, Stdin: "ping\n"}
	res, err := ex.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Output != "ping\n" {
		t.Fatalf("stdin not forwarded, got %q", res.Output)
	}
}

func TestRunRetriesConsumeBudgetThenAbsent(t *testing.T) {
	testlog.Start(t)

	ex := New(Config{})
	start := time.Now()
	res, err := ex.Run(context.Background(), Shell("sleep 5", 300*time.Millisecond, 2))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("timeout must be recoverable, got error: %v", err)
	}
	if res.Status != StatusTimedOut || !res.Absent() {
		t.Fatalf("expected absent timed-out result, got %+v", res)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected 3 attempts for retry budget 2, got %d", res.Attempts)
	}
	if elapsed < 900*time.Millisecond {
		t.Fatalf("attempts did not each run to the deadline: %s", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("supervision overshot the deadline badly: %s", elapsed)
	}
}

func TestRunZeroBudgetIsSingleAttempt(t *testing.T) {
	testlog.Start(t)

	ex := New(Config{})
	res, err := ex.Run(context.Background(), Shell("sleep 5", 250*time.Millisecond, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected exactly one attempt, got %d", res.Attempts)
	}
	if res.Status != StatusTimedOut {
		t.Fatalf("expected timed-out status, got %s", res.Status)
	}
}

func TestRunTimeoutDiscardsPartialOutput(t *testing.T) {
	testlog.Start(t)

	ex := New(Config{})
	res, err := ex.Run(context.Background(), Shell("echo partial; sleep 5", 300*time.Millisecond, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Absent() {
		t.Fatalf("expected absent result, got %+v", res)
	}
	if res.Output != "" {
		t.Fatalf("timed-out result must carry no output, got %q", res.Output)
	}
}

func TestRunSpawnFailureAbortsWithoutRetry(t *testing.T) {
	testlog.Start(t)

	ex := New(Config{})
	cmd := Command{
		Argv:    []string{"/does/not/exist/bench-binary"},
		Timeout: time.Second,
		Retries: 3,
	}
	res, err := ex.Run(context.Background(), cmd)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if res.Status != StatusAborted {
		t.Fatalf("expected aborted status, got %s", res.Status)
	}
	if res.Attempts != 1 {
		t.Fatalf("abort must not be retried, got %d attempts", res.Attempts)
	}
}

func TestRunContextCancelIsFatal(t *testing.T) {
	testlog.Start(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	ex := New(Config{})
	start := time.Now()
	_, err := ex.Run(ctx, Shell("sleep 5", 10*time.Second, 5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancellation did not interrupt supervision: %s", elapsed)
	}
}

func TestRunKillsEveryHungAttempt(t *testing.T) {
	testlog.Start(t)

	backend := &scriptedBackend{}
	ex := New(Config{Backend: backend})

	cmd := Command{Argv: []string{"hang"}, Timeout: 250 * time.Millisecond, Retries: 2}
	res, err := ex.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.Attempts)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.procs) != 3 {
		t.Fatalf("expected 3 spawned processes, got %d", len(backend.procs))
	}
	for i, p := range backend.procs {
		if !p.wasKilled() {
			t.Fatalf("attempt %d left its process running", i)
		}
	}
}

func TestRunEmitsTerminalEvent(t *testing.T) {
	testlog.Start(t)

	sink := &captureSink{}
	ex := New(Config{Sink: sink})
	if _, err := ex.Run(context.Background(), Shell("true", time.Second, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 1 {
		t.Fatalf("expected one terminal event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Kind != telemetry.KindCommand || ev.Status != string(StatusCompleted) || ev.Attempt != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestCommandValidate(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name string
		cmd  Command
		ok   bool
	}{
		{"shell form", Shell("ls", time.Second, 0), true},
		{"argv form", Command{Argv: []string{"ls"}, Timeout: time.Second}, true},
		{"empty", Command{Timeout: time.Second}, false},
		{"both forms", Command{Line: "ls", Argv: []string{"ls"}, Timeout: time.Second}, false},
		{"zero timeout", Command{Line: "ls"}, false},
		{"negative retries", Command{Line: "ls", Timeout: time.Second, Retries: -1}, false},
	}
	for _, tc := range cases {
		err := tc.cmd.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("%s: expected ErrInvalidCommand, got %v", tc.name, err)
		}
	}
}
