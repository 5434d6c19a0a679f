package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/console"
	"github.com/dutlab/dutctl/internal/testutil/testlog"
)

// writeFakeADB drops a shell script standing in for the adb binary.
// Every invocation is appended to calls.log for later counting.
func writeFakeADB(t *testing.T, dir, behavior string) adb.Bridge {
	t.Helper()
	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' \"$*\" >> %s/calls.log\n%s\n", dir, behavior)
	path := filepath.Join(dir, "adb")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake adb: %v", err)
	}
	return adb.Bridge{Bin: path}
}

func countCalls(t *testing.T, dir, needle string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "calls.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("reading calls.log: %v", err)
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, needle) {
			n++
		}
	}
	return n
}

type consolePort struct {
	mu       sync.Mutex
	incoming chan []byte
	writes   []string
	closed   chan struct{}
	once     sync.Once
	respond  func(line string) string
}

func newConsolePort(respond func(string) string) *consolePort {
	return &consolePort{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
		respond:  respond,
	}
}

func (p *consolePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.incoming:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *consolePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes = append(p.writes, string(b))
	p.mu.Unlock()
	if p.respond != nil {
		if reply := p.respond(string(b)); reply != "" {
			p.incoming <- []byte(reply)
		}
	}
	return len(b), nil
}

func (p *consolePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *consolePort) sawLine(line string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.writes {
		if w == line {
			return true
		}
	}
	return false
}

func TestProbeClassifiesOutput(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, `case "$*" in
  *"shell ls"*) echo "acct cache config data" ;;
esac`)
	m := NewManager(Config{Bridge: bridge})
	dev := &Device{ID: "192.168.1.40:5555", Mode: ModeNetwork}

	state, err := m.Probe(context.Background(), dev)
	if err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}
	if state != StateReachable {
		t.Fatalf("healthy listing classified %s", state)
	}
}

func TestProbeFlagsFailureMarkers(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, `case "$*" in
  *"shell ls"*) echo "error: device '192.168.1.40:5555' not found" ;;
esac`)
	m := NewManager(Config{Bridge: bridge})
	dev := &Device{ID: "192.168.1.40:5555", Mode: ModeNetwork}

	state, err := m.Probe(context.Background(), dev)
	if err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}
	if state != StateUnreachable {
		t.Fatalf("bridge error classified %s", state)
	}
}

func TestReconnectSucceedsOnFirstCycle(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, `case "$*" in
  *"shell ls"*) echo "acct cache config data" ;;
  *) echo done ;;
esac`)
	m := NewManager(Config{Bridge: bridge})
	dev := &Device{ID: "USB123", Mode: ModeUSB}

	ok, err := m.Reconnect(context.Background(), dev)
	if err != nil {
		t.Fatalf("unexpected reconnect error: %v", err)
	}
	if !ok {
		t.Fatalf("expected reconnect success")
	}
	if got := countCalls(t, dir, " usb"); got != 1 {
		t.Fatalf("expected exactly one usb action, got %d", got)
	}
	if got := countCalls(t, dir, "shell ls"); got != 1 {
		t.Fatalf("expected exactly one probe, got %d", got)
	}
}

func TestReconnectGivesUpAfterBoundedRetries(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, `case "$*" in
  *"shell ls"*) echo "error: device offline" ;;
  *) echo done ;;
esac`)
	m := NewManager(Config{Bridge: bridge})
	dev := &Device{ID: "192.168.1.40:5555", Mode: ModeNetwork}

	ok, err := m.Reconnect(context.Background(), dev)
	if err != nil {
		t.Fatalf("exhaustion must not be an error: %v", err)
	}
	if ok {
		t.Fatalf("expected reconnect failure")
	}
	// Initial cycle plus three bounded retries, each action then probe.
	if got := countCalls(t, dir, "connect"); got != 4 {
		t.Fatalf("expected 4 reconnect actions, got %d", got)
	}
	if got := countCalls(t, dir, "shell ls"); got != 4 {
		t.Fatalf("expected 4 probes, got %d", got)
	}
}

func TestReconnectRecoversMidway(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	// Probe answers healthy from the third attempt on.
	bridge := writeFakeADB(t, dir, fmt.Sprintf(`case "$*" in
  *"shell ls"*)
    n=$(cat %[1]s/n 2>/dev/null || echo 0)
    n=$((n+1))
    echo $n > %[1]s/n
    if [ "$n" -ge 3 ]; then echo "acct cache config data"; else echo "error: offline"; fi
    ;;
  *) echo done ;;
esac`, dir))
	m := NewManager(Config{Bridge: bridge})
	dev := &Device{ID: "192.168.1.40:5555", Mode: ModeNetwork}

	ok, err := m.Reconnect(context.Background(), dev)
	if err != nil {
		t.Fatalf("unexpected reconnect error: %v", err)
	}
	if !ok {
		t.Fatalf("expected recovery once the probe answered")
	}
	if got := countCalls(t, dir, "shell ls"); got != 3 {
		t.Fatalf("expected 3 probes, got %d", got)
	}
	if got := countCalls(t, dir, "connect"); got != 3 {
		t.Fatalf("expected 3 reconnect actions, got %d", got)
	}
}

func TestSerialReconnectDrivesConsole(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, `case "$*" in
  *"shell ls"*) echo "acct cache config data" ;;
  *) echo done ;;
esac`)

	port := newConsolePort(func(line string) string {
		switch strings.TrimSpace(line) {
		case "su", "netcfg eth0 dhcp":
			return "root@android:/ # "
		}
		return ""
	})
	cons := console.New(port)
	defer cons.Close()

	m := NewManager(Config{Bridge: bridge})
	dev := &Device{ID: "192.168.1.40:5555", Mode: ModeSerial, Console: cons}

	ok, err := m.Reconnect(context.Background(), dev)
	if err != nil {
		t.Fatalf("unexpected reconnect error: %v", err)
	}
	if !ok {
		t.Fatalf("expected serial reconnect success")
	}
	if !port.sawLine("su\n") {
		t.Fatalf("console never saw the su escalation")
	}
	if !port.sawLine("netcfg eth0 dhcp\n") {
		t.Fatalf("console never saw the dhcp renewal")
	}
	if got := countCalls(t, dir, "connect"); got != 1 {
		t.Fatalf("expected one network connect after the console dance, got %d", got)
	}
}

func TestSerialConsoleSilenceIsFatal(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, `echo done`)
	port := newConsolePort(nil)
	cons := console.New(port)
	defer cons.Close()

	m := NewManager(Config{Bridge: bridge, PromptTimeout: 200 * time.Millisecond})
	dev := &Device{ID: "192.168.1.40:5555", Mode: ModeSerial, Console: cons}

	start := time.Now()
	ok, err := m.Reconnect(context.Background(), dev)
	if ok {
		t.Fatalf("silent console must not reconnect")
	}
	if !errors.Is(err, ErrDeviceUnresponsive) {
		t.Fatalf("expected ErrDeviceUnresponsive, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("prompt wait ignored its deadline: %s", elapsed)
	}
	// The ladder never reaches the bridge when the console is dead.
	if got := countCalls(t, dir, "connect"); got != 0 {
		t.Fatalf("expected no bridge actions, got %d", got)
	}
}

func TestSerialWithoutConsoleIsFatal(t *testing.T) {
	testlog.Start(t)

	m := NewManager(Config{})
	dev := &Device{ID: "192.168.1.40:5555", Mode: ModeSerial}

	ok, err := m.Reconnect(context.Background(), dev)
	if ok {
		t.Fatalf("device without console must not reconnect")
	}
	if !errors.Is(err, ErrNoConsole) {
		t.Fatalf("expected ErrNoConsole, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	testlog.Start(t)

	cases := map[string]Mode{
		"":        ModeNetwork,
		"network": ModeNetwork,
		"USB":     ModeUSB,
		"serial":  ModeSerial,
	}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseMode(%q) is %s, want %s", raw, got, want)
		}
	}
	if _, err := ParseMode("carrier-pigeon"); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}
