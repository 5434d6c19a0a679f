// Package console owns raw serial console access to devices under test.
//
// Ownership boundary:
// - line-oriented sends
// - pattern waits over an accumulating read buffer
// - console lifecycle (open, close, reader teardown)
package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"syscall"
	"time"
)

var (
	ErrExpectTimeout = errors.New("console: expect timeout")
	ErrClosed        = errors.New("console: closed")
)

var (
	// Android shell prompts look like root@android:/ # or shell@mt8173:/ $.
	PromptPattern = regexp.MustCompile(`.*@(?:android|mt[0-9]+).*`)
	// Kernel banner printed as the device enters reboot.
	RestartPattern = regexp.MustCompile(`.*Restarting system.*`)
)

// Unmatched input kept between waits. Anything older is dropped; a
// prompt never needs more history than this.
const maxPending = 64 << 10

// Port is the transport under a Console, usually a tty device file.
type Port interface {
	io.ReadWriteCloser
}

// Clock supplies the deadline channel for Expect. Tests substitute a
// hand-driven one.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// OpenPort opens a serial device file for console use.
func OpenPort(path string) (Port, error) {
	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("console: open %s: %w", path, err)
	}
	return f, nil
}

// Console drives one serial port. It is owned by a single goroutine:
// Sendline and Expect must not be called concurrently.
type Console struct {
	port  Port
	clock Clock

	chunks  chan []byte
	done    chan struct{}
	pending string

	closeOnce sync.Once
	closeErr  error
}

func New(port Port) *Console {
	return NewWithClock(port, systemClock{})
}

func NewWithClock(port Port, clock Clock) *Console {
	c := &Console{
		port:   port,
		clock:  clock,
		chunks: make(chan []byte),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Console) readLoop() {
	defer close(c.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Sendline writes one line, newline-terminated.
func (c *Console) Sendline(line string) error {
	if _, err := io.WriteString(c.port, line+"\n"); err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	return nil
}

// Expect blocks until pattern matches the accumulated console output or
// timeout elapses. On a match it returns everything up to and including
// the matched text and drops it from the buffer; the remainder stays
// for the next wait.
func (c *Console) Expect(pattern *regexp.Regexp, timeout time.Duration) (string, error) {
	if out, ok := c.take(pattern); ok {
		return out, nil
	}

	deadline := c.clock.After(timeout)
	for {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return "", fmt.Errorf("%w: waiting for %q", ErrClosed, pattern.String())
			}
			c.pending += string(chunk)
			if len(c.pending) > maxPending {
				c.pending = c.pending[len(c.pending)-maxPending:]
			}
			if out, ok := c.take(pattern); ok {
				return out, nil
			}
		case <-deadline:
			return "", fmt.Errorf("%w: pattern %q after %s", ErrExpectTimeout, pattern.String(), timeout)
		}
	}
}

func (c *Console) take(pattern *regexp.Regexp) (string, bool) {
	loc := pattern.FindStringIndex(c.pending)
	if loc == nil {
		return "", false
	}
	out := c.pending[:loc[1]]
	c.pending = c.pending[loc[1]:]
	return out, true
}

// Close tears down the port and unblocks the reader. Safe to call more
// than once.
func (c *Console) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.port.Close()
	})
	return c.closeErr
}
