package cmdexec

import (
	"testing"

	"github.com/rs/zerolog/log"
)

func TestJoinCommandEscaping(t *testing.T) {
	got := joinCommand("echo", []string{"a b", "quote'v"})
	want := "'echo' 'a b' 'quote'\"'\"'v'"
	if got != want {
		t.Fatalf("unexpected joined command\nwant: %s\ngot:  %s", want, got)
	}
	log.Debug().Str("joined", got).Msg("ssh/join-command")
}

func TestSSHBackendAddressValidation(t *testing.T) {
	b := SSHBackend{}
	if _, err := b.address(); err == nil {
		t.Fatalf("expected host validation error")
	}

	b.Host = "bench-a"
	addr, err := b.address()
	if err != nil {
		t.Fatalf("unexpected address error: %v", err)
	}
	if addr != "bench-a:22" {
		t.Fatalf("expected default ssh port, got %q", addr)
	}

	b.Port = "2202"
	addr, err = b.address()
	if err != nil {
		t.Fatalf("unexpected address error: %v", err)
	}
	if addr != "bench-a:2202" {
		t.Fatalf("expected explicit port, got %q", addr)
	}
}

func TestSSHBackendClientConfigValidation(t *testing.T) {
	b := SSHBackend{Host: "bench-a"}
	if _, err := b.clientConfig(); err == nil {
		t.Fatalf("expected missing user validation error")
	}

	b.User = "lab"
	if _, err := b.clientConfig(); err == nil {
		t.Fatalf("expected missing key path validation error")
	}
}
