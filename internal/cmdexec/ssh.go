package cmdexec

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHBackend runs commands on a remote lab host over SSH. One dial per
// spawn keeps failure domains small: a dropped connection poisons a
// single command, not the whole bench.
type SSHBackend struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	DialTimeout                 time.Duration
}

func (b SSHBackend) Name() string { return "ssh" }

func (b SSHBackend) Start(c Command) (Process, error) {
	client, err := b.dial()
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, err
	}

	var output bytes.Buffer
	// Same writer for both streams; the ssh package serializes them.
	session.Stdout = &output
	session.Stderr = &output
	if c.Stdin != "" {
		session.Stdin = strings.NewReader(c.Stdin)
	}

	line := c.Line
	if line == "" {
		line = joinCommand(c.Argv[0], c.Argv[1:])
	}
	if err := session.Start(line); err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	return &sshProcess{client: client, session: session, output: &output}, nil
}

type sshProcess struct {
	client  *ssh.Client
	session *ssh.Session
	output  *bytes.Buffer
}

func (p *sshProcess) Wait() ([]byte, int, error) {
	err := p.session.Wait()
	p.session.Close()
	p.client.Close()

	if err == nil {
		return p.output.Bytes(), 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return p.output.Bytes(), exitErr.ExitStatus(), nil
	}
	return p.output.Bytes(), 0, err
}

// Kill signals the remote process and then drops the connection. Not
// every sshd honors signal requests, so the close is what guarantees a
// pending Wait returns.
func (p *sshProcess) Kill() error {
	_ = p.session.Signal(ssh.SIGKILL)
	return p.client.Close()
}

func (b SSHBackend) dial() (*ssh.Client, error) {
	address, err := b.address()
	if err != nil {
		return nil, err
	}

	config, err := b.clientConfig()
	if err != nil {
		return nil, err
	}

	if b.DialTimeout <= 0 {
		return ssh.Dial("tcp", address, config)
	}

	conn, err := net.DialTimeout("tcp", address, b.DialTimeout)
	if err != nil {
		return nil, err
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (b SSHBackend) address() (string, error) {
	host := strings.TrimSpace(b.Host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}

	if b.Port != "" {
		return net.JoinHostPort(host, b.Port), nil
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (b SSHBackend) clientConfig() (*ssh.ClientConfig, error) {
	if b.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	signer, err := b.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if b.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := b.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            b.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         b.DialTimeout,
	}, nil
}

func (b SSHBackend) signer() (ssh.Signer, error) {
	if b.KeyPath == "" {
		return nil, fmt.Errorf("ssh key path is required")
	}

	privateKey, err := os.ReadFile(b.KeyPath)
	if err != nil {
		return nil, err
	}

	if len(b.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, b.Passphrase)
	}

	return ssh.ParsePrivateKey(privateKey)
}

func (b SSHBackend) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(b.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	return knownhosts.New(path)
}

func joinCommand(cmd string, args []string) string {
	if len(args) == 0 {
		return shellEscape(cmd)
	}

	var builder strings.Builder
	builder.WriteString(shellEscape(cmd))
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}

	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
