// Package cmdexec owns supervised command execution against the lab host.
//
// Ownership boundary:
// - command shape and terminal statuses
// - spawn backends (local shell, ssh)
// - poll-based supervision, deadline kill, bounded retry
package cmdexec
