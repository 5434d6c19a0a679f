package telemetry

import (
	"strings"
	"time"
)

const (
	KindCommand   = "command"
	KindProbe     = "probe"
	KindReconnect = "reconnect"
	KindSession   = "session"
)

// Event is one observability record emitted by the execution and
// connectivity layers. Events are advisory: sinks may drop them, and no
// caller blocks on delivery.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Device  string    `json:"device,omitempty"`
	Command string    `json:"command,omitempty"`
	Status  string    `json:"status,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// Validate enforces the minimal event shape sinks rely on.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Kind) == "" {
		return ErrInvalidEvent
	}
	if e.Time.IsZero() {
		return ErrInvalidEvent
	}
	return nil
}
