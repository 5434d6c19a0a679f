package telemetry

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrInvalidEvent = errors.New("telemetry: invalid event")

// Sink receives diagnostic events. Implementations must be safe for
// concurrent use and must not block the caller on slow transports.
type Sink interface {
	Emit(Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// LogSink writes events to the process logger.
type LogSink struct{}

func (LogSink) Emit(ev Event) {
	if ev.Validate() != nil {
		return
	}
	entry := log.Debug().
		Str("kind", ev.Kind).
		Str("device", ev.Device).
		Str("status", ev.Status)
	if ev.Command != "" {
		entry = entry.Str("command", ev.Command)
	}
	if ev.Attempt > 0 {
		entry = entry.Int("attempt", ev.Attempt)
	}
	if ev.Detail != "" {
		entry = entry.Str("detail", ev.Detail)
	}
	entry.Msg("telemetry event")
}

// LoggerSink is LogSink bound to an explicit logger instead of the
// global one. Used by tests and by agents that tag their log stream.
type LoggerSink struct {
	Logger zerolog.Logger
}

func (s LoggerSink) Emit(ev Event) {
	if ev.Validate() != nil {
		return
	}
	s.Logger.Debug().
		Str("kind", ev.Kind).
		Str("device", ev.Device).
		Str("status", ev.Status).
		Str("command", ev.Command).
		Msg("telemetry event")
}

// MultiSink fans one event out to every member sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}
