package events

import (
	"log/slog"

	"stablemortgage/core/types"
)

// Event represents a structured state change emitted by an engine.
type Event interface {
	EventType() string
}

// payloadCarrier is implemented by module events that expose their full
// attribute map.
type payloadCarrier interface {
	Event() *types.Event
}

// LogEmitter writes every emitted event as a structured log line. It is the
// default sink wired by the daemon.
type LogEmitter struct {
	Log *slog.Logger
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	args := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(payloadCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	log.Info("event emitted", args...)
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
