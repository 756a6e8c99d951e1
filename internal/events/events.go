// Package events carries lifecycle notifications out of the download and model managers.
package events

import (
	"github.com/rs/zerolog"
)

// Event represents a lifecycle event.
// Minimal and stable: name + model name and optional fields via key/values.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// Publisher receives events. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// Noop drops events.
type Noop struct{}

func (Noop) Publish(Event) {}

// LogPublisher writes every event as a structured log line.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	ev := p.Logger.Info()
	if _, failed := e.Fields["error"]; failed {
		ev = p.Logger.Warn()
	}
	ev.Str("event", e.Name).Str("model", e.Model).Fields(e.Fields).Msg("lifecycle")
}

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}

// OrNoop returns p, or Noop when p is nil.
func OrNoop(p Publisher) Publisher {
	if p == nil {
		return Noop{}
	}
	return p
}
