// Package history persists compositor lifecycle events for later inspection.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStarted          EventType = "started"
	EventStopped          EventType = "stopped"
	EventCrashed          EventType = "crashed"
	EventRestartScheduled EventType = "restart_scheduled"
)

// Event is one lifecycle record.
type Event struct {
	Type       EventType `json:"type"`
	ExitCode   int       `json:"exit_code"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for lifecycle events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Nop is a Sink that discards everything.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }
func (Nop) Close() error                      { return nil }
