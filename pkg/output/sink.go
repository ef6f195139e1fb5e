// Package output defines the physical actuator capability: a binary output
// that becomes ready asynchronously and may disappear at any time.
package output

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

//go:generate mockgen -destination=mock_sink.go -package=output github.com/urmzd/actuator/pkg/output Sink

// Sink abstracts the physical actuator. Implementations exist for a
// Firmata device over USB serial and for a local GPIO line.
type Sink interface {
	// Start begins device discovery in the background and returns
	// immediately. Readiness is reported through Events.
	Start(ctx context.Context)

	// SetLevel drives the output. Fails with ErrHardwareUnavailable when no
	// device is attached.
	SetLevel(on bool) error

	// IsReady reports whether a device is attached and initialized.
	IsReady() bool

	// Events delivers hardware lifecycle notifications.
	Events() <-chan Event

	// Close quiesces the outputs and releases the transport. Safe to call
	// more than once and on a sink that never became ready.
	Close() error
}

// EventType identifies a hardware lifecycle notification.
type EventType string

const (
	EventReady            EventType = "ready"
	EventConnectionFailed EventType = "connection_failed"
	EventConnectionLost   EventType = "connection_lost"
)

// Event is a hardware lifecycle notification.
type Event struct {
	Type      EventType `json:"type"`
	Device    string    `json:"device,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier fans events out to a sink's Events channel without blocking the
// hardware goroutine. When nobody is draining, the oldest queued event is
// dropped so the newest one, such as a Ready, is always delivered.
type Notifier struct {
	ch chan Event
}

// NewNotifier creates a Notifier with a small buffer.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan Event, 16)}
}

// Events returns the receive side.
func (n *Notifier) Events() <-chan Event {
	return n.ch
}

// Notify queues an event, evicting the oldest one if the buffer is full.
func (n *Notifier) Notify(typ EventType, device, reason string) {
	ev := Event{Type: typ, Device: device, Reason: reason, Timestamp: time.Now()}
	for {
		select {
		case n.ch <- ev:
			return
		default:
		}

		select {
		case old := <-n.ch:
			log.Warn().
				Str("dropped", string(old.Type)).
				Str("device", old.Device).
				Str("queued", string(typ)).
				Msg("Hardware event queue full, dropping oldest event")
		default:
		}
	}
}
