package output

import "context"

// NullSink is a sink with no hardware behind it. It never becomes ready, so
// the engine runs in software-only mode.
type NullSink struct {
	events chan Event
}

// NewNullSink creates a new NullSink.
func NewNullSink() *NullSink {
	return &NullSink{events: make(chan Event)}
}

func (s *NullSink) Start(ctx context.Context) {}

func (s *NullSink) SetLevel(on bool) error {
	return ErrHardwareUnavailable
}

func (s *NullSink) IsReady() bool {
	return false
}

// Events returns a channel that is never sent to.
func (s *NullSink) Events() <-chan Event {
	return s.events
}

func (s *NullSink) Close() error {
	return nil
}
