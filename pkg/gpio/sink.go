// Package gpio drives the actuator from a local GPIO line through the Linux
// GPIO character device.
package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/output"
	gpiod "github.com/warthog618/go-gpiocdev"
)

const consumer = "actuator"

// line is the subset of *gpiod.Line used by the sink.
type line interface {
	SetValue(value int) error
	Reconfigure(options ...gpiod.LineConfigOption) error
	Close() error
}

// Sink implements output.Sink on a single GPIO output line.
type Sink struct {
	chip   string
	offset int

	notifier *output.Notifier
	request  func(chip string, offset int) (line, error)

	mu     sync.Mutex
	line   line
	ready  bool
	closed bool
}

// NewSink creates a sink for the given chip (e.g. "gpiochip0") and line offset.
func NewSink(chip string, offset int) *Sink {
	return &Sink{
		chip:     chip,
		offset:   offset,
		notifier: output.NewNotifier(),
		request:  requestOutput,
	}
}

// requestOutput claims the line as an output, preserving its current level
// so a restart does not glitch the relay before the engine catches up.
func requestOutput(chip string, offset int) (line, error) {
	probe, err := gpiod.RequestLine(chip, offset, gpiod.AsInput, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("read pin %d state: %w", offset, err)
	}
	current, err := probe.Value()
	_ = probe.Close()
	if err != nil {
		return nil, fmt.Errorf("read pin %d value: %w", offset, err)
	}

	l, err := gpiod.RequestLine(chip, offset, gpiod.AsOutput(current), gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	return l, nil
}

// Start requests the line on a background goroutine and reports the outcome
// through Events.
func (s *Sink) Start(ctx context.Context) {
	go func() {
		l, err := s.request(s.chip, s.offset)
		device := fmt.Sprintf("%s:%d", s.chip, s.offset)
		if err != nil {
			log.Error().Err(err).Str("device", device).Msg("Unable to get access to GPIO pin")
			s.notifier.Notify(output.EventConnectionFailed, device, err.Error())
			return
		}

		s.mu.Lock()
		if s.closed || ctx.Err() != nil {
			s.mu.Unlock()
			_ = l.Close()
			return
		}
		s.line = l
		s.ready = true
		s.mu.Unlock()

		log.Info().Str("device", device).Msg("GPIO output ready")
		s.notifier.Notify(output.EventReady, device, "")
	}()
}

// SetLevel drives the line high or low.
func (s *Sink) SetLevel(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return output.ErrHardwareUnavailable
	}
	v := 0
	if on {
		v = 1
	}
	if err := s.line.SetValue(v); err != nil {
		return fmt.Errorf("%w: %v", output.ErrHardwareUnavailable, err)
	}
	return nil
}

func (s *Sink) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Sink) Events() <-chan output.Event {
	return s.notifier.Events()
}

// Close returns the line to input and releases it.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.line == nil {
		return nil
	}

	var errs []error
	if err := s.line.Reconfigure(gpiod.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", s.offset, err))
	}
	if err := s.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", s.offset, err))
	}
	s.line = nil
	s.ready = false

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	log.Info().Int("line", s.offset).Msg("GPIO output released")
	return nil
}

var _ output.Sink = (*Sink)(nil)
