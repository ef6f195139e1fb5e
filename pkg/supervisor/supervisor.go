// Package supervisor periodically reconnects a failed session.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/session"
)

// DefaultInterval is the reconnect check period.
const DefaultInterval = 60 * time.Second

// Target is the session being supervised.
type Target interface {
	State() session.State
	Reconnect()
}

// Supervisor calls Reconnect on every tick that finds the target in Error or
// Offline. It does nothing else.
type Supervisor struct {
	target   Target
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped supervisor.
func New(target Target, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Supervisor{target: target, interval: interval}
}

// Start launches the timer. Calling Start on a running supervisor is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)

	log.Info().Dur("interval", s.interval).Msg("Reconnect supervisor started")
}

// Stop halts the timer and waits for a running tick. Safe to call more than
// once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Info().Msg("Reconnect supervisor stopped")
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Supervisor) tick() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Reconnect tick panicked")
		}
	}()

	state := s.target.State()
	if !state.Failed() {
		return
	}

	log.Info().Str("state", state.String()).Msg("Session down, reconnecting")
	s.target.Reconnect()
}
