// Package engine owns the actuator output value. Every write, whether from
// startup, the remote control channel or a local user, goes through
// RequestWrite and is applied in order: hardware, store, memory, sensor
// subscribers, local observers.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/db"
	"github.com/urmzd/actuator/pkg/output"
	"github.com/urmzd/actuator/pkg/sensor"
)

// Actors label writes in the audit log. They carry no authorization.
const (
	ActorStartup = "Startup"
	ActorRemote  = "XMPP"
	ActorLocal   = "Local user"
	ActorMCP     = "MCP"
)

// Store persists the output value.
type Store interface {
	GetBool(ctx context.Context, key string, def bool) bool
	Set(ctx context.Context, key string, value any) error
}

// Publisher receives every accepted change.
type Publisher interface {
	Publish(f sensor.Field)
}

// Change is delivered to local observers.
type Change struct {
	Value bool      `json:"value"`
	Actor string    `json:"actor"`
	Time  time.Time `json:"time"`
}

const (
	valueUnknown int32 = iota
	valueOff
	valueOn
)

const observerBuffer = 8

// Engine serializes writes to the output.
type Engine struct {
	sink      output.Sink
	store     Store
	publisher Publisher
	now       func() time.Time

	// sem is the single-writer lock; a channel so waiting honours ctx.
	sem     chan struct{}
	value   atomic.Int32
	startup atomic.Bool

	obsMu     sync.Mutex
	observers map[<-chan Change]chan Change
}

// New creates an engine. publisher may be nil.
func New(sink output.Sink, store Store, publisher Publisher) *Engine {
	return &Engine{
		sink:      sink,
		store:     store,
		publisher: publisher,
		now:       time.Now,
		sem:       make(chan struct{}, 1),
		observers: make(map[<-chan Change]chan Change),
	}
}

// Start loads the persisted value that HardwareReady applies. A value that
// was never stored counts as off.
func (e *Engine) Start(ctx context.Context) {
	v := e.store.GetBool(ctx, db.KeyOutput, false)
	e.startup.Store(v)
	log.Info().Bool("output", v).Msg("Loaded persisted output")
}

// Output returns the current value and whether one has been established.
func (e *Engine) Output() (value bool, known bool) {
	switch e.value.Load() {
	case valueOn:
		return true, true
	case valueOff:
		return false, true
	default:
		return false, false
	}
}

// HardwareReady re-applies the last known value to freshly attached hardware.
// The in-memory value wins over the persisted startup value.
func (e *Engine) HardwareReady(ctx context.Context) error {
	v, known := e.Output()
	if !known {
		v = e.startup.Load()
	}
	log.Info().Bool("output", v).Msg("Hardware ready, applying output")
	return e.RequestWrite(ctx, v, ActorStartup)
}

// RequestWrite applies value on behalf of actor. Hardware and store failures
// are logged and do not abort the write. The only error is ctx ending while
// waiting for a write already in flight.
func (e *Engine) RequestWrite(ctx context.Context, value bool, actor string) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	current, known := e.Output()
	changed := !known || current != value

	logger := log.With().Bool("output", value).Str("actor", actor).Logger()

	if e.sink.IsReady() {
		if err := e.sink.SetLevel(value); err != nil {
			logger.Warn().Err(err).Msg("Hardware write failed, continuing software-only")
		}
	} else {
		logger.Debug().Msg("Hardware not ready, software-only write")
	}

	if !changed {
		logger.Debug().Msg("Output unchanged")
		return nil
	}

	if err := e.store.Set(ctx, db.KeyOutput, value); err != nil {
		logger.Error().Err(err).Msg("Failed to persist output")
	}

	if value {
		e.value.Store(valueOn)
	} else {
		e.value.Store(valueOff)
	}

	now := e.now()
	if e.publisher != nil {
		e.publish(sensor.OutputField(value, false, now))
	}

	if actor != ActorStartup {
		e.notify(Change{Value: value, Actor: actor, Time: now})
	}

	logger.Info().Msg("Output set")
	return nil
}

func (e *Engine) publish(f sensor.Field) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Sensor publish panicked")
		}
	}()
	e.publisher.Publish(f)
}

// Subscribe returns a channel receiving every non-startup change. Slow
// readers miss changes rather than blocking the writer.
func (e *Engine) Subscribe() <-chan Change {
	ch := make(chan Change, observerBuffer)
	e.obsMu.Lock()
	e.observers[ch] = ch
	e.obsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (e *Engine) Unsubscribe(ch <-chan Change) {
	e.obsMu.Lock()
	c, ok := e.observers[ch]
	delete(e.observers, ch)
	e.obsMu.Unlock()
	if ok {
		close(c)
	}
}

func (e *Engine) notify(c Change) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	for _, ch := range e.observers {
		select {
		case ch <- c:
		default:
			log.Warn().Msg("Output observer is slow, change dropped")
		}
	}
}
