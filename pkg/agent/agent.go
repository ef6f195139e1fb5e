// Package agent wires the store, hardware sink, engine, session and protocol
// channels into one running actuator.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/control"
	"github.com/urmzd/actuator/pkg/db"
	"github.com/urmzd/actuator/pkg/engine"
	"github.com/urmzd/actuator/pkg/onboarding"
	"github.com/urmzd/actuator/pkg/output"
	"github.com/urmzd/actuator/pkg/sensor"
	"github.com/urmzd/actuator/pkg/session"
	"github.com/urmzd/actuator/pkg/supervisor"
)

// Config tunes the agent.
type Config struct {
	SubjectPrefix     string
	ReconnectInterval time.Duration
}

// Presence payloads.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// PresenceSubject is where availability is announced.
func PresenceSubject(root string) string { return root + ".presence" }

// Status is a snapshot for local observers.
type Status struct {
	DeviceID      string     `json:"device_id"`
	Session       string     `json:"session"`
	SessionSince  *time.Time `json:"session_since,omitempty"`
	HardwareReady bool       `json:"hardware_ready"`
	Output        *bool      `json:"output"`
}

// Agent owns every component for the lifetime of the process.
type Agent struct {
	cfg       Config
	settings  *db.Settings
	sink      output.Sink
	dialer    session.Dialer
	collector onboarding.Collector

	deviceID   string
	root       string
	engine     *engine.Engine
	sensor     *sensor.Channel
	control    *control.Channel
	session    *session.Client
	supervisor *supervisor.Supervisor

	ctx        context.Context
	cancel     context.CancelFunc
	events     sync.WaitGroup
	onboarding atomic.Bool
	// unix nanoseconds of the last session transition, 0 before the first
	sessionSince atomic.Int64
	closeOnce    sync.Once
}

// New creates an agent. Nothing runs until Init.
func New(settings *db.Settings, sink output.Sink, dialer session.Dialer, collector onboarding.Collector, cfg Config) *Agent {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = session.DefaultSubjectPrefix
	}
	if collector == nil {
		collector = onboarding.NoneCollector{}
	}
	return &Agent{
		cfg:       cfg,
		settings:  settings,
		sink:      sink,
		dialer:    dialer,
		collector: collector,
	}
}

// Init starts the agent. Hardware discovery and the session connect run in
// the background; Init never waits for either. The returned error lists
// non-fatal startup problems; the agent keeps running degraded.
func (a *Agent) Init(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	var errs []error

	id, err := a.settings.EnsureDeviceID(a.ctx)
	if err != nil {
		id = db.NewDeviceID()
		errs = append(errs, fmt.Errorf("device identity: %w", err))
		log.Error().Err(err).Str("device_id", id).Msg("Using an unpersisted device identity")
	}
	a.deviceID = id
	a.root = session.Root(a.cfg.SubjectPrefix, id)
	log.Info().Str("device_id", id).Str("root", a.root).Msg("Device identity")

	a.sensor = sensor.NewChannel(a.root, id, func() (bool, bool) { return a.engine.Output() })
	a.engine = engine.New(a.sink, a.settings, a.sensor)
	a.engine.Start(a.ctx)

	a.control = control.NewChannel(a.root, engine.ActorRemote,
		control.NewBooleanParameter(
			sensor.FieldNameOutput, "Actuator", "Output", "Digital output driving the relay.",
			a.engine.Output, a.engine.RequestWrite,
		),
	)

	a.session = session.NewClient(a.dialer,
		session.WithCredentialSaver(a.settings),
		session.WithAttacher(session.AttacherFunc(a.attach)),
		session.WithDeviceID(id),
	)
	a.session.OnStateChanged(func(session.State) {
		a.sessionSince.Store(time.Now().UnixNano())
	})

	a.events.Add(1)
	go a.hardwareLoop()
	a.sink.Start(a.ctx)

	a.supervisor = supervisor.New(a.session, a.cfg.ReconnectInterval)
	a.supervisor.Start(a.ctx)

	if err := a.session.Connect(a.settings.LoadCredentials(a.ctx)); err != nil {
		if !errors.Is(err, session.ErrMissingCredentials) {
			errs = append(errs, fmt.Errorf("session connect: %w", err))
		} else {
			log.Info().Msg("No stored credentials, starting onboarding")
			host, port, user := a.settings.CredentialHints(a.ctx)
			a.startOnboarding(onboarding.Hints{Host: host, Port: port, UserName: user})
		}
	}

	return errors.Join(errs...)
}

// attach binds the protocol channels to a connected session. Detach runs in
// reverse order.
func (a *Agent) attach(conn session.Conn) (func(), error) {
	detachControl, err := a.control.Attach(conn)
	if err != nil {
		return nil, err
	}
	detachSensor, err := a.sensor.Attach(conn)
	if err != nil {
		detachControl()
		return nil, err
	}

	presence := PresenceSubject(a.root)
	if err := conn.Publish(presence, []byte(PresenceOnline)); err != nil {
		log.Warn().Err(err).Msg("Failed to announce presence")
	}

	return func() {
		if err := conn.Publish(presence, []byte(PresenceOffline)); err != nil {
			log.Debug().Err(err).Msg("Failed to announce departure")
		}
		detachSensor()
		detachControl()
	}, nil
}

func (a *Agent) hardwareLoop() {
	defer a.events.Done()

	events := a.sink.Events()
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handleHardware(ev)
		}
	}
}

func (a *Agent) handleHardware(ev output.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("Hardware event handler panicked")
		}
	}()

	switch ev.Type {
	case output.EventReady:
		log.Info().Str("device", ev.Device).Msg("Hardware ready")
		if err := a.engine.HardwareReady(a.ctx); err != nil {
			log.Warn().Err(err).Msg("Startup output not applied")
		}
	case output.EventConnectionFailed:
		log.Warn().Str("device", ev.Device).Str("reason", ev.Reason).Msg("Hardware connection failed")
	case output.EventConnectionLost:
		log.Warn().Str("device", ev.Device).Str("reason", ev.Reason).Msg("Hardware connection lost")
	}
}

// startOnboarding runs the collector in the background. Only one collector
// runs at a time.
func (a *Agent) startOnboarding(h onboarding.Hints) {
	if !a.onboarding.CompareAndSwap(false, true) {
		log.Debug().Msg("Onboarding already running")
		return
	}
	go a.onboard(h)
}

func (a *Agent) onboard(h onboarding.Hints) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Onboarding panicked")
			a.onboarding.Store(false)
		}
	}()

	sub, err := a.collector.CollectCredentials(a.ctx, h)
	a.onboarding.Store(false)
	if err != nil {
		if errors.Is(err, onboarding.ErrCancelled) {
			log.Warn().Msg("Onboarding cancelled, running without a session")
		} else {
			log.Error().Err(err).Msg("Onboarding failed")
		}
		return
	}

	creds := sub.Credentials()
	log.Info().Str("user", creds.UserName).Str("address", creds.Address()).Msg("Probing new credentials")

	err = a.session.Probe(creds, func(tried session.Credentials) {
		a.startOnboarding(onboarding.Hints{
			Host:     tried.Host,
			Port:     tried.Port,
			UserName: tried.UserName,
			Retry:    true,
		})
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to start probe")
	}
}

// DeviceID returns the device identity.
func (a *Agent) DeviceID() string { return a.deviceID }

// Engine returns the output engine.
func (a *Agent) Engine() *engine.Engine { return a.engine }

// SessionState returns the current session state.
func (a *Agent) SessionState() session.State {
	if a.session == nil {
		return session.StateDisconnected
	}
	return a.session.State()
}

// Status returns a snapshot of the agent.
func (a *Agent) Status() Status {
	s := Status{
		DeviceID:      a.deviceID,
		Session:       a.SessionState().String(),
		HardwareReady: a.sink != nil && a.sink.IsReady(),
	}
	if ns := a.sessionSince.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		s.SessionSince = &t
	}
	if a.engine != nil {
		if v, known := a.engine.Output(); known {
			s.Output = &v
		}
	}
	return s
}

// Close shuts down in reverse attach order: protocol channels and session,
// supervisor, then hardware. Safe on a partially initialised agent and safe
// to call more than once.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		if a.session != nil {
			a.session.Dispose()
		}
		if a.supervisor != nil {
			a.supervisor.Stop()
		}
		if a.cancel != nil {
			a.cancel()
		}
		a.events.Wait()
		if a.sink != nil {
			if err := a.sink.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close output sink")
			}
		}
		log.Info().Msg("Agent stopped")
	})
	return nil
}
