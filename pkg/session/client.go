// Package session owns the messaging session: the connection state machine,
// credential persistence on first connect, the onboarding probe path and the
// attach/detach of the protocol channels per connected episode.
//
// The client reports facts only. It never schedules a retry on its own;
// reconnect policy belongs to the supervisor.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// CredentialSaver persists credentials after a successful connect.
type CredentialSaver interface {
	SaveCredentials(ctx context.Context, creds Credentials) error
}

// Attacher binds the protocol channels to a live connection. The returned
// detach function is called when the connected episode ends.
type Attacher interface {
	Attach(conn Conn) (detach func(), err error)
}

// AttacherFunc adapts a function to Attacher.
type AttacherFunc func(conn Conn) (func(), error)

func (f AttacherFunc) Attach(conn Conn) (func(), error) { return f(conn) }

// Client is the session state machine. All state changes go through one
// mutex; handlers and observers run outside of it, one transition at a time.
type Client struct {
	dialer   Dialer
	saver    CredentialSaver
	attacher Attacher
	deviceID string

	ctx    context.Context
	cancel context.CancelFunc

	// transMu runs handlers one at a time. Handlers may run in a different
	// order than the states were recorded; connected re-checks the episode
	// connection before attaching.
	transMu sync.Mutex

	mu        sync.Mutex
	state     State
	creds     Credentials
	handler   stateHandler
	register  bool
	episode   uint64
	conn      Conn
	detach    func()
	disposed  bool
	observers []func(State)
}

// Option configures a Client.
type Option func(*Client)

// WithCredentialSaver persists credentials on every successful connect.
func WithCredentialSaver(s CredentialSaver) Option {
	return func(c *Client) { c.saver = s }
}

// WithAttacher runs a on every connected episode.
func WithAttacher(a Attacher) Option {
	return func(c *Client) { c.attacher = a }
}

// WithDeviceID identifies the agent during registration.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// NewClient creates a disconnected client.
func NewClient(dialer Dialer, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		dialer:  dialer,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateDisconnected,
		handler: steadyHandler{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Credentials returns the credentials of the current or last attempt.
func (c *Client) Credentials() Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// OnStateChanged registers an observer called after every transition.
func (c *Client) OnStateChanged(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Connect starts a steady-state connection attempt in the background.
// Fails with ErrMissingCredentials when creds are incomplete; the caller
// should run onboarding instead.
func (c *Client) Connect(creds Credentials) error {
	if !creds.Complete() {
		return ErrMissingCredentials
	}
	return c.start(creds, steadyHandler{}, false, nil)
}

// Probe starts a first-time connection with registration enabled. On
// success the credentials are persisted and the client switches to the
// steady handler. On failure the attempt is torn down and onFailure is
// called on its own goroutine with the attempted credentials.
func (c *Client) Probe(creds Credentials, onFailure func(Credentials)) error {
	if !creds.Complete() {
		return ErrMissingCredentials
	}
	return c.start(creds, &probeHandler{onFailure: onFailure}, true, nil)
}

// Reconnect restarts the session with the current credentials. It is a no-op
// while a connect is in progress or the session is up.
func (c *Client) Reconnect() {
	err := c.start(Credentials{}, nil, false, func(s State, creds Credentials) bool {
		return !s.inProgress() && creds.Complete()
	})
	if err != nil && !errors.Is(err, errSkipped) {
		log.Debug().Err(err).Msg("Reconnect skipped")
	}
}

var errSkipped = errors.New("skipped")

// start begins a new episode. A nil handler keeps the current handler,
// credentials and registration flag (reconnect). cond, when set, is checked
// under the lock together with the state change so concurrent reconnects
// cannot both start a dial.
func (c *Client) start(creds Credentials, h stateHandler, register bool, cond func(State, Credentials) bool) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if cond != nil && !cond(c.state, c.creds) {
		c.mu.Unlock()
		return errSkipped
	}
	if h != nil {
		c.creds = creds
		c.handler = h
		c.register = register
	}
	old := c.takeLocked()
	c.episode++
	ep := c.episode
	c.state = StateConnecting
	c.mu.Unlock()

	old.release()
	go c.dial(ep)
	return nil
}

func (c *Client) dial(ep uint64) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Session dial panicked")
			c.transition(ep, StateError, nil)
		}
	}()

	c.notify(ep, StateConnecting)

	c.mu.Lock()
	creds, register := c.creds, c.register
	c.mu.Unlock()

	c.transition(ep, StateAuthenticating, nil)
	log.Info().Str("address", creds.Address()).Bool("register", register).Msg("Connecting")

	conn, err := c.dialer.Dial(c.ctx, DialOptions{
		Credentials: creds,
		Register:    register,
		DeviceID:    c.deviceID,
		Progress: func(s State) {
			c.transition(ep, s, nil)
		},
		OnDisconnect: func(err error) {
			c.lost(ep, err)
		},
	})
	if err != nil {
		log.Error().Err(err).Str("address", creds.Address()).Msg("Connection error")
		state := StateError
		if errors.Is(err, ErrRegisterFailed) {
			state = StateRegisterFailed
		}
		c.transition(ep, state, nil)
		return
	}

	c.mu.Lock()
	if ep != c.episode || c.disposed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.transition(ep, StateConnected, nil)
}

// lost handles transport loss after a successful connect.
func (c *Client) lost(ep uint64, err error) {
	if err != nil {
		log.Warn().Err(err).Msg("Session transport lost")
	}
	c.transition(ep, StateOffline, func(s State) bool { return s == StateConnected })
}

// transition moves to s if ep is still current and guard (when set) accepts
// the current state, then runs the handler and observers.
func (c *Client) transition(ep uint64, s State, guard func(State) bool) {
	c.mu.Lock()
	if ep != c.episode || c.disposed || c.state == s || (guard != nil && !guard(c.state)) {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.notify(ep, s)
}

// notify runs the handler and observers for a state already recorded.
func (c *Client) notify(ep uint64, s State) {
	c.transMu.Lock()
	defer c.transMu.Unlock()

	c.mu.Lock()
	if ep != c.episode || c.disposed {
		c.mu.Unlock()
		return
	}
	h := c.handler
	observers := append([]func(State){}, c.observers...)
	c.mu.Unlock()

	log.Info().Str("state", s.String()).Msg("Changing state")

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("state", s.String()).Msg("State handler panicked")
			}
		}()
		h.stateChanged(c, ep, s)
	}()

	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("State observer panicked")
				}
			}()
			fn(s)
		}()
	}
}

// connected persists the credentials and attaches the channels once for
// episode ep.
func (c *Client) connected(ep uint64) {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()

	log.Info().Str("user", creds.UserName).Str("address", creds.Address()).Msg("Connected")

	if c.saver != nil {
		if err := c.saver.SaveCredentials(c.ctx, creds); err != nil {
			log.Error().Err(err).Msg("Failed to persist session credentials")
		}
	}

	if c.attacher == nil {
		return
	}

	c.mu.Lock()
	conn := c.conn
	if ep != c.episode || conn == nil || c.detach != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	detach, err := c.attacher.Attach(conn)
	if err != nil {
		log.Error().Err(err).Msg("Failed to attach protocol channels")
		return
	}

	c.mu.Lock()
	if ep != c.episode || c.disposed {
		c.mu.Unlock()
		detach()
		return
	}
	c.detach = detach
	c.mu.Unlock()
}

// teardown releases the connection of episode ep without changing state.
func (c *Client) teardown(ep uint64) {
	c.mu.Lock()
	if ep != c.episode {
		c.mu.Unlock()
		return
	}
	old := c.takeLocked()
	c.mu.Unlock()
	old.release()
}

// Disconnect closes the session and returns to Disconnected. Unlike Dispose
// the client can be connected again afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	old := c.takeLocked()
	c.episode++
	ep := c.episode
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	old.release()
	if changed {
		go c.notify(ep, StateDisconnected)
	}
}

// Dispose closes the session for good. Safe to call more than once.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	old := c.takeLocked()
	c.episode++
	c.state = StateDisconnected
	c.mu.Unlock()

	c.cancel()
	old.release()
	log.Info().Msg("Session client disposed")
}

type resources struct {
	conn   Conn
	detach func()
}

func (c *Client) takeLocked() resources {
	r := resources{conn: c.conn, detach: c.detach}
	c.conn = nil
	c.detach = nil
	return r
}

func (r resources) release() {
	if r.detach != nil {
		r.detach()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

// stateHandler reacts to transitions. The steady and probe handlers are
// distinct objects so the onboarding flow and the steady flow never share
// one.
type stateHandler interface {
	stateChanged(c *Client, ep uint64, s State)
}

type steadyHandler struct{}

func (steadyHandler) stateChanged(c *Client, ep uint64, s State) {
	switch s {
	case StateConnected:
		c.connected(ep)
	case StateOffline, StateError, StateRegisterFailed:
		c.teardown(ep)
	}
}

type probeHandler struct {
	onFailure func(Credentials)
}

func (h *probeHandler) stateChanged(c *Client, ep uint64, s State) {
	switch s {
	case StateConnected:
		c.mu.Lock()
		if ep == c.episode {
			c.handler = steadyHandler{}
			c.register = false
		}
		c.mu.Unlock()
		c.connected(ep)

	case StateOffline, StateError, StateRegisterFailed:
		creds := c.Credentials()
		c.mu.Lock()
		current := ep == c.episode
		c.mu.Unlock()
		if !current {
			return
		}
		c.Disconnect()
		if h.onFailure != nil {
			go h.onFailure(Credentials{Host: creds.Host, Port: creds.Port, UserName: creds.UserName})
		}
	}
}

// String is used in log fields.
func (c *Client) String() string {
	creds := c.Credentials()
	return fmt.Sprintf("%s@%s (%s)", creds.UserName, creds.Address(), c.State())
}
