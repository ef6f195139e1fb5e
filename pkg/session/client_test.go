package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed atomic.Bool
}

func (c *fakeConn) Publish(string, []byte) error { return nil }
func (c *fakeConn) Subscribe(string, nats.MsgHandler) (*nats.Subscription, error) {
	return nil, nil
}
func (c *fakeConn) RequestWithContext(context.Context, string, []byte) (*nats.Msg, error) {
	return nil, nats.ErrNoResponders
}
func (c *fakeConn) Close() { c.closed.Store(true) }

type fakeDialer struct {
	mu    sync.Mutex
	err   error
	dials []DialOptions
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, opts DialOptions) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, opts)
	if d.err != nil {
		return nil, d.err
	}
	if opts.Register && opts.Progress != nil {
		opts.Progress(StateRegistering)
	}
	c := &fakeConn{}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) last() (DialOptions, *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var c *fakeConn
	if len(d.conns) > 0 {
		c = d.conns[len(d.conns)-1]
	}
	return d.dials[len(d.dials)-1], c
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []Credentials
}

func (s *fakeSaver) SaveCredentials(_ context.Context, creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, creds)
	return nil
}

func (s *fakeSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type attachCounter struct {
	attached atomic.Int32
	detached atomic.Int32
}

func (a *attachCounter) Attach(Conn) (func(), error) {
	a.attached.Add(1)
	return func() { a.detached.Add(1) }, nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *stateRecorder) seen(s State) bool {
	for _, got := range r.snapshot() {
		if got == s {
			return true
		}
	}
	return false
}

func testCredentials() Credentials {
	hash, method := HashPassword("relay", "secret")
	return Credentials{
		Host:               "127.0.0.1",
		Port:               4222,
		UserName:           "relay",
		PasswordHash:       hash,
		PasswordHashMethod: method,
	}
}

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

func TestConnect_MissingCredentials(t *testing.T) {
	dialer := &fakeDialer{}
	c := NewClient(dialer)
	defer c.Dispose()

	creds := testCredentials()
	creds.PasswordHash = ""

	assert.ErrorIs(t, c.Connect(creds), ErrMissingCredentials)
	assert.ErrorIs(t, c.Connect(Credentials{}), ErrMissingCredentials)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Zero(t, dialer.count())
}

func TestConnect_Success(t *testing.T) {
	dialer := &fakeDialer{}
	saver := &fakeSaver{}
	attacher := &attachCounter{}
	rec := &stateRecorder{}

	c := NewClient(dialer, WithCredentialSaver(saver), WithAttacher(attacher), WithDeviceID("abc"))
	c.OnStateChanged(rec.record)
	defer c.Dispose()

	require.NoError(t, c.Connect(testCredentials()))

	require.Eventually(t, func() bool { return attacher.attached.Load() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return rec.seen(StateConnected) }, waitFor, tick)
	assert.Equal(t, []State{StateConnecting, StateAuthenticating, StateConnected}, rec.snapshot())
	assert.Equal(t, 1, saver.count())

	opts, _ := dialer.last()
	assert.False(t, opts.Register)
	assert.Equal(t, "abc", opts.DeviceID)
}

func TestConnect_ErrorThenReconnect(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	attacher := &attachCounter{}
	c := NewClient(dialer, WithAttacher(attacher))
	defer c.Dispose()

	require.NoError(t, c.Connect(testCredentials()))
	require.Eventually(t, func() bool { return c.State() == StateError }, waitFor, tick)
	assert.True(t, c.State().Failed())
	assert.Zero(t, attacher.attached.Load())

	dialer.setErr(nil)
	c.Reconnect()

	require.Eventually(t, func() bool { return attacher.attached.Load() == 1 }, waitFor, tick)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 2, dialer.count())
}

func TestReconnect_NoOpWhileConnected(t *testing.T) {
	dialer := &fakeDialer{}
	attacher := &attachCounter{}
	c := NewClient(dialer, WithAttacher(attacher))
	defer c.Dispose()

	c.Reconnect()
	assert.Zero(t, dialer.count(), "no credentials yet")

	require.NoError(t, c.Connect(testCredentials()))
	require.Eventually(t, func() bool { return attacher.attached.Load() == 1 }, waitFor, tick)

	c.Reconnect()
	c.Reconnect()
	assert.Equal(t, 1, dialer.count())
}

func TestOffline_DetachesAndReattachesOnReconnect(t *testing.T) {
	dialer := &fakeDialer{}
	attacher := &attachCounter{}
	c := NewClient(dialer, WithAttacher(attacher))
	defer c.Dispose()

	require.NoError(t, c.Connect(testCredentials()))
	require.Eventually(t, func() bool { return attacher.attached.Load() == 1 }, waitFor, tick)

	opts, conn := dialer.last()
	opts.OnDisconnect(errors.New("broken pipe"))

	require.Eventually(t, func() bool { return attacher.detached.Load() == 1 }, waitFor, tick)
	assert.Equal(t, StateOffline, c.State())
	assert.True(t, conn.closed.Load())

	// A second disconnect callback for the same episode is ignored.
	opts.OnDisconnect(nil)
	assert.Equal(t, int32(1), attacher.detached.Load())

	c.Reconnect()
	require.Eventually(t, func() bool { return attacher.attached.Load() == 2 }, waitFor, tick)
	assert.Equal(t, StateConnected, c.State())
}

func TestProbe_SuccessSwitchesToSteady(t *testing.T) {
	dialer := &fakeDialer{}
	saver := &fakeSaver{}
	attacher := &attachCounter{}
	rec := &stateRecorder{}

	var failures atomic.Int32
	c := NewClient(dialer, WithCredentialSaver(saver), WithAttacher(attacher))
	c.OnStateChanged(rec.record)
	defer c.Dispose()

	require.NoError(t, c.Probe(testCredentials(), func(Credentials) { failures.Add(1) }))
	require.Eventually(t, func() bool { return attacher.attached.Load() == 1 }, waitFor, tick)

	opts, _ := dialer.last()
	assert.True(t, opts.Register)
	assert.Equal(t, 1, saver.count())
	assert.True(t, rec.seen(StateRegistering))

	// After a successful probe a drop is a steady-state Offline, not an
	// onboarding failure.
	opts.OnDisconnect(errors.New("gone"))
	require.Eventually(t, func() bool { return c.State() == StateOffline }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, failures.Load())

	c.Reconnect()
	require.Eventually(t, func() bool { return c.State() == StateConnected }, waitFor, tick)
	opts, _ = dialer.last()
	assert.False(t, opts.Register, "registration only happens during the probe")
}

func TestProbe_FailureInvokesCallback(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("authorization violation")}
	saver := &fakeSaver{}

	got := make(chan Credentials, 1)
	c := NewClient(dialer, WithCredentialSaver(saver))
	defer c.Dispose()

	creds := testCredentials()
	require.NoError(t, c.Probe(creds, func(hint Credentials) { got <- hint }))

	select {
	case hint := <-got:
		assert.Equal(t, creds.Host, hint.Host)
		assert.Equal(t, creds.Port, hint.Port)
		assert.Equal(t, creds.UserName, hint.UserName)
		assert.Empty(t, hint.PasswordHash)
	case <-time.After(waitFor):
		t.Fatal("probe failure callback not called")
	}

	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitFor, tick)
	assert.Zero(t, saver.count(), "failed probes must not persist credentials")
}

func TestProbe_RegisterFailed(t *testing.T) {
	dialer := &fakeDialer{err: ErrRegisterFailed}
	rec := &stateRecorder{}

	got := make(chan struct{}, 1)
	c := NewClient(dialer)
	c.OnStateChanged(rec.record)
	defer c.Dispose()

	require.NoError(t, c.Probe(testCredentials(), func(Credentials) { got <- struct{}{} }))

	select {
	case <-got:
	case <-time.After(waitFor):
		t.Fatal("probe failure callback not called")
	}
	assert.True(t, rec.seen(StateRegisterFailed))
}

func TestDispose_Idempotent(t *testing.T) {
	dialer := &fakeDialer{}
	attacher := &attachCounter{}
	c := NewClient(dialer, WithAttacher(attacher))

	require.NoError(t, c.Connect(testCredentials()))
	require.Eventually(t, func() bool { return attacher.attached.Load() == 1 }, waitFor, tick)

	_, conn := dialer.last()
	c.Dispose()
	c.Dispose()

	assert.Equal(t, int32(1), attacher.detached.Load())
	assert.True(t, conn.closed.Load())
	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.Connect(testCredentials()), ErrDisposed)

	c.Reconnect()
	assert.Equal(t, 1, dialer.count())
}

func TestCredentials_UnsupportedHashMethod(t *testing.T) {
	creds := testCredentials()
	creds.PasswordHashMethod = "MD5"

	_, err := creds.secret()
	assert.ErrorIs(t, err, ErrUnsupportedHashMethod)
}
