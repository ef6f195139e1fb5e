package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/actuator/pkg/natstest"
)

func brokerCredentials(b *natstest.Broker) Credentials {
	creds := testCredentials()
	creds.Host = b.Host
	creds.Port = b.Port
	return creds
}

func runBroker(t *testing.T) *natstest.Broker {
	t.Helper()
	hash, _ := HashPassword("relay", "secret")
	return natstest.Run(t, "relay", hash)
}

func TestNATSDialer_ProbeAgainstBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded broker test in short mode")
	}

	broker := runBroker(t)
	saver := &fakeSaver{}
	attacher := &attachCounter{}

	c := NewClient(NewNATSDialer("actuator-test", ""), WithCredentialSaver(saver), WithAttacher(attacher))
	defer c.Dispose()

	require.NoError(t, c.Probe(brokerCredentials(broker), func(Credentials) {
		t.Error("probe should succeed")
	}))
	require.Eventually(t, func() bool { return attacher.attached.Load() == 1 }, waitFor, tick)
	assert.Equal(t, 1, saver.count())

	broker.Shutdown()
	require.Eventually(t, func() bool { return c.State() == StateOffline }, waitFor, tick)
	require.Eventually(t, func() bool { return attacher.detached.Load() == 1 }, waitFor, tick)
}

func TestNATSDialer_WrongPassword(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded broker test in short mode")
	}

	broker := runBroker(t)
	creds := brokerCredentials(broker)
	creds.PasswordHash, _ = HashPassword("relay", "wrong")

	got := make(chan Credentials, 1)
	c := NewClient(NewNATSDialer("actuator-test", ""))
	defer c.Dispose()

	require.NoError(t, c.Probe(creds, func(hint Credentials) { got <- hint }))

	select {
	case hint := <-got:
		assert.Equal(t, "relay", hint.UserName)
	case <-time.After(waitFor):
		t.Fatal("expected probe failure")
	}
}

func TestNATSDialer_RegistrarRejects(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded broker test in short mode")
	}

	broker := runBroker(t)
	registrar := broker.Connect(t)

	_, err := registrar.Subscribe(RegisterSubject(DefaultSubjectPrefix), func(msg *nats.Msg) {
		var req Registration
		if json.Unmarshal(msg.Data, &req) != nil || req.DeviceID != "dev1" {
			return
		}
		data, _ := json.Marshal(RegistrationReply{OK: false, Error: "user exists"})
		_ = msg.Respond(data)
	})
	require.NoError(t, err)
	require.NoError(t, registrar.Flush())

	rec := &stateRecorder{}
	c := NewClient(NewNATSDialer("actuator-test", ""), WithDeviceID("dev1"))
	c.OnStateChanged(rec.record)
	defer c.Dispose()

	failed := make(chan struct{}, 1)
	require.NoError(t, c.Probe(brokerCredentials(broker), func(Credentials) { failed <- struct{}{} }))

	select {
	case <-failed:
	case <-time.After(waitFor):
		t.Fatal("expected registration failure")
	}
	assert.True(t, rec.seen(StateRegistering))
	assert.True(t, rec.seen(StateRegisterFailed))
}
