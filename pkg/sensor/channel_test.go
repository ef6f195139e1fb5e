package sensor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/actuator/pkg/natstest"
)

type outputValue struct {
	mu    sync.Mutex
	on    bool
	known bool
}

func (o *outputValue) get() (bool, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on, o.known
}

func (o *outputValue) set(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.on, o.known = on, true
}

const deviceID = "0123456789abcdef0123456789abcdef"

func TestFieldType(t *testing.T) {
	assert.True(t, FieldAll.Includes(FieldIdentity))
	assert.True(t, FieldAll.Includes(FieldMomentary))
	assert.False(t, FieldAll.Includes(FieldHistorical))
	assert.Equal(t, "identity|momentary", (FieldIdentity | FieldMomentary).String())
	assert.Equal(t, "none", FieldType(0).String())
}

func TestOnReadoutRequest_UnknownOutput(t *testing.T) {
	out := &outputValue{}
	c := NewChannel("actuator."+deviceID, deviceID, out.get)

	fields := c.OnReadoutRequest(ReadoutRequest{Types: FieldMomentary, Actor: "test"})
	assert.Empty(t, fields, "no momentary field while the output is unknown")

	fields = c.OnReadoutRequest(ReadoutRequest{Types: FieldIdentity | FieldMomentary})
	require.Len(t, fields, 1)
	assert.Equal(t, FieldNameDeviceID, fields[0].Name)
	assert.Equal(t, deviceID, fields[0].Value)
}

func TestOnReadoutRequest_KnownOutput(t *testing.T) {
	out := &outputValue{}
	out.set(true)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewChannel("actuator."+deviceID, deviceID, out.get)
	c.now = func() time.Time { return ts }

	fields := c.OnReadoutRequest(ReadoutRequest{})
	require.Len(t, fields, 2)
	assert.Equal(t, FieldIdentity, fields[0].Type)

	assert.Equal(t, FieldNameOutput, fields[1].Name)
	assert.Equal(t, FieldMomentary, fields[1].Type)
	assert.Equal(t, true, fields[1].Value)
	assert.True(t, fields[1].Writable)
	assert.Equal(t, ts, fields[1].Timestamp)

	fields = c.OnReadoutRequest(ReadoutRequest{Types: FieldIdentity})
	require.Len(t, fields, 1)
}

func TestPublish_DetachedDoesNotBlock(t *testing.T) {
	c := NewChannel("actuator."+deviceID, deviceID, (&outputValue{}).get)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.Publish(OutputField(i%2 == 0, false, time.Now()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without an attached session")
	}
}

func TestChannel_OverBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded broker test in short mode")
	}

	broker := natstest.Run(t, "", "")
	device := broker.Connect(t)
	remote := broker.Connect(t)

	out := &outputValue{}
	root := "actuator." + deviceID
	c := NewChannel(root, deviceID, out.get)

	detach, err := c.Attach(device)
	require.NoError(t, err)
	require.NoError(t, device.Flush())

	client := NewClient(remote, root)

	var received atomic.Value
	var count atomic.Int32
	sub, err := client.Subscribe(func(f Field) {
		received.Store(f)
		count.Add(1)
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()
	require.NoError(t, remote.Flush())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fields, err := client.Readout(ctx, ReadoutRequest{Types: FieldMomentary})
	require.NoError(t, err)
	assert.Empty(t, fields)

	out.set(false)
	fields, err = client.Readout(ctx, ReadoutRequest{Types: FieldAll, Actor: "test"})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, false, fields[1].Value)

	c.Publish(OutputField(true, false, time.Now()))
	require.Eventually(t, func() bool { return count.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	f := received.Load().(Field)
	assert.Equal(t, FieldNameOutput, f.Name)
	assert.Equal(t, true, f.Value)

	detach()
	detach()
	require.NoError(t, device.Flush())

	c.Publish(OutputField(false, false, time.Now()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load(), "nothing published after detach")

	_, err = client.Readout(ctx, ReadoutRequest{})
	assert.ErrorIs(t, err, nats.ErrNoResponders)
}
