package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/actuator/pkg/natstest"
)

type fakeOutput struct {
	mu     sync.Mutex
	value  bool
	known  bool
	writes int
	actors []string
}

func (f *fakeOutput) get() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.known
}

func (f *fakeOutput) set(_ context.Context, v bool, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known || f.value != v {
		f.writes++
	}
	f.value, f.known = v, true
	f.actors = append(f.actors, actor)
	return nil
}

func (f *fakeOutput) lastActor() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.actors) == 0 {
		return ""
	}
	return f.actors[len(f.actors)-1]
}

func outputParameter(f *fakeOutput) *BooleanParameter {
	return NewBooleanParameter("Output", "Actuator", "Output", "Relay output", f.get, f.set)
}

func TestBooleanParameter(t *testing.T) {
	f := &fakeOutput{}
	p := outputParameter(f)
	ctx := context.Background()

	v, known := p.Get()
	assert.False(t, known)
	assert.Nil(t, v)

	assert.ErrorIs(t, p.Set(ctx, "on", "test"), ErrInvalidValue)
	require.NoError(t, p.Set(ctx, true, "test"))

	v, known = p.Get()
	assert.True(t, known)
	assert.Equal(t, true, v)

	desc := p.Descriptor()
	assert.Equal(t, "Output", desc.Name)
	assert.Equal(t, TypeBoolean, desc.Type)
	assert.True(t, desc.Writable)
}

func TestBooleanParameter_ReadOnly(t *testing.T) {
	f := &fakeOutput{}
	p := NewBooleanParameter("Output", "Actuator", "Output", "", f.get, nil)

	assert.False(t, p.Descriptor().Writable)
	assert.ErrorIs(t, p.Set(context.Background(), true, "test"), ErrNotPermitted)

	c := NewChannel("actuator.dev", "XMPP", p)
	assert.ErrorIs(t, c.Set(context.Background(), "Output", true, ""), ErrNotPermitted)
}

func TestChannel_LocalGetSet(t *testing.T) {
	f := &fakeOutput{}
	c := NewChannel("actuator.dev", "XMPP", outputParameter(f))
	ctx := context.Background()

	_, _, err := c.Get("Brightness")
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.ErrorIs(t, c.Set(ctx, "Brightness", true, ""), ErrUnknownParameter)
	assert.ErrorIs(t, c.Set(ctx, "Output", 1, ""), ErrInvalidValue)

	require.NoError(t, c.Set(ctx, "Output", true, ""))
	require.NoError(t, c.Set(ctx, "Output", true, ""))
	assert.Equal(t, 1, f.writes, "same value twice is one logical write")
	assert.Equal(t, "XMPP", f.lastActor())

	v, known, err := c.Get("Output")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, true, v)
}

func TestChannel_RemoteOverBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded broker test in short mode")
	}

	broker := natstest.Run(t, "", "")
	device := broker.Connect(t)
	remote := broker.Connect(t)

	f := &fakeOutput{}
	root := "actuator.0123456789abcdef0123456789abcdef"
	c := NewChannel(root, "XMPP", outputParameter(f))

	detach, err := c.Attach(device)
	require.NoError(t, err)
	require.NoError(t, device.Flush())

	client := NewClient(remote, root)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	params, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "Output", params[0].Name)
	assert.Equal(t, "Actuator", params[0].Category)

	_, known, err := client.Get(ctx, "Output")
	require.NoError(t, err)
	assert.False(t, known, "no value before the first write")

	v, err := client.Set(ctx, "Output", true, "MCP")
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Equal(t, "MCP", f.lastActor())

	v, known, err = client.Get(ctx, "Output")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, true, v)

	_, err = client.Set(ctx, "Output", "yes", "")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, _, err = client.Get(ctx, "Missing")
	assert.ErrorIs(t, err, ErrUnknownParameter)

	_, err = remote.Request(SetSubject(root), []byte(`{"value":true}`), time.Second)
	require.NoError(t, err, "malformed requests still get a reply")

	detach()
	require.NoError(t, device.Flush())

	_, err = client.List(ctx)
	assert.ErrorIs(t, err, nats.ErrNoResponders)
}
