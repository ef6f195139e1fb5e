package gpio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/actuator/pkg/output"
	gpiod "github.com/warthog618/go-gpiocdev"
)

type fakeLine struct {
	mu           sync.Mutex
	values       []int
	reconfigured bool
	closed       bool
}

func (l *fakeLine) SetValue(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, v)
	return nil
}

func (l *fakeLine) Reconfigure(...gpiod.LineConfigOption) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reconfigured = true
	return nil
}

func (l *fakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func nextEvent(t *testing.T, s *Sink) output.Event {
	t.Helper()
	select {
	case evt := <-s.Events():
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return output.Event{}
	}
}

func TestSink_ReadyAndSetLevel(t *testing.T) {
	fl := &fakeLine{}
	s := NewSink("gpiochip0", 5)
	s.request = func(chip string, offset int) (line, error) {
		assert.Equal(t, "gpiochip0", chip)
		assert.Equal(t, 5, offset)
		return fl, nil
	}

	require.ErrorIs(t, s.SetLevel(true), output.ErrHardwareUnavailable)

	s.Start(context.Background())
	evt := nextEvent(t, s)
	assert.Equal(t, output.EventReady, evt.Type)
	assert.Equal(t, "gpiochip0:5", evt.Device)
	assert.True(t, s.IsReady())

	require.NoError(t, s.SetLevel(true))
	require.NoError(t, s.SetLevel(false))
	assert.Equal(t, []int{1, 0}, fl.values)

	require.NoError(t, s.Close())
	assert.True(t, fl.reconfigured)
	assert.True(t, fl.closed)
	assert.False(t, s.IsReady())
	require.NoError(t, s.Close())
}

func TestSink_RequestFailure(t *testing.T) {
	s := NewSink("gpiochip9", 5)
	s.request = func(string, int) (line, error) {
		return nil, errors.New("no such chip")
	}

	s.Start(context.Background())
	evt := nextEvent(t, s)
	assert.Equal(t, output.EventConnectionFailed, evt.Type)
	assert.Contains(t, evt.Reason, "no such chip")
	assert.False(t, s.IsReady())
	assert.NoError(t, s.Close())
}
