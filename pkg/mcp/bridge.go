package mcp

import (
	"context"
	"sync/atomic"

	"github.com/urmzd/actuator/pkg/control"
	"github.com/urmzd/actuator/pkg/sensor"
	"github.com/urmzd/actuator/pkg/session"
)

// Bridge is a Remote that reaches the device through a broker connection.
type Bridge struct {
	*control.Client
	sensor    *sensor.Client
	deviceID  string
	connected atomic.Bool
}

// NewBridge wraps conn for the device rooted at session.Root(prefix, deviceID).
func NewBridge(conn session.Conn, prefix, deviceID string) *Bridge {
	root := session.Root(prefix, deviceID)
	b := &Bridge{
		Client:   control.NewClient(conn, root),
		sensor:   sensor.NewClient(conn, root),
		deviceID: deviceID,
	}
	b.connected.Store(true)
	return b
}

// Disconnected marks the broker connection as lost. Pass it as the
// dialer's OnDisconnect callback.
func (b *Bridge) Disconnected(error) {
	b.connected.Store(false)
}

func (b *Bridge) Connected() bool { return b.connected.Load() }

func (b *Bridge) DeviceID() string { return b.deviceID }

func (b *Bridge) Readout(ctx context.Context, req sensor.ReadoutRequest) ([]sensor.Field, error) {
	return b.sensor.Readout(ctx, req)
}

var _ Remote = (*Bridge)(nil)
