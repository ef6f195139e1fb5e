// Package natstest runs an embedded NATS broker for tests.
package natstest

import (
	"net"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// Broker is an embedded server bound to a random loopback port.
type Broker struct {
	*server.Server
	Host     string
	Port     int
	User     string
	Password string
}

// Run starts a broker that accepts user/password. An empty user disables
// authentication. The server is shut down when the test ends.
func Run(t *testing.T, user, password string) *Broker {
	t.Helper()

	opts := &server.Options{
		Host:     "127.0.0.1",
		Port:     -1,
		Username: user,
		Password: password,
		NoLog:    true,
		NoSigs:   true,
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}
	t.Cleanup(srv.Shutdown)

	addr, ok := srv.Addr().(*net.TCPAddr)
	require.True(t, ok, "expected TCP address from embedded NATS server")

	return &Broker{Server: srv, Host: "127.0.0.1", Port: addr.Port, User: user, Password: password}
}

// Connect opens a plain client connection to the broker.
func (b *Broker) Connect(t *testing.T) *nats.Conn {
	t.Helper()

	var opts []nats.Option
	if b.User != "" {
		opts = append(opts, nats.UserInfo(b.User, b.Password))
	}
	nc, err := nats.Connect(b.ClientURL(), opts...)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}
