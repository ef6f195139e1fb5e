package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// DefaultSubjectPrefix roots every subject the agent uses.
const DefaultSubjectPrefix = "actuator"

// Conn is the live connection handed to the protocol channels.
// *nats.Conn satisfies it.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
	Close()
}

// DialOptions describe one connection attempt.
type DialOptions struct {
	Credentials Credentials
	Register    bool
	DeviceID    string

	// Progress reports intermediate states such as Registering.
	Progress func(State)
	// OnDisconnect is called when an established connection drops.
	OnDisconnect func(error)
}

// Dialer opens authenticated connections.
type Dialer interface {
	Dial(ctx context.Context, opts DialOptions) (Conn, error)
}

// NATSDialer connects to a NATS broker with user/password authentication.
// Client-side reconnect is disabled; the supervisor owns retries.
type NATSDialer struct {
	Name    string
	Prefix  string
	Timeout time.Duration
}

// NewNATSDialer returns a dialer with the default prefix and a 10s timeout.
func NewNATSDialer(name, prefix string) *NATSDialer {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSDialer{Name: name, Prefix: prefix, Timeout: 10 * time.Second}
}

// Dial connects and, when requested, registers the account.
func (d *NATSDialer) Dial(ctx context.Context, opts DialOptions) (Conn, error) {
	secret, err := opts.Credentials.secret()
	if err != nil {
		return nil, err
	}

	natsOpts := []nats.Option{
		nats.Name(d.Name),
		nats.UserInfo(opts.Credentials.UserName, secret),
		nats.Timeout(d.Timeout),
		nats.NoReconnect(),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Warn().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS async error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
		}),
	}

	nc, err := nats.Connect("nats://"+opts.Credentials.Address(), natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Credentials.Address(), err)
	}

	if err := ctx.Err(); err != nil {
		nc.Close()
		return nil, err
	}

	if opts.Register {
		if opts.Progress != nil {
			opts.Progress(StateRegistering)
		}
		if err := d.register(ctx, nc, opts); err != nil {
			nc.Close()
			return nil, err
		}
	}

	return nc, nil
}

// Root returns the subject root of one device.
func Root(prefix, deviceID string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + deviceID
}

// RegisterSubject is where registration requests are sent.
func RegisterSubject(prefix string) string {
	return prefix + ".register"
}

// Registration is the account registration request.
type Registration struct {
	DeviceID string `json:"device_id"`
	UserName string `json:"user_name"`
}

// RegistrationReply answers a Registration.
type RegistrationReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// register asks the broker-side registrar to create the account. A broker
// without a registrar accepts any authenticated client, so no responders
// counts as success.
func (d *NATSDialer) register(ctx context.Context, nc *nats.Conn, opts DialOptions) error {
	data, err := json.Marshal(Registration{DeviceID: opts.DeviceID, UserName: opts.Credentials.UserName})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	msg, err := nc.RequestWithContext(ctx, RegisterSubject(d.Prefix), data)
	if errors.Is(err, nats.ErrNoResponders) {
		log.Debug().Msg("No registrar on broker, registration skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegisterFailed, err)
	}

	var reply RegistrationReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("%w: malformed reply: %v", ErrRegisterFailed, err)
	}
	if !reply.OK {
		return fmt.Errorf("%w: %s", ErrRegisterFailed, reply.Error)
	}

	log.Info().Str("user", opts.Credentials.UserName).Msg("Account registered")
	return nil
}

var _ Conn = (*nats.Conn)(nil)
