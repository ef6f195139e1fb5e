package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/urmzd/actuator/pkg/session"
)

// Client is the remote side of a Channel.
type Client struct {
	conn session.Conn
	root string
}

// NewClient creates a client for the device rooted at root.
func NewClient(conn session.Conn, root string) *Client {
	return &Client{conn: conn, root: root}
}

// Readout requests the fields of the given types.
func (c *Client) Readout(ctx context.Context, req ReadoutRequest) ([]Field, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.conn.RequestWithContext(ctx, ReadoutSubject(c.root), data)
	if err != nil {
		return nil, fmt.Errorf("readout: %w", err)
	}

	var reply ReadoutReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode readout reply: %w", err)
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return reply.Fields, nil
}

// Subscribe calls fn for every published field until the returned
// subscription is unsubscribed.
func (c *Client) Subscribe(fn func(Field)) (*nats.Subscription, error) {
	return c.conn.Subscribe(EventsSubject(c.root), func(msg *nats.Msg) {
		var f Field
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			return
		}
		fn(f)
	})
}
