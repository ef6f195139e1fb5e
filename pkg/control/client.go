package control

import (
	"context"
	"encoding/json"
	"fmt"

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

// List returns the parameter descriptors.
func (c *Client) List(ctx context.Context) ([]Descriptor, error) {
	reply, err := c.request(ctx, ListSubject(c.root), nil)
	if err != nil {
		return nil, err
	}
	return reply.Parameters, nil
}

// Get reads a parameter. known is false when the device has no value yet.
func (c *Client) Get(ctx context.Context, name string) (value any, known bool, err error) {
	reply, err := c.request(ctx, GetSubject(c.root), Request{Name: name})
	if err != nil {
		return nil, false, err
	}
	return reply.Value, reply.Known, nil
}

// Set writes a parameter and returns the value the device reports back.
func (c *Client) Set(ctx context.Context, name string, value any, actor string) (any, error) {
	reply, err := c.request(ctx, SetSubject(c.root), Request{Name: name, Value: value, Actor: actor})
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (c *Client) request(ctx context.Context, subject string, req any) (Reply, error) {
	var data []byte
	if req != nil {
		var err error
		if data, err = json.Marshal(req); err != nil {
			return Reply{}, err
		}
	}

	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return Reply{}, fmt.Errorf("request %s: %w", subject, err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != nil {
		return reply, fmt.Errorf("%w: %s", errorFor(reply.Error.Code), reply.Error.Message)
	}
	return reply, nil
}
