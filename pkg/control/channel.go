// Package control exposes named, typed parameters for remote get and set over
// the messaging session.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/control/schema"
	"github.com/urmzd/actuator/pkg/session"
)

const setTimeout = 10 * time.Second

// Channel serves the control parameters of one device.
type Channel struct {
	root         string
	defaultActor string
	validator    *schema.Validator
	params       []Parameter
	byName       map[string]Parameter
}

// NewChannel creates a channel rooted at root. Remote writes that do not name
// an actor are attributed to defaultActor.
func NewChannel(root, defaultActor string, params ...Parameter) *Channel {
	c := &Channel{
		root:         root,
		defaultActor: defaultActor,
		validator:    schema.NewValidator(),
		params:       params,
		byName:       make(map[string]Parameter, len(params)),
	}
	for _, p := range params {
		c.byName[p.Descriptor().Name] = p
	}
	return c
}

// Parameters lists the descriptors in registration order.
func (c *Channel) Parameters() []Descriptor {
	out := make([]Descriptor, 0, len(c.params))
	for _, p := range c.params {
		out = append(out, p.Descriptor())
	}
	return out
}

// Get returns the cached value of a parameter.
func (c *Channel) Get(name string) (any, bool, error) {
	p, ok := c.byName[name]
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	v, known := p.Get()
	return v, known, nil
}

// Set validates value against the parameter schema and forwards it.
func (c *Channel) Set(ctx context.Context, name string, value any, actor string) error {
	p, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	desc := p.Descriptor()
	if !desc.Writable {
		return ErrNotPermitted
	}
	if err := c.validator.Validate(desc.Schema, value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if actor == "" {
		actor = c.defaultActor
	}
	return p.Set(ctx, value, actor)
}

// Attach subscribes the control subjects on conn. The returned function
// removes the subscriptions.
func (c *Channel) Attach(conn session.Conn) (func(), error) {
	handlers := map[string]func(*nats.Msg) Reply{
		ListSubject(c.root): c.handleList,
		GetSubject(c.root):  c.handleGet,
		SetSubject(c.root):  c.handleSet,
	}

	var subs []*nats.Subscription
	detach := func() {
		for _, sub := range subs {
			if sub == nil {
				continue
			}
			if err := sub.Unsubscribe(); err != nil {
				log.Debug().Err(err).Str("subject", sub.Subject).Msg("Unsubscribe failed")
			}
		}
	}

	for subject, h := range handlers {
		sub, err := conn.Subscribe(subject, c.serve(h))
		if err != nil {
			detach()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	log.Info().Str("root", c.root).Int("parameters", len(c.params)).Msg("Control channel attached")
	return detach, nil
}

func (c *Channel) serve(h func(*nats.Msg) Reply) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var reply Reply
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("subject", msg.Subject).Msg("Control handler panicked")
					reply = errorReply(CodeInternal, "internal error")
				}
			}()
			reply = h(msg)
		}()

		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode control reply")
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to send control reply")
		}
	}
}

func (c *Channel) handleList(_ *nats.Msg) Reply {
	return Reply{Parameters: c.Parameters()}
}

func (c *Channel) handleGet(msg *nats.Msg) Reply {
	req, err := c.decode(getRequestSchema, msg.Data)
	if err != nil {
		return errorReply(CodeBadRequest, err.Error())
	}

	v, known, err := c.Get(req.Name)
	if err != nil {
		return errorReply(codeFor(err), err.Error())
	}
	return Reply{Name: req.Name, Value: v, Known: known}
}

func (c *Channel) handleSet(msg *nats.Msg) Reply {
	req, err := c.decode(setRequestSchema, msg.Data)
	if err != nil {
		return errorReply(CodeBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), setTimeout)
	defer cancel()

	if err := c.Set(ctx, req.Name, req.Value, req.Actor); err != nil {
		log.Warn().Err(err).Str("parameter", req.Name).Str("actor", req.Actor).Msg("Remote set rejected")
		return errorReply(codeFor(err), err.Error())
	}

	v, known, _ := c.Get(req.Name)
	return Reply{Name: req.Name, Value: v, Known: known}
}

// decode validates the envelope and unpacks it.
func (c *Channel) decode(schemaDoc json.RawMessage, data []byte) (Request, error) {
	if _, err := c.validator.Decode(schemaDoc, data); err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func errorReply(code, message string) Reply {
	return Reply{Error: &ErrorBody{Code: code, Message: message}}
}
