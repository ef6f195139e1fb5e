package sensor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/actuator/pkg/session"
)

const publishQueueSize = 32

// Channel answers readout requests and publishes changed fields.
type Channel struct {
	root     string
	deviceID string
	output   func() (bool, bool)
	now      func() time.Time

	mu sync.Mutex
	ep *episode
}

type episode struct {
	conn  session.Conn
	queue chan Field
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewChannel creates a channel for the device. output returns the cached
// output value and whether it is known.
func NewChannel(root, deviceID string, output func() (bool, bool)) *Channel {
	return &Channel{
		root:     root,
		deviceID: deviceID,
		output:   output,
		now:      time.Now,
	}
}

// OnReadoutRequest reports the requested fields. An unknown output value is
// simply left out.
func (c *Channel) OnReadoutRequest(req ReadoutRequest) []Field {
	types := req.Types
	if types == 0 {
		types = FieldAll
	}

	now := c.now()
	var fields []Field

	if types.Includes(FieldIdentity) {
		fields = append(fields, Field{
			Name:      FieldNameDeviceID,
			Type:      FieldIdentity,
			QoS:       QoSAutomaticReadout,
			Timestamp: now,
			Value:     c.deviceID,
		})
	}

	if types.Includes(FieldMomentary) {
		if on, known := c.output(); known {
			fields = append(fields, OutputField(on, true, now))
		}
	}

	log.Debug().Str("actor", req.Actor).Stringer("types", types).Int("fields", len(fields)).Msg("Readout")
	return fields
}

// Publish queues a changed field for subscribers. It never blocks; the field
// is dropped when no session is attached or the queue is full.
func (c *Channel) Publish(f Field) {
	c.mu.Lock()
	ep := c.ep
	c.mu.Unlock()

	if ep == nil {
		log.Debug().Str("field", f.Name).Msg("Sensor channel detached, field not published")
		return
	}

	select {
	case ep.queue <- f:
	default:
		log.Warn().Str("field", f.Name).Msg("Sensor publish queue full, field dropped")
	}
}

// Attach serves readout requests on conn and starts the publisher. The
// returned function stops both.
func (c *Channel) Attach(conn session.Conn) (func(), error) {
	sub, err := conn.Subscribe(ReadoutSubject(c.root), c.handleReadout)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", ReadoutSubject(c.root), err)
	}

	ep := &episode{
		conn:  conn,
		queue: make(chan Field, publishQueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go c.publishLoop(ep)

	c.mu.Lock()
	prev := c.ep
	c.ep = ep
	c.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	log.Info().Str("root", c.root).Msg("Sensor channel attached")

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.ep == ep {
				c.ep = nil
			}
			c.mu.Unlock()

			if sub != nil {
				if err := sub.Unsubscribe(); err != nil {
					log.Debug().Err(err).Msg("Unsubscribe failed")
				}
			}
			ep.close()
		})
	}, nil
}

func (ep *episode) close() {
	ep.once.Do(func() { close(ep.stop) })
	<-ep.done
}

func (c *Channel) publishLoop(ep *episode) {
	defer close(ep.done)

	subject := EventsSubject(c.root)
	for {
		select {
		case <-ep.stop:
			return
		case f := <-ep.queue:
			c.send(ep.conn, subject, f)
		}
	}
}

func (c *Channel) send(conn session.Conn, subject string, f Field) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Sensor publish panicked")
		}
	}()

	data, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode sensor field")
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("field", f.Name).Msg("Failed to publish sensor field")
	}
}

func (c *Channel) handleReadout(msg *nats.Msg) {
	var reply ReadoutReply

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Readout handler panicked")
				reply = ReadoutReply{Error: "internal error"}
			}
		}()

		var req ReadoutRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				reply = ReadoutReply{Error: "malformed readout request"}
				return
			}
		}
		reply = ReadoutReply{Fields: c.OnReadoutRequest(req)}
	}()

	if msg.Reply == "" {
		return
	}
	if reply.Fields == nil && reply.Error == "" {
		reply.Fields = []Field{}
	}
	data, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode readout reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Warn().Err(err).Msg("Failed to send readout reply")
	}
}
