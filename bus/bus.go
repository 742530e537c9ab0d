// Package bus broadcasts transformed events over Redis pub/sub and receives
// events broadcast by other instances.
//
// Each instance publishes on <topic>:<instance-id> and pattern-subscribes to
// <topic>:*, skipping its own channel. Payloads are a JSON array of exactly
// three integers: [status, note, velocity].
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pianomirror/debug"
	"pianomirror/midi"
)

// DefaultTopic prefixes every channel
const DefaultTopic = "pianomirror"

var (
	// ErrConnect is returned when the broker can't be reached
	ErrConnect = errors.New("bus: connection failed")
	// ErrPayload is returned for messages that aren't a valid triple
	ErrPayload = errors.New("bus: invalid payload")
)

// Client is a connection to the broker for one instance
type Client struct {
	rdb      *redis.Client
	topic    string
	instance string
	log      *slog.Logger
}

// Connect dials url (redis://host:port/db) and verifies the connection
func Connect(ctx context.Context, url, topic string, logger *slog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		rdb:      redis.NewClient(opts),
		topic:    topic,
		instance: uuid.New().String(),
		log:      logger,
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.rdb.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, opts.Addr, err)
	}
	return c, nil
}

// Channel is where this instance publishes
func (c *Client) Channel() string {
	return c.topic + ":" + c.instance
}

// Instance is this client's unique id
func (c *Client) Instance() string {
	return c.instance
}

// Close closes the connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Encode renders ev as [status,note,velocity]
func Encode(ev midi.Event) []byte {
	b, _ := json.Marshal([3]int{int(ev.Status), int(ev.Note), int(ev.Velocity)})
	return b
}

// Decode parses a triple. Anything other than exactly three integers in
// MIDI range is rejected.
func Decode(payload []byte) (midi.Event, error) {
	var vals []int
	if err := json.Unmarshal(payload, &vals); err != nil {
		return midi.Event{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if len(vals) != 3 {
		return midi.Event{}, fmt.Errorf("%w: %d values", ErrPayload, len(vals))
	}
	for i, v := range vals {
		if v < 0 || v > 0xFF || (i > 0 && v > 127) {
			return midi.Event{}, fmt.Errorf("%w: %v", ErrPayload, vals)
		}
	}
	ev, ok := midi.FromBytes([]byte{byte(vals[0]), byte(vals[1]), byte(vals[2])})
	if !ok {
		return midi.Event{}, fmt.Errorf("%w: %v is not a channel message", ErrPayload, vals)
	}
	return ev, nil
}

// Publisher queues events and sends them from its own goroutine, so
// Publish never waits on the network
type Publisher struct {
	client  *Client
	queue   chan midi.Event
	dropped atomic.Uint64
}

// NewPublisher returns a publisher with a queue of size events
func (c *Client) NewPublisher(size int) *Publisher {
	if size <= 0 {
		size = midi.InputQueueSize
	}
	return &Publisher{client: c, queue: make(chan midi.Event, size)}
}

// Publish queues ev, dropping it if the queue is full
func (p *Publisher) Publish(ev midi.Event) {
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Dropped reports how many events didn't fit in the queue
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run sends queued events until ctx is done (blocking - run in goroutine)
func (p *Publisher) Run(ctx context.Context) {
	channel := p.client.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			if err := p.client.rdb.Publish(ctx, channel, Encode(ev)).Err(); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.client.log.Warn("bus publish failed", "err", err)
				continue
			}
			debug.Log("bus", "published %s", ev)
		}
	}
}

// Subscription delivers events from other instances to a handler
type Subscription struct {
	pubsub *redis.PubSub
	errors chan error
	cancel context.CancelFunc
	done   chan struct{}
}

// Errors returns decode errors. Buffered; errors are dropped if unread.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and waits for the handler goroutine
func (s *Subscription) Close() error {
	s.cancel()
	err := s.pubsub.Close()
	<-s.done
	return err
}

// Subscribe calls handler for every event published by other instances.
// handler runs on the subscription goroutine and must not block.
func (c *Client) Subscribe(ctx context.Context, handler func(midi.Event)) (*Subscription, error) {
	pattern := c.topic + ":*"
	pubsub := c.rdb.PSubscribe(ctx, pattern)

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrConnect, pattern, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		pubsub: pubsub,
		errors: make(chan error, 10),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	own := c.Channel()

	go func() {
		defer close(sub.done)
		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Channel == own || !strings.HasPrefix(msg.Channel, c.topic+":") {
					continue
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					select {
					case sub.errors <- fmt.Errorf("from %s: %w", msg.Channel, err):
					default:
					}
					continue
				}
				handler(ev)
			}
		}
	}()

	return sub, nil
}
