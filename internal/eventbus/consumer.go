package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"corridor/pkg/tracecontext"
)

// ConsumerState is the position of the consumer's connection lifecycle.
type ConsumerState int32

const (
	StateDisconnected ConsumerState = iota
	StateConnecting
	StateDeclaringTopology
	StateConsuming
)

func (s ConsumerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateDeclaringTopology:
		return "declaring_topology"
	case StateConsuming:
		return "consuming"
	default:
		return "disconnected"
	}
}

// Message is a decoded delivery handed to a Handler.
type Message struct {
	ID          string
	Type        EventType
	Envelope    Envelope
	Event       Event
	Trace       tracecontext.TraceContext
	OccurredAt  time.Time
	Redelivered bool
}

// Handler processes one message. A nil error acknowledges the delivery; any
// error rejects it without requeue.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Consumer binds a durable queue to the topic exchange and feeds deliveries
// to a Handler with manual acknowledgement.
type Consumer struct {
	url      string
	queue    string
	tag      string
	dial     Dialer
	topology Topology
	policy   Reconnect
	prefetch int
	handler  Handler
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
	onState  func(ConsumerState)

	state atomic.Int32
}

type ConsumerOption func(*Consumer)

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithConsumerMetrics(m *Metrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

func WithConsumerDialer(d Dialer) ConsumerOption {
	return func(c *Consumer) {
		if d != nil {
			c.dial = d
		}
	}
}

func WithConsumerTopology(t Topology) ConsumerOption {
	return func(c *Consumer) { c.topology = t }
}

func WithConsumerReconnect(r Reconnect) ConsumerOption {
	return func(c *Consumer) { c.policy = r }
}

// WithPrefetch bounds unacknowledged deliveries in flight.
func WithPrefetch(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) { c.tag = tag }
}

// WithStateHook is called on every lifecycle transition.
func WithStateHook(fn func(ConsumerState)) ConsumerOption {
	return func(c *Consumer) { c.onState = fn }
}

func WithConsumerClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) {
		if now != nil {
			c.now = now
		}
	}
}

// NewConsumer consumes queue, which must appear in the topology.
func NewConsumer(url, queue string, handler Handler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		url:      url,
		queue:    queue,
		dial:     DialAMQP("corridor-consumer"),
		topology: DefaultTopology(),
		policy:   DefaultReconnect,
		prefetch: 10,
		handler:  handler,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current lifecycle position.
func (c *Consumer) State() ConsumerState {
	return ConsumerState(c.state.Load())
}

// Run connects, declares the topology, and consumes until ctx is cancelled,
// reconnecting with backoff whenever the session drops. With no URL it
// returns immediately.
func (c *Consumer) Run(ctx context.Context) error {
	if c.url == "" {
		c.logger.Info("event bus not configured, consumer disabled")
		return nil
	}
	superviseConnection(ctx, "consumer", c.policy, c.logger, c.metrics, c.connect)
	c.setState(StateDisconnected)
	return nil
}

func (c *Consumer) connect(ctx context.Context) (*session, error) {
	c.setState(StateConnecting)
	conn, err := c.dial(c.url)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		c.setState(StateDisconnected)
		return nil, err
	}

	c.setState(StateDeclaringTopology)
	if err := c.topology.Declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		c.setState(StateDisconnected)
		return nil, err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		c.setState(StateDisconnected)
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	closed := watchClose(conn, ch)
	done := make(chan struct{})
	c.setState(StateConsuming)
	c.logger.Info("consumer started", "queue", c.queue, "prefetch", c.prefetch)

	go func() {
		defer close(done)
		defer c.setState(StateDisconnected)
		for {
			select {
			case <-ctx.Done():
				return
			case <-closed:
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				c.process(ctx, d)
			}
		}
	}()
	return &session{conn: conn, done: done}, nil
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	defer func() {
		c.metrics.observeHandle(float64(time.Since(start).Milliseconds()))
	}()

	env, event, err := Decode(d.RoutingKey, d.Body)
	if err != nil {
		c.reject(ctx, d, "decode", err)
		return
	}

	msg := Message{
		ID:          d.MessageId,
		Type:        event.Type(),
		Envelope:    env,
		Event:       event,
		Trace:       deliveryTrace(d, env),
		OccurredAt:  env.OccurredAt(c.now()),
		Redelivered: d.Redelivered,
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		c.reject(ctx, d, "handler", err)
		return
	}
	if err := d.Ack(false); err != nil {
		c.logger.ErrorContext(ctx, "ack failed", "routing_key", d.RoutingKey, "error", err)
		return
	}
	c.metrics.recordConsume(d.RoutingKey, "acked")
}

func (c *Consumer) reject(ctx context.Context, d amqp.Delivery, stage string, cause error) {
	c.logger.ErrorContext(ctx, "delivery rejected",
		"routing_key", d.RoutingKey,
		"message_id", d.MessageId,
		"stage", stage,
		"error", cause,
	)
	if err := d.Nack(false, false); err != nil {
		c.logger.ErrorContext(ctx, "nack failed", "routing_key", d.RoutingKey, "error", err)
		return
	}
	c.metrics.recordConsume(d.RoutingKey, "rejected")
}

func (c *Consumer) setState(s ConsumerState) {
	if ConsumerState(c.state.Swap(int32(s))) == s {
		return
	}
	c.metrics.setConsumerState(s)
	if c.onState != nil {
		c.onState(s)
	}
}

// deliveryTrace prefers the envelope's traceId, then the AMQP correlation id,
// then a traceparent header. The result may be zero; callers pick a fallback.
func deliveryTrace(d amqp.Delivery, env Envelope) tracecontext.TraceContext {
	origin := env.Service
	if origin == "" {
		origin = d.AppId
	}
	switch {
	case env.TraceID != "":
		return tracecontext.TraceContext{TraceID: env.TraceID, OriginService: origin}
	case d.CorrelationId != "":
		return tracecontext.TraceContext{TraceID: d.CorrelationId, OriginService: origin}
	}
	carrier := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	if id, ok := tracecontext.ExtractTraceID(carrier); ok {
		return tracecontext.TraceContext{TraceID: id, OriginService: origin}
	}
	return tracecontext.TraceContext{OriginService: origin}
}
