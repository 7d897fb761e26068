package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"corridor/pkg/domain"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/tracecontext"
)

const defaultPublishTimeout = 2 * time.Second

var errNotConnected = dErrors.New(dErrors.CodeBusUnavailable, "publisher not connected")

// Publisher sends domain events to the topic exchange. Publish never returns
// an error: a missing or broken broker must not fail the business operation
// that produced the event.
type Publisher struct {
	url      string
	dial     Dialer
	topology Topology
	policy   Reconnect
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	mu   sync.RWMutex
	conn Connection
	ch   Channel
	// pubMu serializes frames on the shared channel.
	pubMu sync.Mutex
}

type PublisherOption func(*Publisher)

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithPublisherMetrics(m *Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

func WithPublisherDialer(d Dialer) PublisherOption {
	return func(p *Publisher) {
		if d != nil {
			p.dial = d
		}
	}
}

func WithPublisherTopology(t Topology) PublisherOption {
	return func(p *Publisher) { p.topology = t }
}

func WithPublisherReconnect(r Reconnect) PublisherOption {
	return func(p *Publisher) { p.policy = r }
}

func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPublisher builds a publisher for url. An empty url yields a publisher
// that is permanently unconfigured and drops every event.
func NewPublisher(url string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		url:      url,
		dial:     DialAMQP("corridor-publisher"),
		topology: DefaultTopology(),
		policy:   DefaultReconnect,
		timeout:  defaultPublishTimeout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configured reports whether a broker URL was supplied.
func (p *Publisher) Configured() bool { return p.url != "" }

// Connected reports whether a channel is currently usable.
func (p *Publisher) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ch != nil
}

// Run keeps the broker connection alive until ctx is cancelled. It returns
// immediately when the publisher is unconfigured.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.Configured() {
		p.logger.Info("event bus not configured, events will be dropped")
		return nil
	}
	superviseConnection(ctx, "publisher", p.policy, p.logger, p.metrics, p.connect)
	p.detach()
	return nil
}

// Connect makes a single connection attempt. Run is the usual entry point;
// Connect exists for callers that want a synchronous first attempt.
func (p *Publisher) Connect(ctx context.Context) error {
	if !p.Configured() {
		return errNotConnected
	}
	_, err := p.connect(ctx)
	return err
}

func (p *Publisher) connect(_ context.Context) (*session, error) {
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBusUnavailable, "dial broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeBusUnavailable, "open channel")
	}
	if err := p.topology.DeclareExchange(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	done := watchClose(conn, ch)
	p.mu.Lock()
	p.conn, p.ch = conn, ch
	p.mu.Unlock()
	p.logger.Info("publisher connected", "exchange", p.topology.Exchange)

	go func() {
		<-done
		p.mu.Lock()
		if p.ch == ch {
			p.conn, p.ch = nil, nil
		}
		p.mu.Unlock()
	}()
	return &session{conn: conn, done: done}, nil
}

// Publish sends event with routing key event.Type(). It returns true when the
// broker accepted the frame and false when the publisher is unconfigured,
// disconnected, or the write failed. Failures are logged and never returned.
func (p *Publisher) Publish(ctx context.Context, trace tracecontext.TraceContext, event Event) bool {
	eventType := event.Type()
	if !p.Configured() {
		p.metrics.recordPublish(eventType, "unconfigured")
		return false
	}

	p.mu.RLock()
	ch := p.ch
	p.mu.RUnlock()
	if ch == nil {
		p.metrics.recordPublish(eventType, "disconnected")
		p.logger.WarnContext(ctx, "event dropped",
			"event_type", eventType, "trace_id", trace.TraceID,
			"code", dErrors.CodeOf(errNotConnected), "error", errNotConnected)
		return false
	}

	msg, err := p.buildMessage(trace, event)
	if err != nil {
		p.metrics.recordPublish(eventType, "invalid")
		p.logger.ErrorContext(ctx, "event dropped, invalid payload",
			"event_type", eventType, "error", err)
		return false
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	p.pubMu.Lock()
	err = ch.PublishWithContext(pubCtx, p.topology.Exchange, string(eventType), false, false, msg)
	p.pubMu.Unlock()
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeBusUnavailable, "publish")
		p.metrics.recordPublish(eventType, "failed")
		p.logger.ErrorContext(ctx, "event publish failed",
			"event_type", eventType, "trace_id", trace.TraceID,
			"code", dErrors.CodeOf(err), "error", err)
		return false
	}

	p.metrics.recordPublish(eventType, "published")
	p.logger.DebugContext(ctx, "event published",
		"event_type", eventType, "message_id", msg.MessageId, "trace_id", trace.TraceID)
	return true
}

func (p *Publisher) buildMessage(trace tracecontext.TraceContext, event Event) (amqp.Publishing, error) {
	now := p.now()
	env, err := NewEnvelope(event, trace, now)
	if err != nil {
		return amqp.Publishing{}, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, err
	}

	headers := amqp.Table{}
	carrier := map[string]string{}
	trace.Inject(carrier)
	for k, v := range carrier {
		headers[k] = v
	}

	return amqp.Publishing{
		Headers:       headers,
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: trace.TraceID,
		MessageId:     domain.NewMessageID().String(),
		Timestamp:     now.UTC(),
		Type:          string(event.Type()),
		AppId:         trace.OriginService,
		Body:          body,
	}, nil
}

// Close releases the channel and connection. Run should be stopped first.
func (p *Publisher) Close() error {
	p.mu.Lock()
	conn, ch := p.conn, p.ch
	p.conn, p.ch = nil, nil
	p.mu.Unlock()

	var errs []error
	if ch != nil {
		errs = append(errs, ch.Close())
	}
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	return errors.Join(errs...)
}

func (p *Publisher) detach() {
	_ = p.Close()
}
