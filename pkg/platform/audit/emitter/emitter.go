// Package emitter delivers audit records to the log collaborator without ever
// failing the operation that produced them.
package emitter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "corridor/pkg/platform/audit"
	"corridor/pkg/platform/circuit"
	"corridor/pkg/requestcontext"
)

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 3 * time.Second

// Sink is where records end up.
type Sink interface {
	Deliver(ctx context.Context, record audit.Record) error
}

// Emitter fills service-level fields and hands records to a Sink. In sync
// mode Emit blocks for at most the timeout; with WithAsyncBuffer a single
// worker delivers in the background and Close drains what is queued.
type Emitter struct {
	sink        Sink
	service     string
	environment string
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *Metrics
	breaker     *circuit.Breaker
	now         func() time.Time

	async  chan audit.Record
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type Option func(*Emitter)

// WithAsyncBuffer queues up to size records for a background worker.
// Records are dropped, and counted, when the buffer is full.
func WithAsyncBuffer(size int) Option {
	return func(e *Emitter) {
		if size > 0 {
			e.async = make(chan audit.Record, size)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Emitter) { e.metrics = m }
}

func WithEnvironment(env string) Option {
	return func(e *Emitter) { e.environment = env }
}

// WithCircuitBreaker skips delivery while the collaborator keeps failing.
func WithCircuitBreaker(b *circuit.Breaker) Option {
	return func(e *Emitter) { e.breaker = b }
}

func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an emitter for service. A nil sink logs records locally only.
func New(service string, sink Sink, opts ...Option) *Emitter {
	e := &Emitter{
		sink:    sink,
		service: service,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		breaker: circuit.New("audit-sink",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(10*time.Second)),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.async != nil {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit completes record from ctx and delivers it. Failures are logged and
// dropped; the caller never sees them.
func (e *Emitter) Emit(ctx context.Context, record audit.Record) {
	e.prepare(ctx, &record)

	if e.async == nil {
		e.deliver(ctx, record)
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(ctx, record, "closed")
		return
	}
	select {
	case e.async <- record:
	default:
		e.drop(ctx, record, "buffer_full")
	}
}

func (e *Emitter) prepare(ctx context.Context, r *audit.Record) {
	if r.Time.IsZero() {
		r.Time = e.now().UTC()
	}
	if r.ServiceName == "" {
		r.ServiceName = e.service
	}
	if r.Environment == "" {
		r.Environment = e.environment
	}
	if r.RequestID == "" {
		r.RequestID = requestcontext.RequestID(ctx)
	}
	if r.UserID == "" {
		r.UserID = audit.SystemSubject
		if r.IDType == "" {
			r.IDType = audit.IDTypeSystem
		}
	}
	r.Normalize()
}

func (e *Emitter) deliver(ctx context.Context, record audit.Record) {
	if e.sink == nil {
		e.logger.InfoContext(ctx, "audit record",
			"request_id", record.RequestID,
			"action", record.Action,
			"severity", record.Severity,
			"user_id", record.UserID,
		)
		e.metrics.record("local")
		return
	}
	if !e.breaker.Allow() {
		e.drop(ctx, record, "circuit_open")
		return
	}

	// The caller may be gone by now; the record still matters.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	start := time.Now()
	err := e.sink.Deliver(deliverCtx, record)
	e.metrics.observe(time.Since(start))
	if err != nil {
		if _, change := e.breaker.RecordFailure(); change.Opened {
			e.logger.WarnContext(ctx, "audit sink circuit opened")
		}
		e.metrics.setCircuit(e.breaker.IsOpen())
		e.metrics.record("failed")
		e.logger.WarnContext(ctx, "audit delivery failed",
			"request_id", record.RequestID,
			"action", record.Action,
			"error", err,
		)
		return
	}
	if _, change := e.breaker.RecordSuccess(); change.Closed {
		e.logger.InfoContext(ctx, "audit sink circuit closed")
	}
	e.metrics.setCircuit(e.breaker.IsOpen())
	e.metrics.record("delivered")
}

func (e *Emitter) drop(ctx context.Context, record audit.Record, reason string) {
	e.metrics.record("dropped_" + reason)
	e.logger.WarnContext(ctx, "audit record dropped",
		"request_id", record.RequestID,
		"action", record.Action,
		"reason", reason,
	)
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for record := range e.async {
		e.deliver(context.Background(), record)
	}
}

// Close stops accepting records and waits until queued ones are delivered.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.async != nil {
		close(e.async)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
