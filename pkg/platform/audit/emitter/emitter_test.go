package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "corridor/pkg/platform/audit"
	"corridor/pkg/platform/circuit"
	"corridor/pkg/requestcontext"
	"corridor/pkg/tracecontext"
)

type memorySink struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
	delay   time.Duration
}

func (s *memorySink) Deliver(ctx context.Context, r audit.Record) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memorySink) all() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Record(nil), s.records...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tracedContext(id string) context.Context {
	return requestcontext.WithTrace(context.Background(), tracecontext.TraceContext{TraceID: id, OriginService: "users"})
}

func TestEmitter_SyncMode(t *testing.T) {
	sink := &memorySink{}
	e := New("users", sink, WithLogger(quietLogger()), WithEnvironment("test"))
	defer e.Close()

	e.Emit(tracedContext("req-1"), audit.Record{UserID: "u1", Action: audit.ActionCreated})

	records := sink.all()
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "req-1", r.RequestID)
	assert.Equal(t, "users", r.ServiceName)
	assert.Equal(t, "test", r.Environment)
	assert.Equal(t, audit.IDTypeCC, r.IDType)
	assert.Equal(t, audit.SeverityInfo, r.Severity)
	assert.NotNil(t, r.Data)
	assert.False(t, r.Time.IsZero())
}

func TestEmitter_SystemSubjectWhenNoUser(t *testing.T) {
	sink := &memorySink{}
	e := New("users", sink, WithLogger(quietLogger()))
	defer e.Close()

	e.Emit(context.Background(), audit.Record{Action: audit.ActionServerError, Severity: audit.SeverityError})

	r := sink.all()[0]
	assert.Equal(t, audit.SystemSubject, r.UserID)
	assert.Equal(t, audit.IDTypeSystem, r.IDType)
}

func TestEmitter_PreservesExistingTimestamp(t *testing.T) {
	sink := &memorySink{}
	e := New("users", sink, WithLogger(quietLogger()))
	defer e.Close()

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionRead, Time: custom})
	assert.Equal(t, custom, sink.all()[0].Time)
}

func TestEmitter_AsyncDrainsOnClose(t *testing.T) {
	sink := &memorySink{}
	e := New("users", sink, WithAsyncBuffer(100), WithLogger(quietLogger()))

	for range 10 {
		e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionCreated})
	}
	e.Close()

	assert.Len(t, sink.all(), 10, "all records should be drained on close")
}

func TestEmitter_AsyncBufferFullDrops(t *testing.T) {
	sink := &memorySink{delay: 50 * time.Millisecond}
	e := New("users", sink, WithAsyncBuffer(1), WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionCreated})
		}()
	}
	wg.Wait()
	e.Close()

	assert.Less(t, len(sink.all()), 10)
	assert.NotEmpty(t, sink.all())
}

func TestEmitter_EmitAfterCloseIsDropped(t *testing.T) {
	sink := &memorySink{}
	e := New("users", sink, WithAsyncBuffer(4), WithLogger(quietLogger()))
	e.Close()
	e.Close()

	e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionCreated})
	assert.Empty(t, sink.all())
}

func TestEmitter_FailureIsSwallowed(t *testing.T) {
	sink := &memorySink{err: errors.New("connection refused")}
	e := New("users", sink, WithLogger(quietLogger()))
	defer e.Close()

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionCreated})
	})
}

func TestEmitter_TimeoutBoundsSyncDelivery(t *testing.T) {
	sink := &memorySink{delay: time.Second}
	e := New("users", sink, WithTimeout(20*time.Millisecond), WithLogger(quietLogger()))
	defer e.Close()

	start := time.Now()
	e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionCreated})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, sink.all())
}

func TestEmitter_CancelledCallerStillDelivers(t *testing.T) {
	sink := &memorySink{}
	e := New("users", sink, WithLogger(quietLogger()))
	defer e.Close()

	ctx, cancel := context.WithCancel(tracedContext("req-2"))
	cancel()
	e.Emit(ctx, audit.Record{UserID: "u1", Action: audit.ActionDeleted})

	require.Len(t, sink.all(), 1)
	assert.Equal(t, "req-2", sink.all()[0].RequestID)
}

func TestEmitter_CircuitSkipsSinkWhileOpen(t *testing.T) {
	var calls atomic.Int32
	sink := sinkFunc(func(context.Context, audit.Record) error {
		calls.Add(1)
		return errors.New("down")
	})
	breaker := circuit.New("audit-test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	e := New("users", sink, WithCircuitBreaker(breaker), WithLogger(quietLogger()))
	defer e.Close()

	for range 5 {
		e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionRead})
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, breaker.IsOpen())
}

func TestEmitter_NilSinkLogsLocally(t *testing.T) {
	e := New("users", nil, WithLogger(quietLogger()))
	defer e.Close()
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionRead})
	})
}

type sinkFunc func(context.Context, audit.Record) error

func (f sinkFunc) Deliver(ctx context.Context, r audit.Record) error { return f(ctx, r) }

func TestHTTPSink_PostsRecord(t *testing.T) {
	var (
		gotPath    string
		gotHeader  string
		gotRecord  audit.Record
		gotContent string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get(tracecontext.HeaderRequestID)
		gotContent = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotRecord)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL+"/", nil)
	err := sink.Deliver(context.Background(), audit.Record{
		RequestID: "req-3", ServiceName: "users", UserID: "u1", Action: audit.ActionModified,
	})
	require.NoError(t, err)
	assert.Equal(t, "/log", gotPath)
	assert.Equal(t, "req-3", gotHeader)
	assert.Equal(t, "application/json", gotContent)
	assert.Equal(t, audit.ActionModified, gotRecord.Action)
}

func TestHTTPSink_Non2xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.URL, nil).Deliver(context.Background(), audit.Record{})
	require.Error(t, err)
}

func TestHTTPSink_UnreachableEndpointDoesNotFailEmit(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := New("users", NewHTTPSink(url, nil), WithTimeout(200*time.Millisecond), WithLogger(quietLogger()))
	defer e.Close()
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), audit.Record{UserID: "u1", Action: audit.ActionCreated})
	})
}

func TestHTTPSink_SendsToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Service-Token")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	require.NoError(t, NewHTTPSink(srv.URL, nil).WithToken("s3cret").Deliver(context.Background(), audit.Record{}))
	assert.Equal(t, "s3cret", got)
}
