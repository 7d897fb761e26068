package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"

	"corridor/pkg/domain"
	dErrors "corridor/pkg/domain-errors"
	"corridor/pkg/tracecontext"
)

var fastReconnect = Reconnect{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond}

type PublisherSuite struct {
	suite.Suite
	broker *fakeBroker
	pub    *Publisher
	now    time.Time
	trace  tracecontext.TraceContext
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.broker = newFakeBroker()
	s.now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s.trace = tracecontext.TraceContext{TraceID: "0af7651916cd43dd8448eb211c80319c", OriginService: "users"}
	s.pub = NewPublisher("amqp://fake",
		WithPublisherDialer(s.broker.dial),
		WithPublisherReconnect(fastReconnect),
		WithPublisherClock(func() time.Time { return s.now }),
		WithPublisherLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *PublisherSuite) TearDownTest() {
	_ = s.pub.Close()
}

func (s *PublisherSuite) TestUnconfiguredDropsSilently() {
	pub := NewPublisher("")
	s.False(pub.Configured())
	s.False(pub.Publish(context.Background(), s.trace, UserDeletedEvent{ID: "u1"}))
	s.NoError(pub.Run(context.Background()))
}

func (s *PublisherSuite) TestDisconnectedReturnsFalse() {
	s.False(s.pub.Connected())
	s.False(s.pub.Publish(context.Background(), s.trace, UserDeletedEvent{ID: "u1"}))
	s.Empty(s.broker.publishedMessages())
}

func (s *PublisherSuite) TestConnectFailuresAreBusUnavailable() {
	err := NewPublisher("").Connect(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeBusUnavailable))

	s.broker.dialErrs = []error{errors.New("connection refused")}
	err = s.pub.Connect(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeBusUnavailable))
	s.ErrorContains(err, "connection refused")
	s.False(s.pub.Connected())
}

func (s *PublisherSuite) TestPublishWritesEnvelope() {
	s.Require().NoError(s.pub.Connect(context.Background()))
	s.True(s.pub.Connected())
	s.Equal([]declaredExchange{{Name: "user_events", Kind: amqp.ExchangeTopic}}, s.broker.exchanges)
	s.Empty(s.broker.queues, "publishers declare only the exchange")

	ok := s.pub.Publish(context.Background(), s.trace, UserCreatedEvent{ID: "u1", Email: "ana@example.com", FirstName: "Ana"})
	s.Require().True(ok)

	msgs := s.broker.publishedMessages()
	s.Require().Len(msgs, 1)
	m := msgs[0]
	s.Equal("user_events", m.Exchange)
	s.Equal("user.created", m.Key)
	s.Equal("application/json", m.Msg.ContentType)
	s.Equal(amqp.Persistent, m.Msg.DeliveryMode)
	s.Equal(s.trace.TraceID, m.Msg.CorrelationId)
	s.Equal("users", m.Msg.AppId)
	_, err := domain.ParseMessageID(m.Msg.MessageId)
	s.NoError(err)
	s.Contains(m.Msg.Headers, "traceparent")

	var env Envelope
	s.Require().NoError(json.Unmarshal(m.Msg.Body, &env))
	s.Equal("created", env.EventType)
	s.Equal("users", env.Service)
	s.Equal(s.trace.TraceID, env.TraceID)
	s.Equal("2026-03-01T09:30:00Z", env.Timestamp)
	s.JSONEq(`{"id":"u1","email":"ana@example.com","firstName":"Ana"}`, string(env.Data))
}

func (s *PublisherSuite) TestOpaqueTraceIDHasNoTraceparent() {
	s.Require().NoError(s.pub.Connect(context.Background()))
	s.True(s.pub.Publish(context.Background(), tracecontext.TraceContext{TraceID: "req-123"}, UserDeletedEvent{ID: "u1"}))
	m := s.broker.publishedMessages()[0]
	s.NotContains(m.Msg.Headers, "traceparent")
	s.Equal("req-123", m.Msg.CorrelationId)
}

func (s *PublisherSuite) TestPublishFailureReturnsFalse() {
	s.Require().NoError(s.pub.Connect(context.Background()))
	s.broker.mu.Lock()
	s.broker.publishErr = errors.New("channel/connection is not open")
	s.broker.mu.Unlock()

	s.False(s.pub.Publish(context.Background(), s.trace, UserDeletedEvent{ID: "u1"}))
}

func (s *PublisherSuite) TestInvalidEventIsDropped() {
	s.Require().NoError(s.pub.Connect(context.Background()))
	s.False(s.pub.Publish(context.Background(), s.trace, UserCreatedEvent{}))
	s.Empty(s.broker.publishedMessages())
}

func (s *PublisherSuite) TestCancelledRequestStillPublishes() {
	s.Require().NoError(s.pub.Connect(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.True(s.pub.Publish(ctx, s.trace, UserDeletedEvent{ID: "u1"}))
}

func (s *PublisherSuite) TestConnectionLossMarksDisconnected() {
	s.Require().NoError(s.pub.Connect(context.Background()))
	s.broker.lastConn().drop()

	s.Eventually(func() bool { return !s.pub.Connected() }, time.Second, 5*time.Millisecond)
	s.False(s.pub.Publish(context.Background(), s.trace, UserDeletedEvent{ID: "u1"}))
}

func (s *PublisherSuite) TestRunRetriesAndReconnects() {
	s.broker.dialErrs = []error{errors.New("connection refused"), errors.New("connection refused")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.pub.Run(ctx) }()

	s.Eventually(s.pub.Connected, time.Second, 5*time.Millisecond)
	s.Equal(3, s.broker.dialCount())

	s.broker.lastConn().drop()
	s.Eventually(func() bool { return s.broker.dialCount() == 4 && s.pub.Connected() }, time.Second, 5*time.Millisecond)

	cancel()
	s.Require().NoError(<-done)
	s.False(s.pub.Connected())
	s.True(s.broker.lastConn().IsClosed())
}
