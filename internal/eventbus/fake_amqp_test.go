package eventbus

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type declaredExchange struct {
	Name string
	Kind string
}

type declaredQueue struct {
	Name string
	Args amqp.Table
}

type binding struct {
	Queue    string
	Key      string
	Exchange string
}

type publishedMessage struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

// fakeBroker hands out fake connections and records everything done on them.
type fakeBroker struct {
	mu sync.Mutex

	dialErrs    []error
	dials       int
	declareErr  error
	publishErr  error
	conns       []*fakeConn
	exchanges   []declaredExchange
	queues      []declaredQueue
	bindings    []binding
	published   []publishedMessage
	prefetch    int
	deliveries  chan amqp.Delivery
	dialedNotif chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		deliveries:  make(chan amqp.Delivery, 16),
		dialedNotif: make(chan struct{}, 16),
	}
}

func (b *fakeBroker) dial(string) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	defer func() {
		select {
		case b.dialedNotif <- struct{}{}:
		default:
		}
	}()
	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	c := &fakeConn{broker: b}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBroker) lastConn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) publishedMessages() []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedMessage(nil), b.published...)
}

type fakeConn struct {
	broker *fakeBroker
	mu     sync.Mutex
	closed bool
	notify []chan *amqp.Error
}

func (c *fakeConn) Channel() (Channel, error) {
	return &fakeChannel{conn: c}, nil
}

func (c *fakeConn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	for _, ch := range c.notify {
		close(ch)
	}
	c.notify = nil
	return nil
}

// drop simulates the broker going away.
func (c *fakeConn) drop() { _ = c.Close() }

type fakeChannel struct {
	conn *fakeConn
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.declareErr != nil {
		return b.declareErr
	}
	if !durable {
		return errors.New("exchange must be durable")
	}
	b.exchanges = append(b.exchanges, declaredExchange{Name: name, Kind: kind})
	return nil
}

func (ch *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	b.queues = append(b.queues, declaredQueue{Name: name, Args: args})
	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings = append(b.bindings, binding{Queue: name, Key: key, Exchange: exchange})
	return nil
}

func (ch *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prefetch = prefetchCount
	return nil
}

func (ch *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publishedMessage{Exchange: exchange, Key: key, Msg: msg})
	return nil
}

func (ch *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return ch.conn.broker.deliveries, nil
}

func (ch *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return ch.conn.NotifyClose(receiver)
}

func (ch *fakeChannel) Close() error { return nil }

// fakeAck records how a delivery was settled.
type fakeAck struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue bool
	settled chan struct{}
}

func newFakeAck() *fakeAck { return &fakeAck{settled: make(chan struct{}, 8)} }

func (a *fakeAck) Ack(uint64, bool) error {
	a.mu.Lock()
	a.acked++
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	a.nacked++
	a.requeue = requeue
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *fakeAck) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

func (a *fakeAck) counts() (acked, nacked int, requeue bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked, a.nacked, a.requeue
}
