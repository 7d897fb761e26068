package eventbus

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	dErrors "corridor/pkg/domain-errors"
)

// Defaults for the user event fabric.
const (
	DefaultExchange = "user_events"
	DefaultQueue    = "log_queue"
	DefaultBinding  = "user.*"
	ExchangeKind    = amqp.ExchangeTopic
)

// QueueBinding is one durable queue and the pattern it is bound with.
type QueueBinding struct {
	Queue   string
	Pattern string
}

// Topology describes the exchange and queues both roles declare at startup.
// Declaration is idempotent and additive; nothing is ever deleted.
type Topology struct {
	Exchange string
	Queues   []QueueBinding
	// DeadLetterExchange, when set, receives messages the consumer rejects.
	// Each queue then gets a "<queue>.dead" parking queue bound to it.
	DeadLetterExchange string
}

// DefaultTopology is user_events (topic) with log_queue bound to user.*.
func DefaultTopology() Topology {
	return Topology{
		Exchange: DefaultExchange,
		Queues:   []QueueBinding{{Queue: DefaultQueue, Pattern: DefaultBinding}},
	}
}

// DeclareExchange declares only the durable topic exchange. Publishers need
// nothing more.
func (t Topology) DeclareExchange(ch Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, ExchangeKind, true, false, false, false, nil); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTopologyDeclarationFailed,
			fmt.Sprintf("declare exchange %s", t.Exchange))
	}
	return nil
}

// Declare declares the exchange, the optional dead-letter exchange, and every
// queue with its binding, in that order.
func (t Topology) Declare(ch Channel) error {
	if err := t.DeclareExchange(ch); err != nil {
		return err
	}

	var queueArgs amqp.Table
	if t.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTopologyDeclarationFailed,
				fmt.Sprintf("declare dead letter exchange %s", t.DeadLetterExchange))
		}
		queueArgs = amqp.Table{"x-dead-letter-exchange": t.DeadLetterExchange}
	}

	for _, qb := range t.Queues {
		if _, err := ch.QueueDeclare(qb.Queue, true, false, false, false, queueArgs); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTopologyDeclarationFailed,
				fmt.Sprintf("declare queue %s", qb.Queue))
		}
		if err := ch.QueueBind(qb.Queue, qb.Pattern, t.Exchange, false, nil); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTopologyDeclarationFailed,
				fmt.Sprintf("bind queue %s to %s", qb.Queue, qb.Pattern))
		}
		if t.DeadLetterExchange == "" {
			continue
		}
		parking := qb.Queue + ".dead"
		if _, err := ch.QueueDeclare(parking, true, false, false, false, nil); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTopologyDeclarationFailed,
				fmt.Sprintf("declare parking queue %s", parking))
		}
		if err := ch.QueueBind(parking, qb.Pattern, t.DeadLetterExchange, false, nil); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTopologyDeclarationFailed,
				fmt.Sprintf("bind parking queue %s", parking))
		}
	}
	return nil
}
