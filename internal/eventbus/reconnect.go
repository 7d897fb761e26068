package eventbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Reconnect bounds the delay between broker connection attempts.
type Reconnect struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultReconnect starts at one second and caps at thirty.
var DefaultReconnect = Reconnect{Initial: time.Second, Max: 30 * time.Second}

func (r Reconnect) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Initial
	b.MaxInterval = r.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultReconnect.Initial
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()
	return b
}

// session is one live connection plus the work bound to it. done closes when
// the session ends for any reason.
type session struct {
	conn Connection
	done <-chan struct{}
}

// connectFunc dials and sets up one session.
type connectFunc func(ctx context.Context) (*session, error)

// superviseConnection keeps a session alive until ctx is cancelled. Failed
// attempts and dropped sessions back off exponentially; a session that was
// established resets the delay.
func superviseConnection(ctx context.Context, role string, policy Reconnect, logger *slog.Logger, metrics *Metrics, connect connectFunc) {
	bo := policy.newBackOff()
	for {
		s, err := connect(ctx)
		metrics.recordConnect(role, err == nil)
		if err == nil {
			bo.Reset()
			select {
			case <-ctx.Done():
				_ = s.conn.Close()
				return
			case <-s.done:
				_ = s.conn.Close()
				logger.Warn("broker session ended", "role", role)
			}
		} else {
			logger.Warn("broker connect failed", "role", role, "error", err)
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			delay = policy.Max
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// watchClose converts the amqp close notification into a done channel.
func watchClose(conn Connection, ch Channel) <-chan struct{} {
	done := make(chan struct{})
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	var chClosed chan *amqp.Error
	if ch != nil {
		chClosed = ch.NotifyClose(make(chan *amqp.Error, 1))
	}
	go func() {
		defer close(done)
		select {
		case <-connClosed:
		case <-chClosed:
		}
	}()
	return done
}
