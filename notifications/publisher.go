package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	publishTimeout = 5 * time.Second
	queueSize      = 256
)

var errNacked = errors.New("broker did not confirm the event")

type envelope struct {
	Event      Kind         `json:"event"`
	Version    int          `json:"version"`
	OccurredAt time.Time    `json:"occurred_at"`
	Data       Notification `json:"data"`
}

// Publisher sends every notification to a topic exchange, keyed by kind.
// An amqp channel is not safe for concurrent publishing, so all events go
// through a single worker and wait for the broker's confirm.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	q        *queue
}

func NewPublisher(url, exchange string, log *logrus.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	log.WithField("exchange", exchange).Info("connected to RabbitMQ")
	p := &Publisher{conn: conn, ch: ch, exchange: exchange}
	p.q = newQueue(queueSize, p.publish, log)
	return p, nil
}

// Dispatch never blocks the caller. When the queue is full the event is
// dropped and logged.
func (p *Publisher) Dispatch(n Notification) {
	p.q.push(n)
}

func (p *Publisher) publish(ctx context.Context, n Notification) error {
	body, err := json.Marshal(envelope{Event: n.Kind, Version: 1, OccurredAt: time.Now().UTC(), Data: n})
	if err != nil {
		return err
	}
	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, string(n.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return err
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errNacked
	}
	return nil
}

// Close flushes queued events before closing the channel and connection.
func (p *Publisher) Close() error {
	p.q.close()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// queue feeds one worker goroutine, so send is never called concurrently.
type queue struct {
	mu     sync.Mutex
	closed bool
	items  chan Notification
	done   chan struct{}
	send   func(context.Context, Notification) error
	log    *logrus.Logger
}

func newQueue(size int, send func(context.Context, Notification) error, log *logrus.Logger) *queue {
	q := &queue{
		items: make(chan Notification, size),
		done:  make(chan struct{}),
		send:  send,
		log:   log,
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	for n := range q.items {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := q.send(ctx, n); err != nil {
			q.log.WithError(err).WithField("kind", n.Kind).Error("failed to publish event")
		}
		cancel()
	}
}

func (q *queue) push(n Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.WithField("kind", n.Kind).Warn("publisher closed, event dropped")
		return false
	}
	select {
	case q.items <- n:
		return true
	default:
		q.log.WithField("kind", n.Kind).Warn("publish queue full, event dropped")
		return false
	}
}

func (q *queue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()
	<-q.done
}
