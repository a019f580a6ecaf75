package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned when the outbound buffer is saturated and an
// event has to be dropped.
var ErrQueueFull = errors.New("notify: outbound queue full")

const (
	publishTimeout  = 5 * time.Second
	publishAttempts = 3
	bufferSize      = 256
)

// AMQPPublisher sends events to a durable RabbitMQ queue as persistent
// JSON messages. Publish only enqueues and never blocks; a background
// sender owns the connection, re-dialing on failure under a rate limiter
// so a dead broker cannot hot-loop it.
type AMQPPublisher struct {
	url    string
	queue  string
	logger *log.Logger

	events  chan Event
	limiter *rate.Limiter
	done    chan struct{}

	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url, queue string, logger *log.Logger) *AMQPPublisher {
	p := &AMQPPublisher{
		url:     url,
		queue:   queue,
		logger:  logger,
		events:  make(chan Event, bufferSize),
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *AMQPPublisher) Publish(_ context.Context, ev Event) error {
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains the buffer and tears down the connection.
func (p *AMQPPublisher) Close() {
	close(p.events)
	<-p.done
}

func (p *AMQPPublisher) loop() {
	defer close(p.done)
	defer p.disconnect()

	for ev := range p.events {
		body, err := json.Marshal(ev)
		if err != nil {
			p.logger.Printf("notify: marshal %s event: %v", ev.Kind, err)
			continue
		}

		if err := p.send(ev, body); err != nil {
			p.logger.Printf("notify: dropping %s event %s: %v", ev.Kind, ev.ID, err)
		}
	}
}

func (p *AMQPPublisher) send(ev Event, body []byte) error {
	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if p.ch == nil {
			_ = p.limiter.Wait(context.Background())
			if err := p.connect(); err != nil {
				lastErr = err
				continue
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.ch.PublishWithContext(ctx,
			"",      // default exchange
			p.queue, // routing key = queue name
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    ev.ID,
				Timestamp:    ev.At,
				Body:         body,
			})
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		p.disconnect()
	}
	return lastErr
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	// Durable so queued notifications survive a broker restart.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.ch = ch
	return nil
}

func (p *AMQPPublisher) disconnect() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
