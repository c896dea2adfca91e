package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the fanout exchange presence events are published to.
const DefaultExchange = "gochat.presence"

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes events as JSON messages. Publishing on an AMQP
// channel is not safe for concurrent use, so calls are serialized.
type AMQPPublisher struct {
	channel  Channel
	exchange string
	mu       sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher returns a publisher writing to exchange on ch. The
// routing key is the event type.
func NewAMQPPublisher(ch Channel, exchange string) *AMQPPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPPublisher{channel: ch, exchange: exchange}
}

// DialAMQP connects to url, retrying up to attempts times, opens a channel
// and declares a durable fanout exchange.
func DialAMQP(url, exchange string, attempts int, backoff time.Duration) (*AMQPPublisher, error) {
	if attempts < 1 {
		attempts = 1
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < attempts; i++ {
		if conn, err = amqp.Dial(url); err == nil {
			break
		}
		log.Printf("Failed to connect to RabbitMQ (attempt %d/%d): %v", i+1, attempts, err)
		if i < attempts-1 {
			time.Sleep(backoff)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ after %d attempts: %w", attempts, err)
	}
	log.Println("Successfully connected to RabbitMQ")

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open AMQP channel: %w", err)
	}

	p := NewAMQPPublisher(ch, exchange)
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", p.exchange, err)
	}
	p.conn = conn
	p.ch = ch
	return p, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode presence event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.Session.String(),
		Timestamp:   event.Time,
		Body:        body,
	})
}

// Close releases the channel and connection opened by DialAMQP. It is a
// no-op for publishers built with NewAMQPPublisher.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.conn = nil
	}
	return firstErr
}
