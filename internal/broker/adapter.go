// Package broker is the message-broker distribution adapter over a durable
// AMQP exchange: Submit publishes task payloads to a work queue, and
// StartConsuming consumes that work queue, dispatches each payload through
// a transport.Registry, and publishes its transport.Result to a result
// queue. The adapter does not consume the result queue itself, so it
// returns no replies to a Submit caller. Neither the Graph nor the
// Scheduler are visible to it; it only ever calls into user-registered
// handlers.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/samborba/taskflow/internal/transport"
)

// channel is the narrow subset of *amqp.Channel the adapter needs. It
// exists so StartConsuming/StopConsuming's consumer-tag handling can be
// exercised against a fake broker in tests without a running RabbitMQ
// instance.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Config names the queues and exchange the adapter binds to.
type Config struct {
	URL          string
	Exchange     string
	TaskQueue    string
	ResultQueue  string
	ConsumerName string
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = "taskflow.tasks"
	}
	if c.TaskQueue == "" {
		c.TaskQueue = "taskflow.tasks.in"
	}
	if c.ResultQueue == "" {
		c.ResultQueue = "taskflow.tasks.results"
	}
	if c.ConsumerName == "" {
		c.ConsumerName = "taskflow-worker"
	}
	return c
}

// Adapter is the broker-backed distribution adapter.
type Adapter struct {
	cfg      Config
	conn     *amqp.Connection
	ch       channel
	registry *transport.Registry

	// consumerTag is the tag StartConsuming captures before calling
	// Consume. The lineage this adapter is drawn from built the tag
	// server-side and never captured it, leaving StopConsuming's Cancel
	// targeting an empty string — a defect this implementation does not
	// repeat: the tag is generated client-side and held for the adapter's
	// whole subscription lifetime.
	consumerTag string
}

// Dial connects to the broker and declares the durable exchange/queues
// used for task distribution.
func Dial(cfg Config, registry *transport.Registry) (*Adapter, error) {
	cfg = cfg.withDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	a, err := newAdapter(cfg, ch, registry)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	a.conn = conn
	return a, nil
}

// newAdapter declares the exchange/queues against ch and wraps it. Split
// out from Dial so tests can supply a fake channel.
func newAdapter(cfg Config, ch channel, registry *transport.Registry) (*Adapter, error) {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	for _, q := range []string{cfg.TaskQueue, cfg.ResultQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return &Adapter{cfg: cfg, ch: ch, registry: registry}, nil
}

// Close shuts down the channel and connection.
func (a *Adapter) Close() error {
	if a.ch != nil {
		a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Submit publishes p to the task queue.
func (a *Adapter) Submit(ctx context.Context, p transport.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload %s: %w", p.ID, err)
	}
	return a.ch.PublishWithContext(ctx, a.cfg.Exchange, a.cfg.TaskQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// StartConsuming begins consuming task payloads from the task queue,
// dispatching each through the registry, and publishing its transport.Result
// to the result queue. The consumer tag is generated before the Consume
// call and held, so StopConsuming can always cancel the exact same
// subscription.
func (a *Adapter) StartConsuming(ctx context.Context) error {
	tag := a.cfg.ConsumerName
	deliveries, err := a.ch.Consume(a.cfg.TaskQueue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", a.cfg.TaskQueue, err)
	}
	a.consumerTag = tag

	go func() {
		for d := range deliveries {
			a.handleDelivery(ctx, d)
		}
	}()
	return nil
}

// StopConsuming cancels the exact consumer StartConsuming registered,
// using the tag captured at Consume time.
func (a *Adapter) StopConsuming() error {
	if a.consumerTag == "" {
		return nil
	}
	tag := a.consumerTag
	a.consumerTag = ""
	return a.ch.Cancel(tag, false)
}

func (a *Adapter) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var p transport.Payload
	if err := json.Unmarshal(d.Body, &p); err != nil {
		log.Printf("broker: malformed task payload, dropping: %v", err)
		d.Nack(false, false)
		return
	}

	result := a.registry.Dispatch(ctx, p)
	body, err := json.Marshal(result)
	if err != nil {
		log.Printf("broker: marshal result for %s: %v", p.ID, err)
		d.Nack(false, false)
		return
	}

	if err := a.ch.PublishWithContext(ctx, a.cfg.Exchange, a.cfg.ResultQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	}); err != nil {
		log.Printf("broker: publish result for %s: %v", p.ID, err)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}
