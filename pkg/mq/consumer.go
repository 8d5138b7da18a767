package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ConsumerOptions struct {
	Prefetch int
	// DeadLetterExchange, when set, receives messages nacked without requeue;
	// DeadLetterQueue is bound to it with "#".
	DeadLetterExchange string
	DeadLetterQueue    string
	ConsumerTag        string
}

type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	tag   string
}

// NewConsumer declares queue, binds it to every exchange for every key, and
// wires the optional dead-letter exchange.
func NewConsumer(url string, exchanges []string, queue string, keys []string, opts ConsumerOptions) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(format string, a ...any) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf(format, a...)
	}

	args := amqp.Table{}
	if opts.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(opts.DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
			return fail("declare dlx: %w", err)
		}
		if opts.DeadLetterQueue != "" {
			if _, err := ch.QueueDeclare(opts.DeadLetterQueue, true, false, false, false, nil); err != nil {
				return fail("declare dlq: %w", err)
			}
			if err := ch.QueueBind(opts.DeadLetterQueue, "#", opts.DeadLetterExchange, false, nil); err != nil {
				return fail("bind dlq: %w", err)
			}
		}
		args["x-dead-letter-exchange"] = opts.DeadLetterExchange
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, args)
	if err != nil {
		return fail("declare queue: %w", err)
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fail("declare exchange %s: %w", ex, err)
		}
		for _, rk := range keys {
			if err := ch.QueueBind(q.Name, rk, ex, false, nil); err != nil {
				return fail("bind %s@%s: %w", rk, ex, err)
			}
		}
	}

	prefetch := opts.Prefetch
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail("set qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: q.Name, tag: opts.ConsumerTag}, nil
}

func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, c.tag, false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
