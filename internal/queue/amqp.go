package queue

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

// AMQPQueue publishes to a durable topic exchange with publisher confirms
// and consumes from a durable queue bound to it under the queue's name.
type AMQPQueue struct {
	conn        *amqp.Connection
	pub         *amqp.Channel
	pubMu       sync.Mutex
	exchange    string
	queue       string
	concurrency int
	log         *logger.Logger
}

// DialAMQP connects, declares the topology and puts the publish channel in
// confirm mode.
func DialAMQP(url, exchange, queue string, concurrency int, log *logger.Logger) (*AMQPQueue, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.dial", "connect to broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.dial", "open channel")
	}

	if err := declare(ch, exchange, queue); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.dial", "enable publisher confirms")
	}

	return &AMQPQueue{
		conn:        conn,
		pub:         ch,
		exchange:    exchange,
		queue:       queue,
		concurrency: concurrency,
		log:         log.WithComponent("queue.amqp"),
	}, nil
}

func declare(ch *amqp.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.declare", "declare exchange")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.declare", "declare queue")
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.declare", "bind queue")
	}
	return nil
}

func (q *AMQPQueue) Name() string { return "amqp" }

func (q *AMQPQueue) Ping(context.Context) error {
	if q.conn.IsClosed() {
		return errors.DependencyUnavailable("amqp")
	}
	return nil
}

func (q *AMQPQueue) Close() error {
	_ = q.pub.Close()
	return q.conn.Close()
}

// Publish returns after the broker confirmed the persistent message.
func (q *AMQPQueue) Publish(ctx context.Context, msg models.JobMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}

	q.pubMu.Lock()
	dc, err := q.pub.PublishWithDeferredConfirmWithContext(ctx, q.exchange, q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.JobID,
		Timestamp:    time.Now().UTC(),
		Body:         raw,
	})
	q.pubMu.Unlock()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.publish", "publish failed").
			WithField("job_id", msg.JobID)
	}

	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.publish", "waiting for confirm").
			WithField("job_id", msg.JobID)
	}
	if !ok {
		return errors.New(errors.CodeUnavailable, "broker nacked message").WithField("job_id", msg.JobID)
	}
	return nil
}

// Consume opens a dedicated channel with prefetch equal to concurrency and
// handles deliveries until ctx ends or the broker closes the channel.
func (q *AMQPQueue) Consume(ctx context.Context, h ports.MessageHandler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.consume", "open channel")
	}
	defer ch.Close()

	if err := ch.Qos(q.concurrency, 0, false); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.consume", "set prefetch")
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.amqp.consume", "start consumer")
	}

	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						q.log.Warn("delivery channel closed", "queue", q.queue)
						return
					}
					q.handle(ctx, d, h)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (q *AMQPQueue) handle(ctx context.Context, d amqp.Delivery, h ports.MessageHandler) {
	msg, err := decodeMessage(d.Body)
	if err != nil {
		q.log.Error("rejecting undecodable message", "queue", q.queue, "error", err.Error())
		if nerr := d.Nack(false, false); nerr != nil {
			q.log.Error("nack failed", "error", nerr.Error())
		}
		return
	}

	_ = deliver(ctx, q.log, h, msg)

	if err := d.Ack(false); err != nil {
		q.log.Error("ack failed", "job_id", msg.JobID, "error", err.Error())
	}
}
