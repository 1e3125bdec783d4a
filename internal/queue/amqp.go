package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue carries jobs over a durable RabbitMQ queue so the pipeline can run
// in cmd/worker instead of the API process.
type AMQPQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	name       string
	maxRetries int
	logger     *slog.Logger
	pubMu      sync.Mutex
}

// NewAMQPQueue dials the broker and declares the queue.
func NewAMQPQueue(url, name string, maxRetries int, logger *slog.Logger) (*AMQPQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return &AMQPQueue{conn: conn, ch: ch, name: name, maxRetries: maxRetries, logger: logger}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, job Job) error {
	return q.publish(job, 0)
}

func (q *AMQPQueue) publish(job Job, retries int) error {
	body, err := EncodeJob(job)
	if err != nil {
		return err
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.ch.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
}

// Subscribe starts consuming in the background. Failed jobs are republished
// with an incremented retry header until maxRetries, then rejected.
func (q *AMQPQueue) Subscribe(handler Handler) error {
	msgs, err := q.ch.Consume(
		q.name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			q.handle(d, handler)
		}
		q.logger.Info("amqp consumer stopped", "queue", q.name)
	}()
	return nil
}

func (q *AMQPQueue) handle(d amqp.Delivery, handler Handler) {
	job, err := DecodeJob(d.Body)
	if err != nil {
		q.logger.Error("dropping invalid job", "error", err)
		d.Ack(false)
		return
	}

	if err := handler(context.Background(), job); err != nil {
		retries := retryCount(d.Headers)
		if retries >= q.maxRetries {
			q.logger.Error("job permanently failed", "job", job.String(), "attempts", retries+1, "error", err)
			d.Nack(false, false)
			return
		}
		q.logger.Warn("job failed, requeueing", "job", job.String(), "attempt", retries+1, "error", err)
		if perr := q.publish(job, retries+1); perr != nil {
			q.logger.Error("requeue failed", "job", job.String(), "error", perr)
			d.Nack(false, true)
			return
		}
	}
	d.Ack(false)
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

// EncodeJob is the message body format shared by publisher and consumer.
func EncodeJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

// DecodeJob parses and validates a message body. Invalid bodies are dropped
// by the consumer rather than retried.
func DecodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, err
	}
	if job.Kind != JobMaterialize && job.Kind != JobNotify {
		return Job{}, fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if job.Tenant == "" || job.CampaignID == 0 {
		return Job{}, fmt.Errorf("job missing tenant or campaign id")
	}
	return job, nil
}

// retryCount reads the retry header whatever integer type the broker hands back.
func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

var _ Queue = (*AMQPQueue)(nil)
