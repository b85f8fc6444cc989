package rmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cannetwork/notifier/pkg/queue"
)

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type publishChannel interface {
	publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

type amqpChannel struct{ ch *amqp.Channel }

func (a amqpChannel) publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error) {
	dc, err := a.ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (a amqpChannel) Close() error { return a.ch.Close() }

// Publisher sends batches to a durable RabbitMQ queue on a confirm-mode
// channel, so every entry gets an individual ack or nack like an SQS batch.
type Publisher struct {
	conn  *amqp.Connection
	ch    publishChannel
	queue string
}

func NewPublisher(url, queueName string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	return &Publisher{conn: conn, ch: amqpChannel{ch: ch}, queue: queueName}, nil
}

func (p *Publisher) Close() error {
	_ = p.ch.Close()
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// SendBatch publishes all entries, then waits for each broker confirmation.
// A nack or a publish error becomes a per-entry failure.
func (p *Publisher) SendBatch(ctx context.Context, entries []queue.Entry) (queue.BatchResult, error) {
	if len(entries) > queue.MaxBatchEntries {
		return queue.BatchResult{}, fmt.Errorf("batch of %d entries exceeds the limit of %d", len(entries), queue.MaxBatchEntries)
	}

	pending := make([]confirmation, len(entries))
	var res queue.BatchResult

	for i, e := range entries {
		dc, err := p.ch.publish(ctx, p.queue, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Timestamp:    time.Now(),
			Headers:      headers(e.Attributes),
			Body:         e.Body,
		})
		if err != nil {
			if errors.Is(err, amqp.ErrClosed) {
				return res, fmt.Errorf("publish %s: %w", e.ID, err)
			}
			res.Failed = append(res.Failed, queue.Failure{ID: e.ID, Code: "PublishFailed", Message: err.Error()})
			continue
		}
		pending[i] = dc
	}

	for i, dc := range pending {
		if dc == nil {
			continue
		}
		id := entries[i].ID
		acked, err := dc.WaitContext(ctx)
		switch {
		case err != nil:
			res.Failed = append(res.Failed, queue.Failure{ID: id, Code: "ConfirmFailed", Message: err.Error()})
		case !acked:
			res.Failed = append(res.Failed, queue.Failure{ID: id, Code: "Nack", Message: "broker rejected the message"})
		default:
			res.Successful = append(res.Successful, queue.Success{ID: id, MessageID: id})
		}
	}
	return res, nil
}

// Ping reports whether the broker connection is still open.
func (p *Publisher) Ping(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

func headers(attrs map[string]string) amqp.Table {
	if len(attrs) == 0 {
		return nil
	}
	t := make(amqp.Table, len(attrs))
	for k, v := range attrs {
		t[k] = v
	}
	return t
}
