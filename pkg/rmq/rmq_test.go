package rmq

import (
	"context"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cannetwork/notifier/pkg/queue"
)

type fakeConfirm struct {
	acked bool
	err   error
}

func (c fakeConfirm) WaitContext(ctx context.Context) (bool, error) { return c.acked, c.err }

// fakeChannel acks every publish unless the message id is listed.
type fakeChannel struct {
	published  []amqp.Publishing
	nack       map[string]bool
	publishErr map[string]error
	closed     bool
}

func (f *fakeChannel) publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error) {
	if err := f.publishErr[msg.MessageId]; err != nil {
		return nil, err
	}
	f.published = append(f.published, msg)
	return fakeConfirm{acked: !f.nack[msg.MessageId]}, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func entries(n int) []queue.Entry {
	out := make([]queue.Entry, n)
	for i := range out {
		out[i] = queue.Entry{
			ID:         fmt.Sprintf("e%d", i),
			Body:       []byte(`{}`),
			Attributes: map[string]string{"campaign_id": "camp-1"},
		}
	}
	return out
}

func TestSendBatch_AllAcked(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, queue: "send_email"}

	res, err := p.SendBatch(context.Background(), entries(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Successful) != 3 || len(res.Failed) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Successful[2].ID != "e2" || res.Successful[2].MessageID != "e2" {
		t.Fatalf("success: %+v", res.Successful[2])
	}

	msg := ch.published[0]
	if msg.MessageId != "e0" || msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" {
		t.Fatalf("publishing: %+v", msg)
	}
	if msg.Headers["campaign_id"] != "camp-1" {
		t.Fatalf("headers: %+v", msg.Headers)
	}
}

func TestSendBatch_NackAndPublishError(t *testing.T) {
	ch := &fakeChannel{
		nack:       map[string]bool{"e1": true},
		publishErr: map[string]error{"e2": errors.New("frame too large")},
	}
	p := &Publisher{ch: ch, queue: "send_email"}

	res, err := p.SendBatch(context.Background(), entries(4))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Successful) != 2 || len(res.Failed) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	codes := map[string]string{}
	for _, f := range res.Failed {
		codes[f.ID] = f.Code
	}
	if codes["e1"] != "Nack" || codes["e2"] != "PublishFailed" {
		t.Fatalf("failure codes: %v", codes)
	}
}

func TestSendBatch_ConfirmError(t *testing.T) {
	p := &Publisher{ch: &confirmErrChannel{}, queue: "q"}
	res, err := p.SendBatch(context.Background(), entries(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 || res.Failed[0].Code != "ConfirmFailed" {
		t.Fatalf("unexpected result %+v", res)
	}
}

type confirmErrChannel struct{}

func (confirmErrChannel) publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error) {
	return fakeConfirm{err: context.DeadlineExceeded}, nil
}

func (confirmErrChannel) Close() error { return nil }

func TestSendBatch_ClosedChannel(t *testing.T) {
	ch := &fakeChannel{publishErr: map[string]error{"e0": amqp.ErrClosed}}
	p := &Publisher{ch: ch, queue: "q"}

	if _, err := p.SendBatch(context.Background(), entries(2)); !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("want amqp.ErrClosed, got %v", err)
	}
}

func TestSendBatch_TooMany(t *testing.T) {
	p := &Publisher{ch: &fakeChannel{}, queue: "q"}
	if _, err := p.SendBatch(context.Background(), entries(queue.MaxBatchEntries+1)); err == nil {
		t.Fatal("expected error")
	}
}

func TestPingAndClose_NoConnection(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, queue: "q"}
	if err := p.Ping(context.Background()); !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("want amqp.ErrClosed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !ch.closed {
		t.Fatal("channel not closed")
	}
}
