package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/cannetwork/notifier/internal/campaign"
	"github.com/cannetwork/notifier/internal/store"
	"github.com/cannetwork/notifier/pkg/config"
	"github.com/cannetwork/notifier/pkg/logx"
	"github.com/cannetwork/notifier/pkg/queue"
)

func init() { logx.Set(zap.NewNop().Sugar()) }

// fakeSender accepts everything except the entries listed in failOn.
type fakeSender struct {
	calls   [][]queue.Entry
	failOn  map[int][]int // batch number (1-based) -> entry positions to fail
	sendErr error
}

func (f *fakeSender) SendBatch(ctx context.Context, entries []queue.Entry) (queue.BatchResult, error) {
	f.calls = append(f.calls, entries)
	if f.sendErr != nil {
		return queue.BatchResult{}, f.sendErr
	}
	fail := map[int]bool{}
	for _, pos := range f.failOn[len(f.calls)] {
		fail[pos] = true
	}
	var res queue.BatchResult
	for i, e := range entries {
		if fail[i] {
			res.Failed = append(res.Failed, queue.Failure{ID: e.ID, Code: "InternalError", Message: "boom", SenderFault: false})
			continue
		}
		res.Successful = append(res.Successful, queue.Success{ID: e.ID, MessageID: "m-" + e.ID})
	}
	return res, nil
}

type fakeLedger struct {
	batches map[int][]store.Dispatch
	err     error
}

func (l *fakeLedger) RecordBatch(ctx context.Context, campaignID, correlationID string, batch int, entries []store.Dispatch) error {
	if l.batches == nil {
		l.batches = map[int][]store.Dispatch{}
	}
	l.batches[batch] = entries
	return l.err
}

type errTest string

func (e errTest) Error() string { return string(e) }

func request(n int) *campaign.CampaignRequest {
	req := &campaign.CampaignRequest{
		CampaignID:     "camp-1",
		CorrelationID:  "corr-1",
		Subject:        "Hello {{athlete_name}}",
		TemplateKey:    "t1",
		FromName:       "CAN",
		FromAddress:    "coach@can.org",
		ReplyToAddress: "info@can.org",
	}
	for i := 0; i < n; i++ {
		req.Recipients = append(req.Recipients, campaign.Recipient{
			RecipientID: fmt.Sprintf("u%d", i),
			Email:       fmt.Sprintf("u%d@example.com", i),
			Vars:        map[string]any{"athlete_name": fmt.Sprintf("A%d", i)},
		})
	}
	return req
}

func newDispatcher(t *testing.T, s queue.Sender, l Ledger) *Dispatcher {
	t.Helper()
	d, err := New(Config{Queue: "q"}, s, l)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestNew_ConfigError(t *testing.T) {
	_, err := New(Config{}, &fakeSender{}, nil)
	var cerr *config.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("want *config.Error, got %v", err)
	}

	var d *Dispatcher
	if !errors.As(d.CheckConfig(), &cerr) {
		t.Fatal("nil dispatcher must report a config error")
	}
}

func TestDispatch_BatchesInOrder(t *testing.T) {
	fs := &fakeSender{}
	d := newDispatcher(t, fs, nil)

	res, err := d.Dispatch(context.Background(), request(25))
	if err != nil {
		t.Fatal(err)
	}
	if res.Enqueued != 25 || res.Batches != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fs.calls) != 3 || len(fs.calls[0]) != 10 || len(fs.calls[1]) != 10 || len(fs.calls[2]) != 5 {
		t.Fatalf("unexpected batch sizes: %d calls", len(fs.calls))
	}

	seen := map[string]bool{}
	n := 0
	for _, call := range fs.calls {
		for _, e := range call {
			if seen[e.ID] {
				t.Fatalf("duplicate entry id %s", e.ID)
			}
			seen[e.ID] = true

			var env campaign.Envelope
			if err := json.Unmarshal(e.Body, &env); err != nil {
				t.Fatal(err)
			}
			if want := fmt.Sprintf("u%d", n); env.RecipientID != want {
				t.Fatalf("position %d: want %s, got %s", n, want, env.RecipientID)
			}
			if e.Attributes["campaign_id"] != "camp-1" || e.Attributes["recipient_id"] != env.RecipientID {
				t.Fatalf("attributes: %#v", e.Attributes)
			}
			n++
		}
	}
}

func TestDispatch_DuplicateRecipientsGetDistinctIDs(t *testing.T) {
	fs := &fakeSender{}
	d := newDispatcher(t, fs, nil)

	req := request(3)
	for i := range req.Recipients {
		req.Recipients[i].RecipientID = "same"
	}
	if _, err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, e := range fs.calls[0] {
		ids[e.ID] = true
	}
	if len(ids) != 3 {
		t.Fatalf("want 3 distinct ids, got %v", ids)
	}
}

func TestDispatch_TemplateErrorSendsNothing(t *testing.T) {
	fs := &fakeSender{}
	d := newDispatcher(t, fs, nil)

	req := request(12)
	req.FromAddress = "{{sender}}"
	req.Recipients[7].Vars["sender"] = "broken"

	_, err := d.Dispatch(context.Background(), req)
	var rerr *campaign.TemplateRenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("want *TemplateRenderError, got %v", err)
	}
	if len(fs.calls) != 0 {
		t.Fatalf("queue must not be called, got %d calls", len(fs.calls))
	}
}

func TestDispatch_OversizedSendsNothing(t *testing.T) {
	fs := &fakeSender{}
	d := newDispatcher(t, fs, nil)

	req := request(15)
	req.Recipients[3].Vars["blob"] = strings.Repeat("x", 300000)
	req.Recipients[11].Vars["blob"] = strings.Repeat("y", 300000)

	_, err := d.Dispatch(context.Background(), req)
	var oerr *campaign.OversizedError
	if !errors.As(err, &oerr) {
		t.Fatalf("want *OversizedError, got %v", err)
	}
	if len(oerr.Offenders) != 2 || oerr.Offenders[0].RecipientID != "u3" || oerr.Offenders[1].RecipientID != "u11" {
		t.Fatalf("offenders: %+v", oerr.Offenders)
	}
	if len(fs.calls) != 0 {
		t.Fatalf("queue must not be called, got %d calls", len(fs.calls))
	}
}

func TestDispatch_PartialFailureStopsRemainingBatches(t *testing.T) {
	fs := &fakeSender{failOn: map[int][]int{2: {4}}}
	l := &fakeLedger{}
	d := newDispatcher(t, fs, l)

	res, err := d.Dispatch(context.Background(), request(25))
	var perr *PartialFailureError
	if !errors.As(err, &perr) {
		t.Fatalf("want *PartialFailureError, got %v", err)
	}
	if perr.Batch != 2 || len(perr.Failures) != 1 {
		t.Fatalf("unexpected partial failure %+v", perr)
	}
	if perr.Failures[0].ID != fs.calls[1][4].ID {
		t.Fatalf("failure id %s does not match entry %s", perr.Failures[0].ID, fs.calls[1][4].ID)
	}
	if perr.Enqueued != 19 || res.Enqueued != 19 {
		t.Fatalf("want 19 enqueued before abort, got %d / %d", perr.Enqueued, res.Enqueued)
	}
	if len(fs.calls) != 2 {
		t.Fatalf("batch 3 must not be sent, got %d calls", len(fs.calls))
	}

	rows := l.batches[2]
	if len(rows) != 10 {
		t.Fatalf("ledger rows for batch 2: %d", len(rows))
	}
	if rows[4].Status != store.StatusFailed || rows[4].RecipientID != "u14" {
		t.Fatalf("failed row: %+v", rows[4])
	}
	if rows[0].Status != store.StatusEnqueued || rows[0].MessageID == "" {
		t.Fatalf("enqueued row: %+v", rows[0])
	}
	if _, ok := l.batches[3]; ok {
		t.Fatal("batch 3 must not be recorded")
	}
}

func TestDispatch_SendErrorAborts(t *testing.T) {
	fs := &fakeSender{sendErr: errTest("connection refused")}
	d := newDispatcher(t, fs, nil)

	_, err := d.Dispatch(context.Background(), request(12))
	if err == nil || !errors.Is(err, fs.sendErr) {
		t.Fatalf("want wrapped send error, got %v", err)
	}
	var perr *PartialFailureError
	if errors.As(err, &perr) {
		t.Fatal("transport errors are not partial failures")
	}
	if len(fs.calls) != 1 {
		t.Fatalf("want 1 call, got %d", len(fs.calls))
	}
}

func TestDispatch_LedgerErrorIgnored(t *testing.T) {
	fs := &fakeSender{}
	d := newDispatcher(t, fs, &fakeLedger{err: errTest("db down")})

	res, err := d.Dispatch(context.Background(), request(3))
	if err != nil {
		t.Fatalf("ledger errors must not fail the request: %v", err)
	}
	if res.Enqueued != 3 || res.Batches != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatch_CanceledContext(t *testing.T) {
	fs := &fakeSender{}
	d := newDispatcher(t, fs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, request(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(fs.calls) != 0 {
		t.Fatalf("no batch should be sent, got %d", len(fs.calls))
	}
}
