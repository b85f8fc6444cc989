package dispatch

import (
	"context"
	"fmt"

	"github.com/cannetwork/notifier/internal/campaign"
	"github.com/cannetwork/notifier/internal/store"
	"github.com/cannetwork/notifier/pkg/config"
	"github.com/cannetwork/notifier/pkg/logx"
	"github.com/cannetwork/notifier/pkg/metrics"
	"github.com/cannetwork/notifier/pkg/queue"
)

// Ledger records per-entry enqueue outcomes. It is optional.
type Ledger interface {
	RecordBatch(ctx context.Context, campaignID, correlationID string, batch int, entries []store.Dispatch) error
}

type Config struct {
	// Queue is the destination the sender was built for (SQS queue URL or
	// RabbitMQ queue name). Empty means the service is misconfigured.
	Queue            string
	ConfigurationSet string
	RenderWorkers    int
}

type Result struct {
	Enqueued int
	Batches  int
}

// Dispatcher runs one campaign request through render, size check and
// sequential batch submission.
type Dispatcher struct {
	cfg    Config
	sender queue.Sender
	ledger Ledger
}

func New(cfg Config, sender queue.Sender, ledger Ledger) (*Dispatcher, error) {
	d := &Dispatcher{cfg: cfg, sender: sender, ledger: ledger}
	if err := d.CheckConfig(); err != nil {
		return nil, err
	}
	return d, nil
}

// CheckConfig reports a *config.Error when the dispatcher cannot reach a queue.
func (d *Dispatcher) CheckConfig() error {
	if d == nil {
		return &config.Error{Missing: []string{"dispatcher"}}
	}
	var missing []string
	if d.cfg.Queue == "" {
		missing = append(missing, "queue destination")
	}
	if d.sender == nil {
		missing = append(missing, "queue sender")
	}
	if len(missing) > 0 {
		return &config.Error{Missing: missing}
	}
	return nil
}

// Dispatch renders, size-checks and enqueues req. Sub-batches go out one at a
// time; the first batch with a failed entry stops the run and is reported as
// a *PartialFailureError. Batches already accepted are not rolled back.
func (d *Dispatcher) Dispatch(ctx context.Context, req *campaign.CampaignRequest) (Result, error) {
	if err := d.CheckConfig(); err != nil {
		return Result{}, err
	}

	msgs, err := campaign.RenderAll(req, campaign.RenderOptions{
		ConfigurationSet: d.cfg.ConfigurationSet,
		Workers:          d.cfg.RenderWorkers,
	})
	if err != nil {
		metrics.RequestsRejectedTotal.WithLabelValues("template").Inc()
		return Result{}, err
	}

	for _, m := range msgs {
		metrics.MessageSizeBytes.Observe(float64(m.Size))
	}
	if err := campaign.CheckSizes(msgs); err != nil {
		metrics.RequestsRejectedTotal.WithLabelValues("oversized").Inc()
		return Result{}, err
	}

	var res Result
	for bi, batch := range campaign.Chunk(msgs, queue.MaxBatchEntries) {
		batchNo := bi + 1
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("enqueue stopped before batch %d: %w", batchNo, err)
		}

		entries := buildEntries(req, batch, bi*queue.MaxBatchEntries)
		out, err := d.sender.SendBatch(ctx, entries)
		if err != nil {
			logx.L().Errorw("enqueue_batch_error",
				"campaign_id", req.CampaignID, "batch", batchNo, "entries", len(entries), "error", err)
			return res, fmt.Errorf("send batch %d: %w", batchNo, err)
		}
		metrics.BatchesSubmittedTotal.Inc()
		metrics.MessagesEnqueuedTotal.Add(float64(len(out.Successful)))

		d.record(ctx, req, batchNo, batch, entries, out)

		res.Batches++
		res.Enqueued += len(out.Successful)

		if len(out.Failed) > 0 {
			metrics.PartialFailuresTotal.Inc()
			logx.L().Warnw("enqueue_batch_partial_failure",
				"campaign_id", req.CampaignID, "batch", batchNo,
				"failed", len(out.Failed), "enqueued_so_far", res.Enqueued)
			return res, &PartialFailureError{
				Batch:    batchNo,
				Failures: out.Failed,
				Enqueued: res.Enqueued,
			}
		}
	}

	logx.L().Infow("campaign_enqueued",
		"campaign_id", req.CampaignID, "correlation_id", req.CorrelationID,
		"enqueued", res.Enqueued, "batches", res.Batches)
	return res, nil
}

func buildEntries(req *campaign.CampaignRequest, batch []campaign.RenderedMessage, offset int) []queue.Entry {
	entries := make([]queue.Entry, 0, len(batch))
	for i, m := range batch {
		entries = append(entries, queue.Entry{
			ID:   campaign.EntryID(req.CampaignID, m.RecipientID, offset+i),
			Body: m.Body,
			Attributes: map[string]string{
				"campaign_id":    req.CampaignID,
				"recipient_id":   m.RecipientID,
				"correlation_id": req.CorrelationID,
			},
		})
	}
	return entries
}

// record writes the batch outcome to the ledger. Ledger errors are logged
// only; the queue result is what the caller gets.
func (d *Dispatcher) record(ctx context.Context, req *campaign.CampaignRequest, batchNo int,
	batch []campaign.RenderedMessage, entries []queue.Entry, out queue.BatchResult) {
	if d.ledger == nil {
		return
	}

	okByID := make(map[string]string, len(out.Successful))
	for _, s := range out.Successful {
		okByID[s.ID] = s.MessageID
	}
	failByID := make(map[string]queue.Failure, len(out.Failed))
	for _, f := range out.Failed {
		failByID[f.ID] = f
	}

	rows := make([]store.Dispatch, 0, len(entries))
	for i, e := range entries {
		row := store.Dispatch{
			EntryID:     e.ID,
			RecipientID: batch[i].RecipientID,
			Email:       batch[i].Email,
		}
		if f, failed := failByID[e.ID]; failed {
			row.Status = store.StatusFailed
			row.Error = f.Code + ": " + f.Message
		} else if msgID, ok := okByID[e.ID]; ok {
			row.Status = store.StatusEnqueued
			row.MessageID = msgID
		} else {
			continue
		}
		rows = append(rows, row)
	}

	if err := d.ledger.RecordBatch(ctx, req.CampaignID, req.CorrelationID, batchNo, rows); err != nil {
		logx.L().Warnw("ledger_record_error", "campaign_id", req.CampaignID, "batch", batchNo, "error", err)
	}
}
