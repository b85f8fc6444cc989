package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cannetwork/notifier/internal/campaign"
	"github.com/cannetwork/notifier/internal/dispatch"
	"github.com/cannetwork/notifier/internal/store"
	"github.com/cannetwork/notifier/pkg/config"
	"github.com/cannetwork/notifier/pkg/logx"
)

const defaultMaxBodyBytes = 10 << 20

type notifierAPI interface {
	CheckConfig() error
	Dispatch(ctx context.Context, req *campaign.CampaignRequest) (dispatch.Result, error)
}

type ledgerAPI interface {
	GetCampaignStats(ctx context.Context, campaignID string) (store.CampaignStats, error)
	ListDispatches(ctx context.Context, campaignID string, limit, offset int) ([]store.DispatchRow, error)
}

type pingerAPI interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Notifier     notifierAPI
	Ledger       ledgerAPI
	Queue        pingerAPI
	MaxBodyBytes int64
}

// NewHandlers wires the handlers. st and q may be nil: the ledger endpoint is
// then disabled and readiness does not probe the queue.
func NewHandlers(d *dispatch.Dispatcher, st *store.Store, q pingerAPI, maxBody int64) *Handlers {
	h := &Handlers{Notifier: d, Queue: q, MaxBodyBytes: maxBody}
	if st != nil {
		h.Ledger = st
	}
	return h
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handlers) Readyz(c *gin.Context) {
	if h.Queue == nil {
		c.String(http.StatusOK, "ok")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Queue.Ping(ctx); err != nil {
		logx.L().Warnw("readiness_queue_ping_error", "error", err)
		c.String(http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	c.String(http.StatusOK, "ok")
}

func (h *Handlers) EnqueueNotifications(c *gin.Context) {
	if err := h.Notifier.CheckConfig(); err != nil {
		logx.L().Errorw("notifier_config_error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload", "issues": []campaign.Issue{{Message: "could not read request body"}}})
		return
	}

	req, err := campaign.Validate(body)
	if err != nil {
		var verr *campaign.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload", "issues": verr.Issues})
			return
		}
		logx.L().Errorw("validate_error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	res, err := h.Notifier.Dispatch(c.Request.Context(), &req)
	if err != nil {
		writeDispatchError(c, &req, err)
		return
	}

	c.JSON(http.StatusOK, campaign.EnqueueResp{OK: true, Enqueued: res.Enqueued, Batches: res.Batches})
}

func writeDispatchError(c *gin.Context, req *campaign.CampaignRequest, err error) {
	var (
		renderErr  *campaign.TemplateRenderError
		sizeErr    *campaign.OversizedError
		partialErr *dispatch.PartialFailureError
		cfgErr     *config.Error
	)

	switch {
	case errors.As(err, &renderErr):
		logx.L().Warnw("template_render_rejected", "campaign_id", req.CampaignID, "recipient_id", renderErr.RecipientID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        "Template rendering failed: " + renderErr.Error(),
			"recipient_id": renderErr.RecipientID,
		})
	case errors.As(err, &sizeErr):
		logx.L().Warnw("oversized_messages_rejected", "campaign_id", req.CampaignID, "offenders", len(sizeErr.Offenders))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "One or more messages exceed the 256 KiB SQS limit",
			"offenders": sizeErr.Offenders,
		})
	case errors.As(err, &partialErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "Partial SQS failure",
			"details":  partialErr.Failures,
			"batch":    partialErr.Batch,
			"enqueued": partialErr.Enqueued,
		})
	case errors.As(err, &cfgErr):
		logx.L().Errorw("notifier_config_error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
	default:
		logx.L().Errorw("enqueue_internal_error", "campaign_id", req.CampaignID, "correlation_id", req.CorrelationID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func (h *Handlers) ListDispatches(c *gin.Context) {
	if h.Ledger == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "dispatch ledger is not enabled"})
		return
	}

	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.Ledger.GetCampaignStats(ctx, id)
	if err != nil {
		logx.L().Errorw("get_campaign_stats_error", "campaign_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats error"})
		return
	}
	if stats.Total == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}

	rows, err := h.Ledger.ListDispatches(ctx, id, limit, offset)
	if err != nil {
		logx.L().Errorw("list_dispatches_error", "campaign_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaign_id": id,
		"stats":       stats,
		"dispatches":  rows,
	})
}
