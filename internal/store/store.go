package store

import (
	"context"
	"database/sql"
	"time"
)

const (
	StatusEnqueued = "enqueued"
	StatusFailed   = "failed"
)

type Store struct {
	DB *sql.DB
}

// Dispatch is one queue entry outcome, kept so that callers can reconcile a
// partially enqueued campaign by recipient_id.
type Dispatch struct {
	EntryID     string
	RecipientID string
	Email       string
	MessageID   string
	Status      string
	Error       string
}

type DispatchRow struct {
	ID            int64     `json:"id"`
	CampaignID    string    `json:"campaign_id"`
	CorrelationID string    `json:"correlation_id"`
	Batch         int       `json:"batch"`
	EntryID       string    `json:"entry_id"`
	RecipientID   string    `json:"recipient_id"`
	Email         string    `json:"email"`
	MessageID     string    `json:"message_id,omitempty"`
	Status        string    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type CampaignStats struct {
	Total    int `json:"total"`
	Enqueued int `json:"enqueued"`
	Failed   int `json:"failed"`
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertDispatch(ctx context.Context, tx *sql.Tx, campaignID, correlationID string, batch int, d Dispatch) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dispatches (campaign_id, correlation_id, batch_no, entry_id, recipient_id, email, message_id, status, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,''))
	`, campaignID, correlationID, batch, d.EntryID, d.RecipientID, d.Email, d.MessageID, d.Status, d.Error)
	return err
}

// RecordBatch stores the outcome of every entry of one submitted sub-batch.
func (s *Store) RecordBatch(ctx context.Context, campaignID, correlationID string, batch int, entries []Dispatch) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, d := range entries {
			if err := s.InsertDispatch(ctx, tx, campaignID, correlationID, batch, d); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetCampaignStats(ctx context.Context, campaignID string) (CampaignStats, error) {
	var st CampaignStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT
		  COUNT(*)                                         AS total,
		  COUNT(*) FILTER (WHERE status='enqueued')        AS enqueued,
		  COUNT(*) FILTER (WHERE status='failed')          AS failed
		FROM dispatches
		WHERE campaign_id = $1
	`, campaignID).Scan(&st.Total, &st.Enqueued, &st.Failed)
	if err != nil {
		return CampaignStats{}, err
	}
	return st, nil
}

func (s *Store) ListDispatches(ctx context.Context, campaignID string, limit, offset int) ([]DispatchRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, campaign_id, correlation_id, batch_no, entry_id, recipient_id, email,
		       COALESCE(message_id,''), status, COALESCE(last_error,''), created_at
		FROM dispatches
		WHERE campaign_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DispatchRow{}
	for rows.Next() {
		var d DispatchRow
		if err := rows.Scan(&d.ID, &d.CampaignID, &d.CorrelationID, &d.Batch, &d.EntryID, &d.RecipientID,
			&d.Email, &d.MessageID, &d.Status, &d.LastError, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
