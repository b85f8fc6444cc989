package queue

import "context"

const (
	// MaxBatchEntries is the number of entries one SendMessageBatch call accepts.
	MaxBatchEntries = 10
	// MaxMessageBytes is the per-message payload ceiling of the queue backend.
	MaxMessageBytes = 262144
)

type Entry struct {
	ID         string
	Body       []byte
	Attributes map[string]string
}

type Success struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
}

type Failure struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	SenderFault bool   `json:"sender_fault"`
}

// BatchResult mirrors the per-entry outcome a backend reports for one batch.
type BatchResult struct {
	Successful []Success
	Failed     []Failure
}

// Sender submits one batch of at most MaxBatchEntries entries.
type Sender interface {
	SendBatch(ctx context.Context, entries []Entry) (BatchResult, error)
}
