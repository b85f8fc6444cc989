package dispatch

import (
	"fmt"

	"github.com/cannetwork/notifier/pkg/queue"
)

// PartialFailureError is returned when the queue backend rejected at least
// one entry of a sub-batch. Earlier sub-batches, and the accepted entries of
// this one, stay enqueued.
type PartialFailureError struct {
	Batch    int
	Failures []queue.Failure
	Enqueued int
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("batch %d: %d entr(ies) failed, %d enqueued before abort", e.Batch, len(e.Failures), e.Enqueued)
}
