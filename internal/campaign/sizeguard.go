package campaign

import "github.com/cannetwork/notifier/pkg/queue"

// CheckSizes rejects the batch when any serialized message is above the
// queue's per-message ceiling. Every offender is reported.
func CheckSizes(msgs []RenderedMessage) error {
	var offenders []Offender
	for _, m := range msgs {
		if m.Size > queue.MaxMessageBytes {
			offenders = append(offenders, Offender{
				RecipientID: m.RecipientID,
				Email:       m.Email,
				Size:        m.Size,
			})
		}
	}
	if len(offenders) > 0 {
		return &OversizedError{Limit: queue.MaxMessageBytes, Offenders: offenders}
	}
	return nil
}
