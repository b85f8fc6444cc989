package campaign

import (
	"strconv"
	"strings"
)

const maxEntryIDLen = 80

// Chunk splits msgs into contiguous groups of at most size, keeping order.
func Chunk(msgs []RenderedMessage, size int) [][]RenderedMessage {
	if size <= 0 || len(msgs) == 0 {
		return nil
	}
	out := make([][]RenderedMessage, 0, (len(msgs)+size-1)/size)
	for start := 0; start < len(msgs); start += size {
		end := min(start+size, len(msgs))
		out = append(out, msgs[start:end])
	}
	return out
}

// EntryID builds the batch entry id campaign-recipient-index. Characters the
// queue rejects become '_' and long ids are trimmed from the front of the
// campaign/recipient part so the index suffix always survives.
func EntryID(campaignID, recipientID string, index int) string {
	suffix := "-" + strconv.Itoa(index)
	head := sanitizeID(campaignID) + "-" + sanitizeID(recipientID)
	if room := maxEntryIDLen - len(suffix); len(head) > room {
		head = head[len(head)-room:]
	}
	return head + suffix
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
