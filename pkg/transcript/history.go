// Package transcript captures a channel's recent messages, removes them and
// renders the captured window as an HTML transcript for the audit channel.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrHistoryConsumed is returned when a History is read a second time.
var ErrHistoryConsumed = errors.New("transcript: history already consumed")

// PageSize is the largest page the platform returns for one history request.
const PageSize = 100

// Attachment is a file attached to a captured message.
type Attachment struct {
	Filename string
	URL      string
	Size     int
}

// Message is one captured channel message.
type Message struct {
	ID         string
	AuthorID   string
	AuthorName string
	Bot        bool
	Content    string
	Timestamp  time.Time
	// Attachments and EmbedCount are rendered as summaries only.
	Attachments []Attachment
	EmbedCount  int
}

// PageSource returns up to limit messages older than beforeID, newest
// first. An empty beforeID starts from the newest message.
type PageSource interface {
	MessagePage(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error)
}

// History is a one-shot, newest-first walk over a channel's messages.
type History struct {
	source    PageSource
	channelID string
	limit     int
	consumed  bool
}

// NewHistory prepares a walk over at most limit messages.
func NewHistory(source PageSource, channelID string, limit int) *History {
	return &History{source: source, channelID: channelID, limit: limit}
}

// Collect fetches the messages. It can be called once; later calls return
// ErrHistoryConsumed.
func (h *History) Collect(ctx context.Context) ([]Message, error) {
	if h.consumed {
		return nil, ErrHistoryConsumed
	}
	h.consumed = true

	if h.source == nil {
		return nil, errors.New("transcript: history source is nil")
	}
	if h.limit <= 0 {
		return nil, nil
	}

	out := make([]Message, 0, h.limit)
	before := ""
	for len(out) < h.limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := min(h.limit-len(out), PageSize)
		page, err := h.source.MessagePage(ctx, h.channelID, before, want)
		if err != nil {
			return nil, fmt.Errorf("fetch history page before %q: %w", before, err)
		}
		if len(page) > want {
			page = page[:want]
		}
		out = append(out, page...)
		if len(page) < want {
			break
		}
		before = page[len(page)-1].ID
	}
	return out, nil
}
