package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BulkDeleteWindow is the maximum message age the platform accepts for bulk
// deletion.
const BulkDeleteWindow = 14 * 24 * time.Hour

// bulkDeleteMargin keeps messages right at the boundary out of bulk requests.
const bulkDeleteMargin = time.Minute

// bulkDeleteChunk is the most IDs one bulk request accepts.
const bulkDeleteChunk = 100

// AgedPolicy controls messages too old for bulk deletion.
type AgedPolicy int

const (
	// AgedDeleteIndividually removes aged messages one request at a time.
	AgedDeleteIndividually AgedPolicy = iota
	// AgedSkip leaves aged messages in the channel and counts them as skipped.
	AgedSkip
)

func (p AgedPolicy) String() string {
	if p == AgedSkip {
		return "skip"
	}
	return "individual"
}

// ParseAgedPolicy accepts "individual" (or "delete") and "skip".
func ParseAgedPolicy(s string) (AgedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "individual", "delete":
		return AgedDeleteIndividually, nil
	case "skip":
		return AgedSkip, nil
	default:
		return AgedDeleteIndividually, fmt.Errorf("unknown aged message policy %q", s)
	}
}

// Deleter removes messages from a channel.
type Deleter interface {
	BulkDelete(ctx context.Context, channelID string, messageIDs []string) error
	DeleteOne(ctx context.Context, channelID, messageID string) error
}

// Partition splits msgs into those still eligible for bulk deletion and
// those older than the window. Input order is preserved in both.
func Partition(msgs []Message, now time.Time) (young, aged []Message) {
	cutoff := now.Add(-(BulkDeleteWindow - bulkDeleteMargin))
	for _, m := range msgs {
		if m.Timestamp.After(cutoff) {
			young = append(young, m)
			continue
		}
		aged = append(aged, m)
	}
	return young, aged
}

type deleteResult struct {
	deleted int
	failed  int
}

func (r *deleteResult) add(o deleteResult) {
	r.deleted += o.deleted
	r.failed += o.failed
}

// deleteBulk removes msgs in chunks, falling back to a single delete for a
// chunk of one since bulk requests need at least two IDs.
func deleteBulk(ctx context.Context, d Deleter, channelID string, msgs []Message, onError func(string, error)) deleteResult {
	var res deleteResult
	for _, chunk := range chunkIDs(msgs, bulkDeleteChunk) {
		if len(chunk) == 1 {
			res.add(deleteSingle(ctx, d, channelID, chunk, onError))
			continue
		}
		if err := d.BulkDelete(ctx, channelID, chunk); err != nil {
			res.failed += len(chunk)
			if onError != nil {
				for _, id := range chunk {
					onError(id, err)
				}
			}
			continue
		}
		res.deleted += len(chunk)
	}
	return res
}

func deleteSingle(ctx context.Context, d Deleter, channelID string, ids []string, onError func(string, error)) deleteResult {
	var res deleteResult
	for _, id := range ids {
		if err := d.DeleteOne(ctx, channelID, id); err != nil {
			res.failed++
			if onError != nil {
				onError(id, err)
			}
			continue
		}
		res.deleted++
	}
	return res
}

func chunkIDs(msgs []Message, size int) [][]string {
	if size <= 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	var out [][]string
	for len(ids) > 0 {
		n := min(len(ids), size)
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func messageIDs(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
