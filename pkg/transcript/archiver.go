package transcript

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/small-frappuccino/modcore/pkg/audit"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// DefaultDeliveryDelay separates the invoker's confirmation from the
// transcript upload.
const DefaultDeliveryDelay = 2 * time.Second

// Purge result labels passed to Observer.
const (
	ResultDeleted = "deleted"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// ArtifactPublisher hands a transcript to the audit trail.
type ArtifactPublisher interface {
	PublishArtifact(ctx context.Context, guildID string, rec *moderation.CompletionRecord, artifact *moderation.Transcript) audit.Outcome
}

// Observer receives per-result message counts after every purge.
type Observer interface {
	ObservePurge(result string, n int)
}

// Config wires an Archiver.
type Config struct {
	Source        PageSource
	Deleter       Deleter
	Publisher     ArtifactPublisher
	AgedPolicy    AgedPolicy
	DeliveryDelay time.Duration
	Observer      Observer
	Logger        *slog.Logger
	Now           func() time.Time
}

// Archiver implements the capture, delete and render sequence of a bulk
// delete and the delayed delivery of its transcript.
type Archiver struct {
	source    PageSource
	deleter   Deleter
	publisher ArtifactPublisher
	policy    AgedPolicy
	delay     time.Duration
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

func NewArchiver(cfg Config) (*Archiver, error) {
	if cfg.Source == nil || cfg.Deleter == nil {
		return nil, errors.New("transcript: history source and deleter are required")
	}
	a := &Archiver{
		source:    cfg.Source,
		deleter:   cfg.Deleter,
		publisher: cfg.Publisher,
		policy:    cfg.AgedPolicy,
		delay:     cfg.DeliveryDelay,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if a.delay < 0 {
		a.delay = 0
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// ArchiveAndPurge captures up to count of the newest messages in channel,
// deletes them and renders the transcript. Only a capture failure is an
// error: deletions that fail are counted in the report, and a render failure
// after deletion returns a nil transcript.
func (a *Archiver) ArchiveAndPurge(ctx context.Context, channel moderation.Channel, count int) (*moderation.Transcript, moderation.PurgeReport, error) {
	var report moderation.PurgeReport

	msgs, err := NewHistory(a.source, channel.ID, count).Collect(ctx)
	if err != nil {
		return nil, report, &moderation.PlatformActionFailedError{Op: "capture_history", Cause: err}
	}
	report.Captured = len(msgs)

	now := a.now()
	young, aged := Partition(msgs, now)

	onError := func(messageID string, err error) {
		a.logger.Warn("Failed to delete message",
			"channelID", channel.ID,
			"messageID", messageID,
			"err", err,
		)
	}

	res := deleteBulk(ctx, a.deleter, channel.ID, young, onError)
	switch a.policy {
	case AgedSkip:
		report.Skipped = len(aged)
	default:
		res.add(deleteSingle(ctx, a.deleter, channel.ID, messageIDs(aged), onError))
	}
	report.Deleted = res.deleted
	report.Failed = res.failed

	a.observe(report)
	a.logger.Info("Channel purge finished",
		"channelID", channel.ID,
		"captured", report.Captured,
		"deleted", report.Deleted,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"aged", len(aged),
		"agedPolicy", a.policy.String(),
	)

	transcript, err := Render(channel, msgs, now)
	if err != nil {
		a.logger.Error("Transcript rendering failed", "channelID", channel.ID, "err", err)
		return nil, report, nil
	}
	return transcript, report, nil
}

// DeliverLater waits the delivery delay and then publishes the transcript.
// It runs on the caller's goroutine; a cancelled ctx drops the delivery.
func (a *Archiver) DeliverLater(ctx context.Context, guildID string, rec *moderation.CompletionRecord, artifact *moderation.Transcript) audit.Outcome {
	if a.publisher == nil || artifact == nil {
		return audit.OutcomeSkipped
	}

	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			a.logger.Warn("Transcript delivery cancelled",
				"guildID", guildID,
				"transcript", artifact.Name,
				"err", ctx.Err(),
			)
			return audit.OutcomeSkipped
		case <-timer.C:
		}
	}
	return a.publisher.PublishArtifact(ctx, guildID, rec, artifact)
}

func (a *Archiver) observe(r moderation.PurgeReport) {
	if a.observer == nil {
		return
	}
	a.observer.ObservePurge(ResultDeleted, r.Deleted)
	a.observer.ObservePurge(ResultFailed, r.Failed)
	a.observer.ObservePurge(ResultSkipped, r.Skipped)
}
