// Package audit routes completion records to each guild's bound audit channel.
//
// A guild without a binding is not an error: Publish reports OutcomeSkipped
// and makes no delivery attempt. Delivery failures are logged and reported as
// OutcomeFailed; they never reach the member who ran the command.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// ErrDeliveryFailed is matched by every DeliveryFailedError.
var ErrDeliveryFailed = errors.New("audit delivery failed")

// Binding associates a guild with its audit channel.
type Binding struct {
	GuildID   string
	ChannelID string
}

// BindingLookup returns the audit channel bound to a guild. ok is false when
// the guild has no binding.
type BindingLookup interface {
	AuditChannel(ctx context.Context, guildID string) (channelID string, ok bool, err error)
}

// Sink renders and sends audit entries to a channel.
type Sink interface {
	SendRecord(ctx context.Context, channelID string, rec *moderation.CompletionRecord) error
	SendArtifact(ctx context.Context, channelID string, rec *moderation.CompletionRecord, artifact *moderation.Transcript) error
}

// Observer is notified of every publish outcome.
type Observer interface {
	ObserveDelivery(outcome Outcome)
}

// Outcome is the result of one publish call.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeDelivered
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// DeliveryFailedError describes a failed lookup or send.
type DeliveryFailedError struct {
	GuildID   string
	ChannelID string
	Stage     string
	Cause     error
}

func (e *DeliveryFailedError) Error() string {
	if e.ChannelID == "" {
		return fmt.Sprintf("audit %s for guild %s failed: %v", e.Stage, e.GuildID, e.Cause)
	}
	return fmt.Sprintf("audit %s for guild %s channel %s failed: %v", e.Stage, e.GuildID, e.ChannelID, e.Cause)
}

func (e *DeliveryFailedError) Unwrap() error { return e.Cause }

func (e *DeliveryFailedError) Is(target error) bool { return target == ErrDeliveryFailed }

// Router delivers records to bound channels.
type Router struct {
	bindings BindingLookup
	sink     Sink
	logger   *slog.Logger
	observer Observer
}

// Option configures the Router.
type Option func(*Router)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		r.observer = o
	}
}

func NewRouter(bindings BindingLookup, sink Sink, opts ...Option) *Router {
	r := &Router{bindings: bindings, sink: sink}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Publish sends the record to the guild's audit channel, if one is bound.
func (r *Router) Publish(ctx context.Context, guildID string, rec *moderation.CompletionRecord) Outcome {
	return r.publish(ctx, guildID, rec, "record", func(channelID string) error {
		return r.sink.SendRecord(ctx, channelID, rec)
	})
}

// PublishArtifact sends a transcript for a committed bulk delete.
func (r *Router) PublishArtifact(ctx context.Context, guildID string, rec *moderation.CompletionRecord, artifact *moderation.Transcript) Outcome {
	if artifact == nil {
		return r.finish(OutcomeSkipped)
	}
	return r.publish(ctx, guildID, rec, "artifact", func(channelID string) error {
		return r.sink.SendArtifact(ctx, channelID, rec, artifact)
	})
}

func (r *Router) publish(ctx context.Context, guildID string, rec *moderation.CompletionRecord, what string, send func(channelID string) error) Outcome {
	if r == nil || r.bindings == nil || r.sink == nil || rec == nil {
		return OutcomeSkipped
	}

	channelID, ok, err := r.bindings.AuditChannel(ctx, guildID)
	if err != nil {
		r.fail(&DeliveryFailedError{GuildID: guildID, Stage: "lookup", Cause: err}, rec, what)
		return r.finish(OutcomeFailed)
	}
	if !ok || channelID == "" {
		return r.finish(OutcomeSkipped)
	}

	if err := send(channelID); err != nil {
		r.fail(&DeliveryFailedError{GuildID: guildID, ChannelID: channelID, Stage: "send", Cause: err}, rec, what)
		return r.finish(OutcomeFailed)
	}
	return r.finish(OutcomeDelivered)
}

func (r *Router) fail(err *DeliveryFailedError, rec *moderation.CompletionRecord, what string) {
	r.logger.Error("Audit delivery failed",
		"guildID", err.GuildID,
		"channelID", err.ChannelID,
		"stage", err.Stage,
		"entry", what,
		"recordID", rec.ID.String(),
		"kind", rec.Kind.String(),
		"err", err,
	)
}

func (r *Router) finish(o Outcome) Outcome {
	if r.observer != nil {
		r.observer.ObserveDelivery(o)
	}
	return o
}
