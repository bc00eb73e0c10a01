package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Platform performs the externally visible effects of an action.
type Platform interface {
	Kick(ctx context.Context, guildID, userID, auditReason string) error
	Ban(ctx context.Context, guildID, userID, auditReason string) error
	Unban(ctx context.Context, guildID, userID, auditReason string) error
	SendDirect(ctx context.Context, userID, content string) error
}

// Purger captures and removes a channel's most recent messages.
type Purger interface {
	ArchiveAndPurge(ctx context.Context, channel Channel, count int) (*Transcript, PurgeReport, error)
}

// Observer receives one call per Execute with the final outcome.
type Observer interface {
	ObserveAction(kind Kind, outcome string)
}

// Outcome labels passed to Observer.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// ErrUnpreparedRequest is returned by Commit for a request Prepare did not build.
var ErrUnpreparedRequest = errors.New("moderation: request was not prepared")

// DefaultMaxBulkDelete caps a single bulk delete.
const DefaultMaxBulkDelete = 500

// Deps wires an Executor. Platform and Directory are required; Purger is
// required only for bulk delete.
type Deps struct {
	Platform      Platform
	Directory     MemberDirectory
	Purger        Purger
	Observer      Observer
	Logger        *slog.Logger
	MaxBulkDelete int
	Now           func() time.Time
	NewID         func() uuid.UUID
}

// Executor runs one moderation action through its ordered steps.
type Executor struct {
	platform  Platform
	purger    Purger
	guard     *Guard
	validator *ReasonValidator
	resolver  *Resolver
	observer  Observer
	logger    *slog.Logger
	maxPurge  int
	now       func() time.Time
	newID     func() uuid.UUID
}

func NewExecutor(d Deps) (*Executor, error) {
	if d.Platform == nil {
		return nil, errors.New("moderation: platform is required")
	}
	if d.Directory == nil {
		return nil, errors.New("moderation: member directory is required")
	}
	e := &Executor{
		platform:  d.Platform,
		purger:    d.Purger,
		guard:     NewGuard(),
		validator: NewReasonValidator(),
		resolver:  NewResolver(d.Directory),
		observer:  d.Observer,
		logger:    d.Logger,
		maxPurge:  d.MaxBulkDelete,
		now:       d.Now,
		newID:     d.NewID,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxPurge <= 0 {
		e.maxPurge = DefaultMaxBulkDelete
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.New
	}
	return e, nil
}

// Execute validates inv, performs the platform effect and returns the
// completion record. No platform call is made unless every validation
// passed. Once the effect succeeded the action counts as committed: later
// failures (notification) are recorded on the record, not returned.
func (e *Executor) Execute(ctx context.Context, inv Invocation) (*CompletionRecord, error) {
	req, err := e.Prepare(ctx, inv)
	if err != nil {
		return nil, err
	}
	return e.Commit(ctx, req)
}

// Prepare runs every check of Execute without touching the platform. The
// returned request is the only kind Commit accepts.
func (e *Executor) Prepare(ctx context.Context, inv Invocation) (ActionRequest, error) {
	req, err := e.prepare(ctx, inv)
	if err != nil {
		outcome := OutcomeRejected
		if !IsValidation(err) {
			outcome = OutcomeFailed
		}
		e.observe(inv.Kind, outcome)
		return ActionRequest{}, err
	}
	req.approved = true
	return req, nil
}

// Commit performs the platform effect of a prepared request.
func (e *Executor) Commit(ctx context.Context, req ActionRequest) (*CompletionRecord, error) {
	if !req.approved {
		e.observe(req.Kind, OutcomeFailed)
		return nil, ErrUnpreparedRequest
	}
	rec, err := e.commit(ctx, req)
	if err != nil {
		e.observe(req.Kind, OutcomeFailed)
		return nil, err
	}
	e.observe(req.Kind, OutcomeCommitted)
	return rec, nil
}

func (e *Executor) prepare(ctx context.Context, inv Invocation) (ActionRequest, error) {
	req := ActionRequest{
		Kind:    inv.Kind,
		Guild:   inv.Guild,
		Actor:   inv.Actor,
		Channel: inv.Channel,
	}

	if err := e.guard.Permits(inv.Actor, inv.Kind); err != nil {
		return req, err
	}

	switch inv.Kind {
	case KindBulkDelete:
		count := inv.Count
		if count == 0 {
			count = DefaultBulkDeleteCount
		}
		if count < 1 || count > e.maxPurge {
			return req, &InvalidCountError{Count: count, Max: e.maxPurge}
		}
		if e.purger == nil {
			return req, &PlatformActionFailedError{Op: inv.Kind.String(), Cause: errors.New("no purger configured")}
		}
		req.Count = count

	case KindExpel, KindBan, KindUnban:
		target, err := e.resolver.Resolve(ctx, inv.Guild.ID, inv.TargetToken)
		if err != nil {
			return req, err
		}
		if inv.Kind.RequiresLiveTarget() && !target.Live() {
			return req, &TargetNotFoundError{Token: inv.TargetToken}
		}
		if err := e.guard.Authorize(inv.Actor, target, inv.Kind); err != nil {
			return req, err
		}
		req.Target = target

	default:
		return req, fmt.Errorf("moderation: unsupported action kind %d", inv.Kind)
	}

	reason, err := e.validator.Validate(inv.ReasonText)
	if err != nil {
		return req, err
	}
	req.Reason = reason
	return req, nil
}

func (e *Executor) commit(ctx context.Context, req ActionRequest) (*CompletionRecord, error) {
	rec := &CompletionRecord{
		Kind:    req.Kind,
		Guild:   req.Guild,
		Channel: req.Channel,
		Actor:   req.Actor,
		Target:  req.Target,
		Reason:  req.Reason,
	}

	attribution := Attribution(req.Actor, req.Reason)
	var err error
	switch req.Kind {
	case KindExpel:
		err = e.platform.Kick(ctx, req.Guild.ID, req.Target.ID(), attribution)
	case KindBan:
		err = e.platform.Ban(ctx, req.Guild.ID, req.Target.ID(), attribution)
	case KindUnban:
		err = e.platform.Unban(ctx, req.Guild.ID, req.Target.ID(), attribution)
	case KindBulkDelete:
		var (
			transcript *Transcript
			report     PurgeReport
		)
		transcript, report, err = e.purger.ArchiveAndPurge(ctx, req.Channel, req.Count)
		if err == nil {
			rec.Purge = &report
			rec.Transcript = transcript
		}
	}
	if err != nil {
		var failed *PlatformActionFailedError
		if !errors.As(err, &failed) {
			err = &PlatformActionFailedError{Op: req.Kind.String(), Cause: err}
		}
		e.logger.Warn("Moderation action failed",
			"kind", req.Kind.String(),
			"guildID", req.Guild.ID,
			"actorID", req.Actor.ID,
			"targetID", req.Target.ID(),
			"err", err,
		)
		return nil, err
	}

	rec.ID = e.newID()
	rec.Timestamp = e.now().UTC()

	if req.Kind.Destructive() {
		rec.Notification = e.notify(ctx, req)
	}

	e.logger.Info("Moderation action committed",
		"recordID", rec.ID.String(),
		"kind", req.Kind.String(),
		"guildID", req.Guild.ID,
		"actorID", req.Actor.ID,
		"targetID", req.Target.ID(),
		"notification", rec.Notification.String(),
	)
	return rec, nil
}

// notify sends the direct message. Members who block DMs are common, so a
// failure is only logged.
func (e *Executor) notify(ctx context.Context, req ActionRequest) NotificationStatus {
	if err := e.platform.SendDirect(ctx, req.Target.ID(), NotificationText(req)); err != nil {
		e.logger.Info("Could not notify moderated member",
			"kind", req.Kind.String(),
			"guildID", req.Guild.ID,
			"targetID", req.Target.ID(),
			"err", err,
		)
		return NotificationFailed
	}
	return NotificationDelivered
}

// NotificationText is the direct message sent to a kicked or banned member.
func NotificationText(req ActionRequest) string {
	verb := "kicked"
	if req.Kind == KindBan {
		verb = "banned"
	}
	return fmt.Sprintf("You've been %s from **%s** for **%s** by **%s**",
		verb, req.Guild.Name, req.Reason.String(), req.Actor.Label())
}

func (e *Executor) observe(kind Kind, outcome string) {
	if e.observer != nil {
		e.observer.ObserveAction(kind, outcome)
	}
}
