// Package moderation gates and executes moderation actions (kick, ban, unban,
// bulk delete) and produces the completion records that feed the audit trail.
//
// Nothing in this package talks to Discord directly. The platform, the member
// directory and the purge step are consumer-side interfaces wired in by the
// caller.
package moderation

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind identifies one of the four supported moderation actions.
type Kind int

const (
	KindExpel Kind = iota + 1
	KindBan
	KindUnban
	KindBulkDelete
)

func (k Kind) String() string {
	switch k {
	case KindExpel:
		return "expel"
	case KindBan:
		return "ban"
	case KindUnban:
		return "unban"
	case KindBulkDelete:
		return "bulk_delete"
	default:
		return "unknown"
	}
}

// Verb is the word used in user-facing sentences ("You can't kick yourself").
func (k Kind) Verb() string {
	switch k {
	case KindExpel:
		return "kick"
	case KindBan:
		return "ban"
	case KindUnban:
		return "unban"
	case KindBulkDelete:
		return "prune messages"
	default:
		return "moderate"
	}
}

// Destructive reports whether the action removes the target from the guild.
func (k Kind) Destructive() bool {
	return k == KindExpel || k == KindBan
}

// TargetsPrincipal is false for bulk delete, which acts on a channel.
func (k Kind) TargetsPrincipal() bool {
	return k == KindExpel || k == KindBan || k == KindUnban
}

// RequiresLiveTarget is true for actions that only make sense on current members.
func (k Kind) RequiresLiveTarget() bool {
	return k == KindExpel || k == KindBan
}

// OwnerRank is the rank of the guild owner; nothing outranks it.
const OwnerRank = math.MaxInt

// Principal is a guild participant as seen for the duration of one command.
type Principal struct {
	ID          string
	DisplayName string
	// Rank is the position of the highest role held; OwnerRank for the owner.
	Rank int
	// Permissions is the Discord permission bit set resolved for the guild.
	Permissions int64
	Member      bool
	Owner       bool
}

// Label is the display name, or the ID when no name is known.
func (p Principal) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// RawIdentifier is a numeric user ID that could not be matched to a live member.
type RawIdentifier uint64

func (r RawIdentifier) String() string {
	return strconv.FormatUint(uint64(r), 10)
}

// Target is either a live member or a raw identifier.
type Target struct {
	Principal *Principal
	Raw       RawIdentifier
}

// LiveTarget wraps a resolved member.
func LiveTarget(p Principal) Target { return Target{Principal: &p} }

// RawTarget wraps an identifier without a live member.
func RawTarget(id RawIdentifier) Target { return Target{Raw: id} }

// Live reports whether the target resolved to a current member.
func (t Target) Live() bool { return t.Principal != nil }

// ID returns the user ID in string form.
func (t Target) ID() string {
	if t.Principal != nil {
		return t.Principal.ID
	}
	return t.Raw.String()
}

// Label returns the best human-readable name for the target.
func (t Target) Label() string {
	if t.Principal != nil {
		return t.Principal.Label()
	}
	return t.Raw.String()
}

// Guild is the scoping unit for an invocation.
type Guild struct {
	ID   string
	Name string
}

// Channel identifies the channel a bulk delete runs in.
type Channel struct {
	ID   string
	Name string
}

// DefaultBulkDeleteCount applies when a bulk delete names no count.
const DefaultBulkDeleteCount = 25

// Invocation is the raw input of a command, before any validation.
type Invocation struct {
	Kind    Kind
	Guild   Guild
	Actor   Principal
	Channel Channel
	// TargetToken is the free-form member argument (mention, ID or name).
	TargetToken string
	// ReasonText is nil when the invoker gave no reason.
	ReasonText *string
	// Count is the number of messages for bulk delete; 0 means the default.
	Count int
}

// ActionRequest is an invocation that passed every validation step.
type ActionRequest struct {
	Kind    Kind
	Guild   Guild
	Actor   Principal
	Channel Channel
	Target  Target
	Reason  Reason
	Count   int

	approved bool
}

// NotificationStatus records what happened to the direct message step.
type NotificationStatus int

const (
	NotificationNotApplicable NotificationStatus = iota
	NotificationDelivered
	NotificationFailed
)

func (s NotificationStatus) String() string {
	switch s {
	case NotificationDelivered:
		return "delivered"
	case NotificationFailed:
		return "failed"
	default:
		return "not_applicable"
	}
}

// PurgeReport counts what happened to each captured message.
type PurgeReport struct {
	Captured int
	Deleted  int
	// Failed counts deletions the platform rejected.
	Failed int
	// Skipped counts messages too old for bulk deletion that were left in place.
	Skipped int
}

// NotRemoved is the number of captured messages still in the channel.
func (r PurgeReport) NotRemoved() int { return r.Failed + r.Skipped }

// Transcript is the rendered snapshot of a purged message window.
type Transcript struct {
	Name      string
	ChannelID string
	Data      []byte
	Entries   int
}

// CompletionRecord describes a committed action. It is only built after the
// platform confirmed the effect.
type CompletionRecord struct {
	ID           uuid.UUID
	Kind         Kind
	Guild        Guild
	Channel      Channel
	Actor        Principal
	Target       Target
	Reason       Reason
	Timestamp    time.Time
	Notification NotificationStatus
	// Purge and Transcript are set for bulk delete only. Transcript stays nil
	// when rendering failed after the messages were already removed.
	Purge      *PurgeReport
	Transcript *Transcript
}
