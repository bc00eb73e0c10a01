// Package moderation declares the /kick, /ban, /unban and /prune slash
// commands on top of the moderation executor.
package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/audit"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/core"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// Option names shared by the commands.
const (
	optionMember = "member"
	optionReason = "reason"
	optionAmount = "amount"
)

// Executor validates and runs moderation actions. Prepare never touches the
// platform; Commit performs the effect of a prepared request.
type Executor interface {
	Prepare(ctx context.Context, inv moderation.Invocation) (moderation.ActionRequest, error)
	Commit(ctx context.Context, req moderation.ActionRequest) (*moderation.CompletionRecord, error)
	Execute(ctx context.Context, inv moderation.Invocation) (*moderation.CompletionRecord, error)
}

// Interactions resolves the invoker, guild and channel of an interaction.
type Interactions interface {
	Actor(ctx context.Context, guildID string, m *discordgo.Member) (moderation.Principal, error)
	Guild(ctx context.Context, guildID string) (moderation.Guild, error)
	Channel(ctx context.Context, channelID string) moderation.Channel
}

// Publisher sends completion records to the audit trail.
type Publisher interface {
	Publish(ctx context.Context, guildID string, rec *moderation.CompletionRecord) audit.Outcome
}

// TranscriptDelivery uploads a prune transcript after the confirmation.
type TranscriptDelivery interface {
	DeliverLater(ctx context.Context, guildID string, rec *moderation.CompletionRecord, artifact *moderation.Transcript) audit.Outcome
}

// Deps wires the command handlers. Transcripts may be nil. MaxBulkDelete
// bounds the prune amount option; zero means moderation.DefaultMaxBulkDelete.
type Deps struct {
	Executor      Executor
	Interactions  Interactions
	Audit         Publisher
	Transcripts   TranscriptDelivery
	MaxBulkDelete int
}

type handlers struct {
	Deps
}

// Commands returns the fixed command set.
func Commands(d Deps) []core.Spec {
	if d.MaxBulkDelete <= 0 {
		d.MaxBulkDelete = moderation.DefaultMaxBulkDelete
	}
	h := &handlers{Deps: d}
	minAmount := 1.0
	return []core.Spec{
		{
			Name:        "kick",
			Description: "Kick a member from the server",
			Options:     memberOptions("Member to kick (mention, ID or name)", "Reason for the kick"),
			Permission:  discordgo.PermissionKickMembers,
			Handler:     h.handleKick,
		},
		{
			Name:        "ban",
			Description: "Ban a member from the server",
			Options:     memberOptions("Member to ban (mention, ID or name)", "Reason for the ban"),
			Permission:  discordgo.PermissionBanMembers,
			Handler:     h.handleBan,
		},
		{
			Name:        "unban",
			Description: "Unban a user from the server",
			Options:     memberOptions("User ID to unban", "Reason for the unban"),
			Permission:  discordgo.PermissionBanMembers,
			Handler:     h.handleUnban,
		},
		{
			Name:        "prune",
			Description: "Delete recent messages in this channel and archive a transcript",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optionAmount,
					Description: fmt.Sprintf("How many messages to delete (default %d)", moderation.DefaultBulkDeleteCount),
					Required:    false,
					MinValue:    &minAmount,
					MaxValue:    float64(d.MaxBulkDelete),
				},
			},
			Permission: discordgo.PermissionManageMessages,
			Handler:    h.handlePrune,
		},
	}
}

func memberOptions(memberDesc, reasonDesc string) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optionMember,
			Description: memberDesc,
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optionReason,
			Description: reasonDesc,
			Required:    false,
		},
	}
}

func (h *handlers) handleKick(ctx *core.Context) error {
	return h.memberAction(ctx, moderation.KindExpel)
}

func (h *handlers) handleBan(ctx *core.Context) error {
	return h.memberAction(ctx, moderation.KindBan)
}

func (h *handlers) handleUnban(ctx *core.Context) error {
	return h.memberAction(ctx, moderation.KindUnban)
}

// memberAction checks the request before acknowledging it, so a rejected
// action only ever produces a private error.
func (h *handlers) memberAction(ctx *core.Context, kind moderation.Kind) error {
	inv, err := h.invocation(ctx, kind)
	if err != nil {
		return err
	}
	opts := ctx.Options()
	inv.TargetToken = opts.String(optionMember)
	inv.ReasonText = opts.StringPtr(optionReason)

	req, err := h.Executor.Prepare(ctx.Ctx, inv)
	if err != nil {
		return commandError(err)
	}

	if err := ctx.Defer(false); err != nil {
		return err
	}
	rec, err := h.Executor.Commit(ctx.Ctx, req)
	if err != nil {
		return commandError(err)
	}

	h.confirm(ctx, confirmationEmbed(rec))
	h.publish(ctx, rec)
	return nil
}

// handlePrune defers privately so the placeholder never shows up in the
// captured history.
func (h *handlers) handlePrune(ctx *core.Context) error {
	if err := ctx.Defer(true); err != nil {
		return err
	}

	inv, err := h.invocation(ctx, moderation.KindBulkDelete)
	if err != nil {
		return err
	}
	opts := ctx.Options()
	if opts.HasOption(optionAmount) {
		n := int(opts.Int(optionAmount))
		if n < 1 {
			return commandError(&moderation.InvalidCountError{Count: n, Max: h.MaxBulkDelete})
		}
		inv.Count = n
	}

	rec, err := h.Executor.Execute(ctx.Ctx, inv)
	if err != nil {
		return commandError(err)
	}

	h.confirm(ctx, confirmationEmbed(rec))
	h.publish(ctx, rec)
	if h.Transcripts != nil && rec.Transcript != nil {
		ctx.StopTiming()
		h.Transcripts.DeliverLater(ctx.Ctx, ctx.GuildID, rec, rec.Transcript)
	}
	return nil
}

func (h *handlers) invocation(ctx *core.Context, kind moderation.Kind) (moderation.Invocation, error) {
	actor, err := h.Interactions.Actor(ctx.Ctx, ctx.GuildID, ctx.Member)
	if err != nil {
		return moderation.Invocation{}, fmt.Errorf("resolve invoker: %w", err)
	}
	guild, err := h.Interactions.Guild(ctx.Ctx, ctx.GuildID)
	if err != nil {
		return moderation.Invocation{}, fmt.Errorf("resolve guild: %w", err)
	}
	return moderation.Invocation{
		Kind:    kind,
		Guild:   guild,
		Actor:   actor,
		Channel: h.Interactions.Channel(ctx.Ctx, ctx.ChannelID),
	}, nil
}

// confirm reports the committed action to the invoker. The action already
// happened, so a failed edit is only logged.
func (h *handlers) confirm(ctx *core.Context, embed *discordgo.MessageEmbed) {
	if err := ctx.Responder.EditResponseWithEmbed(ctx.Interaction, embed); err != nil {
		ctx.Logger.Warn("Failed to send confirmation", "err", err)
	}
}

func (h *handlers) publish(ctx *core.Context, rec *moderation.CompletionRecord) {
	if h.Audit == nil {
		return
	}
	h.Audit.Publish(ctx.Ctx, ctx.GuildID, rec)
}

// commandError hides platform detail behind the fixed user message.
func commandError(err error) error {
	msg := moderation.UserMessage(err)
	return errors.Join(err, core.NewCommandError(msg, true))
}

func confirmationEmbed(rec *moderation.CompletionRecord) *discordgo.MessageEmbed {
	footer := "Command invoked by " + rec.Actor.Label()
	switch rec.Kind {
	case moderation.KindExpel:
		return core.ConfirmationEmbed(
			fmt.Sprintf("✅ %s has been kicked from the server", rec.Target.Label()),
			reasonLine(rec), footer)
	case moderation.KindBan:
		return core.ConfirmationEmbed(
			fmt.Sprintf("✅ %s has been banned from the server", rec.Target.Label()),
			reasonLine(rec), footer)
	case moderation.KindUnban:
		return core.ConfirmationEmbed("✅ Unbanned!",
			fmt.Sprintf("**User:** `%s`\n%s", rec.Target.ID(), reasonLine(rec)), footer)
	case moderation.KindBulkDelete:
		deleted, description := 0, ""
		if rec.Purge != nil {
			deleted = rec.Purge.Deleted
			if n := rec.Purge.NotRemoved(); n > 0 {
				description = fmt.Sprintf("%d message(s) could not be removed.", n)
			}
		}
		return core.ConfirmationEmbed(fmt.Sprintf("✅ Successfully pruned %d messages.", deleted), description, footer)
	default:
		return core.ConfirmationEmbed("", "Done.", footer)
	}
}

func reasonLine(rec *moderation.CompletionRecord) string {
	return fmt.Sprintf("**Reason:** %s", rec.Reason.String())
}
