package platform

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/small-frappuccino/modcore/pkg/audit"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/theme"
)

// Sink renders completion records as embeds in the bound audit channel.
type Sink struct {
	session *discordgo.Session
}

func NewSink(session *discordgo.Session) *Sink {
	return &Sink{session: session}
}

var _ audit.Sink = (*Sink)(nil)

const (
	recordPermissions   = int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks)
	artifactPermissions = recordPermissions | discordgo.PermissionAttachFiles
)

func (s *Sink) SendRecord(ctx context.Context, channelID string, rec *moderation.CompletionRecord) error {
	if err := s.validateAuditChannel(ctx, rec.Guild.ID, channelID, recordPermissions); err != nil {
		return err
	}
	_, err := s.session.ChannelMessageSendEmbed(channelID, RecordEmbed(rec), discordgo.WithContext(ctx))
	return err
}

func (s *Sink) SendArtifact(ctx context.Context, channelID string, rec *moderation.CompletionRecord, artifact *moderation.Transcript) error {
	if err := s.validateAuditChannel(ctx, rec.Guild.ID, channelID, artifactPermissions); err != nil {
		return err
	}
	_, err := s.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("Transcript of <#%s> (%d messages, %s)",
			artifact.ChannelID, artifact.Entries, humanize.Bytes(uint64(len(artifact.Data)))),
		Files: []*discordgo.File{{
			Name:        artifact.Name,
			ContentType: "text/html",
			Reader:      bytes.NewReader(artifact.Data),
		}},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return err
}

// RecordEmbed is the audit entry for rec.
func RecordEmbed(rec *moderation.CompletionRecord) *discordgo.MessageEmbed {
	var (
		title string
		color int
		lines []string
	)
	moderator := fmt.Sprintf("**Moderator:** `%s` (<@%s>)", rec.Actor.Label(), rec.Actor.ID)
	reason := fmt.Sprintf("**Reason:** `%s`", rec.Reason.String())

	switch rec.Kind {
	case moderation.KindExpel:
		title, color = "Kick 📝", theme.Kick()
		lines = []string{targetLine("User kicked", rec.Target), moderator, reason, notificationLine(rec.Notification)}
	case moderation.KindBan:
		title, color = "Ban 📝", theme.Ban()
		lines = []string{targetLine("User banned", rec.Target), moderator, reason, notificationLine(rec.Notification)}
	case moderation.KindUnban:
		title, color = "Unban 📝", theme.Unban()
		lines = []string{targetLine("User unbanned", rec.Target), moderator, reason}
	case moderation.KindBulkDelete:
		title, color = "Prune 📝", theme.Prune()
		lines = []string{fmt.Sprintf("**Channel:** <#%s>", rec.Channel.ID)}
		if rec.Purge != nil {
			lines = append(lines,
				fmt.Sprintf("**Messages deleted:** `%d`", rec.Purge.Deleted),
				fmt.Sprintf("**Not removed:** `%d` (failed %d, too old %d)", rec.Purge.NotRemoved(), rec.Purge.Failed, rec.Purge.Skipped),
			)
		}
		lines = append(lines, moderator)
		if rec.Transcript != nil {
			lines = append(lines, fmt.Sprintf("**Channel transcript:** `%s` follows", rec.Transcript.Name))
		} else {
			lines = append(lines, "**Channel transcript:** unavailable")
		}
	default:
		title, color = "Moderation 📝", theme.Muted()
		lines = []string{moderator, reason}
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Color:       color,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Record " + rec.ID.String()},
	}
	if !rec.Timestamp.IsZero() {
		embed.Timestamp = rec.Timestamp.Format(time.RFC3339)
	}
	return embed
}

func targetLine(label string, t moderation.Target) string {
	if t.Live() {
		return fmt.Sprintf("**%s:** `%s` (<@%s>)", label, t.Label(), t.ID())
	}
	return fmt.Sprintf("**%s:** `%s`", label, t.ID())
}

func notificationLine(s moderation.NotificationStatus) string {
	switch s {
	case moderation.NotificationDelivered:
		return "**Notified:** yes"
	case moderation.NotificationFailed:
		return "**Notified:** no (direct messages closed)"
	default:
		return "**Notified:** n/a"
	}
}

// validateAuditChannel checks the bound channel before anything is sent:
// it must exist, belong to the guild, accept text, and the bot must hold
// the required permissions there.
func (s *Sink) validateAuditChannel(ctx context.Context, guildID, channelID string, required int64) error {
	if s.session == nil {
		return fmt.Errorf("session is nil")
	}
	if guildID == "" || channelID == "" {
		return fmt.Errorf("missing guildID or channelID")
	}

	var ch *discordgo.Channel
	if s.session.State != nil {
		if cached, _ := s.session.State.Channel(channelID); cached != nil {
			ch = cached
		}
	}
	if ch == nil {
		c, err := s.session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("channel lookup failed: %w", err)
		}
		ch = c
	}

	if ch == nil {
		return fmt.Errorf("channel not found")
	}
	if ch.GuildID != "" && ch.GuildID != guildID {
		return fmt.Errorf("channel guild mismatch")
	}
	if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
		return fmt.Errorf("channel is not a guild text channel")
	}

	botID := ""
	if s.session.State != nil && s.session.State.User != nil {
		botID = s.session.State.User.ID
	}
	if botID == "" {
		return fmt.Errorf("bot identity not available")
	}

	perms, err := s.session.UserChannelPermissions(botID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("permission check failed: %w", err)
	}
	if perms&required != required {
		return fmt.Errorf("missing permissions (need %#x, have %#x)", required, perms&required)
	}
	return nil
}
