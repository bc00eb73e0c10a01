// Package platform adapts a discordgo session to the consumer-side
// interfaces of the moderation, transcript and audit packages.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/transcript"
)

// memberSearchLimit bounds REST member searches by name.
const memberSearchLimit = 10

// Adapter performs moderation effects and lookups through discordgo.
type Adapter struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func NewAdapter(session *discordgo.Session) *Adapter {
	return &Adapter{session: session, logger: log.DiscordLogger()}
}

var (
	_ moderation.Platform        = (*Adapter)(nil)
	_ moderation.MemberDirectory = (*Adapter)(nil)
	_ transcript.PageSource      = (*Adapter)(nil)
	_ transcript.Deleter         = (*Adapter)(nil)
)

func (a *Adapter) Kick(ctx context.Context, guildID, userID, auditReason string) error {
	return a.session.GuildMemberDeleteWithReason(guildID, userID, auditReason, discordgo.WithContext(ctx))
}

func (a *Adapter) Ban(ctx context.Context, guildID, userID, auditReason string) error {
	return a.session.GuildBanCreateWithReason(guildID, userID, auditReason, 0, discordgo.WithContext(ctx))
}

func (a *Adapter) Unban(ctx context.Context, guildID, userID, auditReason string) error {
	return a.session.GuildBanDelete(guildID, userID, discordgo.WithAuditLogReason(auditReason), discordgo.WithContext(ctx))
}

// SendDirect opens a DM channel with userID and posts content.
func (a *Adapter) SendDirect(ctx context.Context, userID, content string) error {
	ch, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if _, err := a.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// MemberByID resolves a member from state, falling back to REST.
func (a *Adapter) MemberByID(ctx context.Context, guildID, userID string) (moderation.Principal, error) {
	var member *discordgo.Member
	if a.session.State != nil {
		if m, err := a.session.State.Member(guildID, userID); err == nil && m != nil {
			member = m
		}
	}
	if member == nil {
		m, err := a.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			if isUnknownMember(err) {
				return moderation.Principal{}, moderation.ErrNoSuchMember
			}
			return moderation.Principal{}, err
		}
		member = m
	}

	guild, roles, err := a.guildAndRoles(ctx, guildID)
	if err != nil {
		return moderation.Principal{}, err
	}
	return PrincipalFromMember(guild, roles, member), nil
}

// MemberByName matches username, global name, nickname or name#discriminator,
// case insensitively. The state cache is searched before REST.
func (a *Adapter) MemberByName(ctx context.Context, guildID, name string) (moderation.Principal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return moderation.Principal{}, moderation.ErrNoSuchMember
	}

	var member *discordgo.Member
	if a.session.State != nil {
		if g, err := a.session.State.Guild(guildID); err == nil && g != nil {
			member = matchMember(g.Members, name)
		}
	}
	if member == nil {
		query := name
		if i := strings.LastIndex(query, "#"); i > 0 {
			query = query[:i]
		}
		found, err := a.session.GuildMembersSearch(guildID, query, memberSearchLimit, discordgo.WithContext(ctx))
		if err != nil {
			return moderation.Principal{}, err
		}
		member = matchMember(found, name)
	}
	if member == nil {
		return moderation.Principal{}, moderation.ErrNoSuchMember
	}

	guild, roles, err := a.guildAndRoles(ctx, guildID)
	if err != nil {
		return moderation.Principal{}, err
	}
	return PrincipalFromMember(guild, roles, member), nil
}

// MessagePage fetches one page of channel history, newest first.
func (a *Adapter) MessagePage(ctx context.Context, channelID, beforeID string, limit int) ([]transcript.Message, error) {
	msgs, err := a.session.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]transcript.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		out = append(out, convertMessage(m))
	}
	return out, nil
}

func (a *Adapter) BulkDelete(ctx context.Context, channelID string, messageIDs []string) error {
	return a.session.ChannelMessagesBulkDelete(channelID, messageIDs, discordgo.WithContext(ctx))
}

func (a *Adapter) DeleteOne(ctx context.Context, channelID, messageID string) error {
	return a.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

// Actor converts the member attached to an interaction.
func (a *Adapter) Actor(ctx context.Context, guildID string, m *discordgo.Member) (moderation.Principal, error) {
	guild, roles, err := a.guildAndRoles(ctx, guildID)
	if err != nil {
		return moderation.Principal{}, err
	}
	return ActorFromInteraction(guild, roles, m), nil
}

// Guild returns the guild's ID and name.
func (a *Adapter) Guild(ctx context.Context, guildID string) (moderation.Guild, error) {
	guild, _, err := a.guildAndRoles(ctx, guildID)
	if err != nil {
		return moderation.Guild{ID: guildID}, err
	}
	return moderation.Guild{ID: guild.ID, Name: guild.Name}, nil
}

// Channel returns the channel's ID and name. A failed lookup still yields
// the ID so callers can proceed.
func (a *Adapter) Channel(ctx context.Context, channelID string) moderation.Channel {
	if a.session.State != nil {
		if ch, err := a.session.State.Channel(channelID); err == nil && ch != nil {
			return moderation.Channel{ID: ch.ID, Name: ch.Name}
		}
	}
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil || ch == nil {
		a.logger.Debug("Channel lookup failed", "channelID", channelID, "err", err)
		return moderation.Channel{ID: channelID}
	}
	return moderation.Channel{ID: ch.ID, Name: ch.Name}
}

// guildAndRoles prefers the state cache and falls back to REST.
func (a *Adapter) guildAndRoles(ctx context.Context, guildID string) (*discordgo.Guild, []*discordgo.Role, error) {
	if a.session.State != nil {
		if g, err := a.session.State.Guild(guildID); err == nil && g != nil && len(g.Roles) > 0 {
			return g, g.Roles, nil
		}
	}
	g, err := a.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	roles := g.Roles
	if len(roles) == 0 {
		roles, err = a.session.GuildRoles(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, nil, fmt.Errorf("fetch roles for guild %s: %w", guildID, err)
		}
	}
	return g, roles, nil
}

func matchMember(members []*discordgo.Member, name string) *discordgo.Member {
	base, discrim := name, ""
	if i := strings.LastIndex(name, "#"); i > 0 {
		base, discrim = name[:i], name[i+1:]
	}
	for _, m := range members {
		if m == nil || m.User == nil {
			continue
		}
		u := m.User
		if discrim != "" {
			if strings.EqualFold(u.Username, base) && u.Discriminator == discrim {
				return m
			}
			continue
		}
		if strings.EqualFold(u.Username, name) ||
			(u.GlobalName != "" && strings.EqualFold(u.GlobalName, name)) ||
			(m.Nick != "" && strings.EqualFold(m.Nick, name)) {
			return m
		}
	}
	return nil
}

func convertMessage(m *discordgo.Message) transcript.Message {
	msg := transcript.Message{
		ID:         m.ID,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		EmbedCount: len(m.Embeds),
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.DisplayName()
		msg.Bot = m.Author.Bot
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, transcript.Attachment{
			Filename: att.Filename,
			URL:      att.URL,
			Size:     att.Size,
		})
	}
	return msg
}

func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
