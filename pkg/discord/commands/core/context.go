package core

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// BuildContext assembles the handler context for an interaction.
func BuildContext(ctx context.Context, session *discordgo.Session, responder *Responder, logger *slog.Logger, i *discordgo.InteractionCreate) *Context {
	return &Context{
		Ctx:         ctx,
		Session:     session,
		Interaction: i,
		Responder:   responder,
		Logger:      logger,
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		UserID:      extractUserID(i),
		Member:      i.Member,
	}
}

func extractUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
