package platform

import (
	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// PrincipalFromMember computes rank and guild-level permissions for m.
// Rank is the highest position among the member's roles; the owner gets
// moderation.OwnerRank and every permission.
func PrincipalFromMember(guild *discordgo.Guild, roles []*discordgo.Role, m *discordgo.Member) moderation.Principal {
	p := moderation.Principal{Member: true}
	if m == nil {
		return p
	}
	if m.User != nil {
		p.ID = m.User.ID
		p.DisplayName = m.DisplayName()
	}

	guildID := m.GuildID
	if guild != nil {
		guildID = guild.ID
		if guild.OwnerID != "" && guild.OwnerID == p.ID {
			p.Owner = true
			p.Rank = moderation.OwnerRank
			p.Permissions = discordgo.PermissionAll
			return p
		}
	}

	held := make(map[string]struct{}, len(m.Roles))
	for _, id := range m.Roles {
		held[id] = struct{}{}
	}

	var perms int64
	for _, r := range roles {
		if r == nil {
			continue
		}
		// The @everyone role shares the guild's ID.
		if r.ID == guildID {
			perms |= r.Permissions
			continue
		}
		if _, ok := held[r.ID]; !ok {
			continue
		}
		perms |= r.Permissions
		if r.Position > p.Rank {
			p.Rank = r.Position
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		perms = discordgo.PermissionAll
	}
	p.Permissions = perms
	return p
}

// ActorFromInteraction builds the invoking principal. The permission set
// Discord attaches to the interaction member is authoritative; rank still
// comes from roles.
func ActorFromInteraction(guild *discordgo.Guild, roles []*discordgo.Role, m *discordgo.Member) moderation.Principal {
	p := PrincipalFromMember(guild, roles, m)
	if m != nil && m.Permissions != 0 && !p.Owner {
		p.Permissions = m.Permissions
	}
	return p
}
