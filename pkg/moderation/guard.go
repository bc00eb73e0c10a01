package moderation

import "github.com/bwmarrin/discordgo"

// RequiredPermission is the Discord permission an actor needs for kind.
func RequiredPermission(kind Kind) int64 {
	switch kind {
	case KindExpel:
		return discordgo.PermissionKickMembers
	case KindBan, KindUnban:
		return discordgo.PermissionBanMembers
	case KindBulkDelete:
		return discordgo.PermissionManageMessages
	default:
		return discordgo.PermissionAdministrator
	}
}

// Guard decides whether an actor may perform an action. It holds no state
// and never calls the platform.
type Guard struct{}

func NewGuard() *Guard { return &Guard{} }

// Permits checks the actor's own authority for kind. The owner and
// administrators hold every permission.
func (g *Guard) Permits(actor Principal, kind Kind) error {
	if actor.Owner || actor.Permissions&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	required := RequiredPermission(kind)
	if actor.Permissions&required == required {
		return nil
	}
	return &PermissionDeniedError{Kind: kind, Reason: DenyMissingPermission}
}

// Authorize compares actor and target. It denies self-targeting for
// destructive kinds and any target ranked at or above the actor.
// Raw identifiers carry no rank and only fail the self check.
func (g *Guard) Authorize(actor Principal, target Target, kind Kind) error {
	if kind.Destructive() && target.ID() == actor.ID {
		return &PermissionDeniedError{Kind: kind, Reason: DenySelf}
	}
	if !target.Live() {
		return nil
	}

	t := target.Principal
	if t.Owner {
		return &PermissionDeniedError{Kind: kind, Reason: DenyOwner}
	}
	if t.Rank >= actor.Rank {
		return &PermissionDeniedError{Kind: kind, Reason: DenyHierarchy}
	}
	return nil
}
