package moderation

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardAuthorizeRankTable(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	cases := []struct {
		actorRank  int
		targetRank int
		allowed    bool
	}{
		{actorRank: 10, targetRank: 3, allowed: true},
		{actorRank: 4, targetRank: 3, allowed: true},
		{actorRank: 5, targetRank: 5, allowed: false},
		{actorRank: 3, targetRank: 4, allowed: false},
		{actorRank: 0, targetRank: 0, allowed: false},
		{actorRank: OwnerRank, targetRank: 99, allowed: true},
	}

	for _, kind := range []Kind{KindExpel, KindBan, KindUnban} {
		for _, tc := range cases {
			actor := Principal{ID: "actor", Rank: tc.actorRank, Member: true}
			target := LiveTarget(Principal{ID: "target", Rank: tc.targetRank, Member: true})

			err := g.Authorize(actor, target, kind)
			if tc.allowed {
				assert.NoError(t, err, "kind=%s actor=%d target=%d", kind, tc.actorRank, tc.targetRank)
				continue
			}
			require.Error(t, err, "kind=%s actor=%d target=%d", kind, tc.actorRank, tc.targetRank)
			assert.True(t, errors.Is(err, ErrPermissionDenied))

			var denied *PermissionDeniedError
			require.True(t, errors.As(err, &denied))
			assert.Equal(t, DenyHierarchy, denied.Reason)
		}
	}
}

func TestGuardAuthorizeSelf(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	actor := Principal{ID: "same", Rank: 50, Member: true}
	self := LiveTarget(Principal{ID: "same", Rank: 1, Member: true})

	for _, kind := range []Kind{KindExpel, KindBan} {
		err := g.Authorize(actor, self, kind)
		var denied *PermissionDeniedError
		require.True(t, errors.As(err, &denied), "kind=%s", kind)
		assert.Equal(t, DenySelf, denied.Reason)
	}

	// A raw id carries no rank.
	assert.NoError(t, g.Authorize(actor, RawTarget(42), KindUnban))
}

func TestGuardAuthorizeOwnerTarget(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	actor := Principal{ID: "mod", Rank: 100, Member: true}
	owner := LiveTarget(Principal{ID: "owner", Rank: OwnerRank, Owner: true, Member: true})

	err := g.Authorize(actor, owner, KindBan)
	var denied *PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, DenyOwner, denied.Reason)
}

func TestGuardAuthorizeRawTarget(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	actor := Principal{ID: "1", Rank: 0, Member: true}
	assert.NoError(t, g.Authorize(actor, RawTarget(123456789012345678), KindUnban))
}

func TestGuardPermits(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	tests := []struct {
		name  string
		actor Principal
		kind  Kind
		ok    bool
	}{
		{name: "kick with kick", actor: Principal{Permissions: discordgo.PermissionKickMembers}, kind: KindExpel, ok: true},
		{name: "kick with ban only", actor: Principal{Permissions: discordgo.PermissionBanMembers}, kind: KindExpel, ok: false},
		{name: "ban with ban", actor: Principal{Permissions: discordgo.PermissionBanMembers}, kind: KindBan, ok: true},
		{name: "unban with ban", actor: Principal{Permissions: discordgo.PermissionBanMembers}, kind: KindUnban, ok: true},
		{name: "prune with manage", actor: Principal{Permissions: discordgo.PermissionManageMessages}, kind: KindBulkDelete, ok: true},
		{name: "prune without", actor: Principal{Permissions: discordgo.PermissionSendMessages}, kind: KindBulkDelete, ok: false},
		{name: "administrator", actor: Principal{Permissions: discordgo.PermissionAdministrator}, kind: KindBan, ok: true},
		{name: "owner", actor: Principal{Owner: true}, kind: KindExpel, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Permits(tt.actor, tt.kind)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var denied *PermissionDeniedError
			require.True(t, errors.As(err, &denied))
			assert.Equal(t, DenyMissingPermission, denied.Reason)
		})
	}
}
