package moderation

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrNoSuchMember is returned by a MemberDirectory when nobody matches.
var ErrNoSuchMember = errors.New("no such member")

// MemberDirectory looks up live guild members.
type MemberDirectory interface {
	MemberByID(ctx context.Context, guildID, userID string) (Principal, error)
	// MemberByName matches username, global name, nickname or name#discriminator.
	MemberByName(ctx context.Context, guildID, name string) (Principal, error)
}

// Resolver turns a command argument into a live member or a raw identifier.
type Resolver struct {
	directory MemberDirectory
}

func NewResolver(directory MemberDirectory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve tries a live member first (mention, ID, then name) and falls back
// to parsing token as a base-10 identifier.
func (r *Resolver) Resolve(ctx context.Context, guildID, token string) (Target, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Target{}, &TargetNotFoundError{Token: token}
	}

	var (
		member Principal
		err    error
	)
	if id, ok := mentionOrID(token); ok {
		member, err = r.directory.MemberByID(ctx, guildID, id)
	} else {
		member, err = r.directory.MemberByName(ctx, guildID, token)
	}
	switch {
	case err == nil:
		return LiveTarget(member), nil
	case !errors.Is(err, ErrNoSuchMember):
		return Target{}, &PlatformActionFailedError{Op: "resolve_member", Cause: err}
	}

	raw, perr := strconv.ParseUint(token, 10, 64)
	if perr != nil {
		return Target{}, &TargetNotFoundError{Token: token}
	}
	return RawTarget(RawIdentifier(raw)), nil
}

// mentionOrID extracts the user ID from <@id>, <@!id> or a bare snowflake.
func mentionOrID(token string) (string, bool) {
	if strings.HasPrefix(token, "<@") && strings.HasSuffix(token, ">") {
		inner := strings.TrimSuffix(strings.TrimPrefix(token, "<@"), ">")
		inner = strings.TrimPrefix(inner, "!")
		if isSnowflake(inner) {
			return inner, true
		}
		return "", false
	}
	if isSnowflake(token) {
		return token, true
	}
	return "", false
}

// isSnowflake accepts 15 to 20 decimal digits, the range Discord IDs occupy.
func isSnowflake(s string) bool {
	if len(s) < 15 || len(s) > 20 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
