package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory serves members from a fixed list and records lookups.
type fakeDirectory struct {
	members []Principal
	err     error
	byID    []string
	byName  []string
}

func (d *fakeDirectory) MemberByID(_ context.Context, _ string, userID string) (Principal, error) {
	d.byID = append(d.byID, userID)
	if d.err != nil {
		return Principal{}, d.err
	}
	for _, m := range d.members {
		if m.ID == userID {
			return m, nil
		}
	}
	return Principal{}, ErrNoSuchMember
}

func (d *fakeDirectory) MemberByName(_ context.Context, _ string, name string) (Principal, error) {
	d.byName = append(d.byName, name)
	if d.err != nil {
		return Principal{}, d.err
	}
	for _, m := range d.members {
		if strings.EqualFold(m.DisplayName, name) {
			return m, nil
		}
	}
	return Principal{}, ErrNoSuchMember
}

const memberID = "111111111111111111"

func newDirectory() *fakeDirectory {
	return &fakeDirectory{members: []Principal{
		{ID: memberID, DisplayName: "alice", Rank: 2, Member: true},
	}}
}

func TestResolverLiveMember(t *testing.T) {
	t.Parallel()

	tokens := []string{memberID, "<@" + memberID + ">", "<@!" + memberID + ">", "alice", "ALICE", "  alice "}
	for _, token := range tokens {
		target, err := NewResolver(newDirectory()).Resolve(context.Background(), "g1", token)
		require.NoError(t, err, "token=%q", token)
		require.True(t, target.Live(), "token=%q", token)
		assert.Equal(t, memberID, target.ID())
		assert.Equal(t, "alice", target.Label())
	}
}

func TestResolverFallsBackToRawIdentifier(t *testing.T) {
	t.Parallel()

	dir := newDirectory()
	target, err := NewResolver(dir).Resolve(context.Background(), "g1", "222222222222222222")
	require.NoError(t, err)
	assert.False(t, target.Live())
	assert.Equal(t, RawIdentifier(222222222222222222), target.Raw)
	assert.Equal(t, []string{"222222222222222222"}, dir.byID)

	short, err := NewResolver(dir).Resolve(context.Background(), "g1", "42")
	require.NoError(t, err)
	assert.False(t, short.Live())
	assert.Equal(t, "42", short.ID())
}

func TestResolverNotFound(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"", "   ", "nobody", "-5", "<@abc>"} {
		_, err := NewResolver(newDirectory()).Resolve(context.Background(), "g1", token)
		require.Error(t, err, "token=%q", token)
		assert.True(t, errors.Is(err, ErrTargetNotFound), "token=%q", token)
	}
}

func TestResolverDirectoryFailure(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{err: errors.New("gateway timeout")}
	_, err := NewResolver(dir).Resolve(context.Background(), "g1", memberID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlatformActionFailed))
	assert.False(t, IsValidation(err))
}
