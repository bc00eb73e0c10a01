package moderation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type platformCall struct {
	op      string
	guildID string
	userID  string
	text    string
}

type fakePlatform struct {
	calls     []platformCall
	actionErr error
	dmErr     error
}

func (p *fakePlatform) record(op, guildID, userID, text string) {
	p.calls = append(p.calls, platformCall{op: op, guildID: guildID, userID: userID, text: text})
}

func (p *fakePlatform) Kick(_ context.Context, guildID, userID, reason string) error {
	p.record("kick", guildID, userID, reason)
	return p.actionErr
}

func (p *fakePlatform) Ban(_ context.Context, guildID, userID, reason string) error {
	p.record("ban", guildID, userID, reason)
	return p.actionErr
}

func (p *fakePlatform) Unban(_ context.Context, guildID, userID, reason string) error {
	p.record("unban", guildID, userID, reason)
	return p.actionErr
}

func (p *fakePlatform) SendDirect(_ context.Context, userID, content string) error {
	p.record("dm", "", userID, content)
	return p.dmErr
}

func (p *fakePlatform) ops() []string {
	out := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, c.op)
	}
	return out
}

type fakePurger struct {
	calls  int
	count  int
	report PurgeReport
	err    error
}

func (p *fakePurger) ArchiveAndPurge(_ context.Context, ch Channel, count int) (*Transcript, PurgeReport, error) {
	p.calls++
	p.count = count
	if p.err != nil {
		return nil, PurgeReport{}, p.err
	}
	return &Transcript{Name: "transcript-" + ch.Name + ".html", ChannelID: ch.ID, Entries: p.report.Captured}, p.report, nil
}

type fakeObserver struct {
	outcomes []string
}

func (o *fakeObserver) ObserveAction(kind Kind, outcome string) {
	o.outcomes = append(o.outcomes, kind.String()+":"+outcome)
}

type executorFixture struct {
	exec     *Executor
	platform *fakePlatform
	purger   *fakePurger
	observer *fakeObserver
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
var fixedID = uuid.MustParse("7f1b2c3d-1111-4222-8333-944455556666")

func newExecutorFixture(t *testing.T, members ...Principal) *executorFixture {
	t.Helper()
	f := &executorFixture{
		platform: &fakePlatform{},
		purger:   &fakePurger{},
		observer: &fakeObserver{},
	}
	exec, err := NewExecutor(Deps{
		Platform:      f.platform,
		Directory:     &fakeDirectory{members: members},
		Purger:        f.purger,
		Observer:      f.observer,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxBulkDelete: 100,
		Now:           func() time.Time { return fixedNow },
		NewID:         func() uuid.UUID { return fixedID },
	})
	require.NoError(t, err)
	f.exec = exec
	return f
}

const (
	modID    = "900000000000000001"
	targetID = "900000000000000002"
)

func moderator(rank int) Principal {
	return Principal{
		ID:          modID,
		DisplayName: "mod",
		Rank:        rank,
		Member:      true,
		Permissions: discordgo.PermissionKickMembers | discordgo.PermissionBanMembers | discordgo.PermissionManageMessages,
	}
}

func member(rank int) Principal {
	return Principal{ID: targetID, DisplayName: "target", Rank: rank, Member: true}
}

func strPtr(s string) *string { return &s }

func TestNewExecutorRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewExecutor(Deps{Directory: &fakeDirectory{}})
	assert.Error(t, err)
	_, err = NewExecutor(Deps{Platform: &fakePlatform{}})
	assert.Error(t, err)
}

func TestExecuteExpelEqualRankDenied(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(5))
	rec, err := f.exec.Execute(context.Background(), Invocation{
		Kind:        KindExpel,
		Guild:       Guild{ID: "g1", Name: "Guild"},
		Actor:       moderator(5),
		TargetToken: targetID,
	})

	require.Error(t, err)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Empty(t, f.platform.calls)
	assert.Equal(t, []string{"expel:rejected"}, f.observer.outcomes)
}

func TestExecuteBanWithFailingDM(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(1))
	f.platform.dmErr = errors.New("cannot send messages to this user")

	rec, err := f.exec.Execute(context.Background(), Invocation{
		Kind:        KindBan,
		Guild:       Guild{ID: "g1", Name: "Guild"},
		Actor:       moderator(5),
		TargetToken: "target",
		ReasonText:  strPtr("spam"),
	})

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, NotificationFailed, rec.Notification)
	assert.Equal(t, fixedID, rec.ID)
	assert.Equal(t, fixedNow, rec.Timestamp)
	assert.Equal(t, KindBan, rec.Kind)
	assert.Equal(t, targetID, rec.Target.ID())
	assert.Equal(t, "spam", rec.Reason.Text())
	assert.Equal(t, []string{"ban", "dm"}, f.platform.ops())
	assert.Equal(t, "[ mod ] spam", f.platform.calls[0].text)
	assert.Equal(t, []string{"ban:committed"}, f.observer.outcomes)
}

func TestExecuteExpelNotifiesTarget(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(1))
	rec, err := f.exec.Execute(context.Background(), Invocation{
		Kind:        KindExpel,
		Guild:       Guild{ID: "g1", Name: "Guild"},
		Actor:       moderator(5),
		TargetToken: "<@" + targetID + ">",
	})

	require.NoError(t, err)
	assert.Equal(t, NotificationDelivered, rec.Notification)
	require.Len(t, f.platform.calls, 2)
	dm := f.platform.calls[1]
	assert.Equal(t, targetID, dm.userID)
	assert.Equal(t, "You've been kicked from **Guild** for **No reason provided** by **mod**", dm.text)
}

func TestExecuteUnbanRawIdentifier(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	rec, err := f.exec.Execute(context.Background(), Invocation{
		Kind:        KindUnban,
		Guild:       Guild{ID: "g1", Name: "Guild"},
		Actor:       moderator(0),
		TargetToken: "123456789012345678",
	})

	require.NoError(t, err)
	assert.False(t, rec.Target.Live())
	assert.Equal(t, NotificationNotApplicable, rec.Notification)
	assert.Equal(t, []string{"unban"}, f.platform.ops())
	assert.Equal(t, "123456789012345678", f.platform.calls[0].userID)
}

func TestExecuteExpelRawIdentifierNotFound(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	_, err := f.exec.Execute(context.Background(), Invocation{
		Kind:        KindExpel,
		Guild:       Guild{ID: "g1"},
		Actor:       moderator(5),
		TargetToken: "123456789012345678",
	})

	assert.True(t, errors.Is(err, ErrTargetNotFound))
	assert.Empty(t, f.platform.calls)
}

func TestExecuteReasonTooLongMakesNoCalls(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(1))
	_, err := f.exec.Execute(context.Background(), Invocation{
		Kind:        KindBan,
		Guild:       Guild{ID: "g1"},
		Actor:       moderator(5),
		TargetToken: targetID,
		ReasonText:  strPtr(strings.Repeat("r", MaxReasonLength+1)),
	})

	assert.True(t, errors.Is(err, ErrReasonTooLong))
	assert.Empty(t, f.platform.calls)
}

func TestExecuteMissingPermission(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(1))
	actor := moderator(5)
	actor.Permissions = discordgo.PermissionKickMembers

	_, err := f.exec.Execute(context.Background(), Invocation{
		Kind:        KindBan,
		Guild:       Guild{ID: "g1"},
		Actor:       actor,
		TargetToken: targetID,
	})

	var denied *PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, DenyMissingPermission, denied.Reason)
	assert.Empty(t, f.platform.calls)
}

func TestExecutePlatformFailureReturnsNoRecord(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(1))
	f.platform.actionErr = errors.New("HTTP 403 Forbidden")

	rec, err := f.exec.Execute(context.Background(), Invocation{
		Kind:        KindExpel,
		Guild:       Guild{ID: "g1"},
		Actor:       moderator(5),
		TargetToken: targetID,
	})

	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrPlatformActionFailed))
	assert.NotContains(t, UserMessage(err), "403")
	assert.Equal(t, []string{"kick"}, f.platform.ops())
	assert.Equal(t, []string{"expel:failed"}, f.observer.outcomes)
}

func TestExecuteBulkDelete(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.purger.report = PurgeReport{Captured: 25, Deleted: 25}

	rec, err := f.exec.Execute(context.Background(), Invocation{
		Kind:    KindBulkDelete,
		Guild:   Guild{ID: "g1"},
		Actor:   moderator(1),
		Channel: Channel{ID: "c1", Name: "general"},
	})

	require.NoError(t, err)
	assert.Equal(t, DefaultBulkDeleteCount, f.purger.count)
	require.NotNil(t, rec.Purge)
	assert.Equal(t, 25, rec.Purge.Deleted)
	require.NotNil(t, rec.Transcript)
	assert.Equal(t, "transcript-general.html", rec.Transcript.Name)
	assert.Empty(t, f.platform.calls)
}

func TestExecuteBulkDeleteInvalidCount(t *testing.T) {
	t.Parallel()

	for _, count := range []int{-1, 101} {
		f := newExecutorFixture(t)
		_, err := f.exec.Execute(context.Background(), Invocation{
			Kind:    KindBulkDelete,
			Guild:   Guild{ID: "g1"},
			Actor:   moderator(1),
			Channel: Channel{ID: "c1"},
			Count:   count,
		})
		assert.True(t, errors.Is(err, ErrInvalidCount), "count=%d", count)
		assert.Zero(t, f.purger.calls)
	}
}

func TestExecuteBulkDeleteCaptureFailure(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t)
	f.purger.err = errors.New("history unavailable")

	rec, err := f.exec.Execute(context.Background(), Invocation{
		Kind:    KindBulkDelete,
		Guild:   Guild{ID: "g1"},
		Actor:   moderator(1),
		Channel: Channel{ID: "c1"},
		Count:   10,
	})

	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrPlatformActionFailed))
}

func TestUserMessageIsFixed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "You can't kick yourself.", UserMessage(&PermissionDeniedError{Kind: KindExpel, Reason: DenySelf}))
	assert.Equal(t, "That member could not be found.", UserMessage(&TargetNotFoundError{Token: "x"}))
	assert.Equal(t, "The amount must be between 1 and 100.", UserMessage(&InvalidCountError{Count: 0, Max: 100}))
	assert.Equal(t, "", UserMessage(nil))
}

func TestPrepareMakesNoPlatformCalls(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(1))
	req, err := f.exec.Prepare(context.Background(), Invocation{
		Kind:        KindBan,
		Guild:       Guild{ID: "g1", Name: "Guild"},
		Actor:       moderator(5),
		TargetToken: targetID,
		ReasonText:  strPtr("raid"),
	})
	require.NoError(t, err)
	assert.Empty(t, f.platform.calls)
	assert.Empty(t, f.observer.outcomes)
	assert.Equal(t, targetID, req.Target.ID())

	rec, err := f.exec.Commit(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"ban", "dm"}, f.platform.ops())
	assert.Equal(t, []string{"ban:committed"}, f.observer.outcomes)
}

func TestPrepareDenialIsObserved(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(9))
	_, err := f.exec.Prepare(context.Background(), Invocation{
		Kind:        KindExpel,
		Guild:       Guild{ID: "g1"},
		Actor:       moderator(5),
		TargetToken: targetID,
	})
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, []string{"expel:rejected"}, f.observer.outcomes)
}

func TestCommitRejectsUnpreparedRequest(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, member(1))
	rec, err := f.exec.Commit(context.Background(), ActionRequest{
		Kind:   KindBan,
		Guild:  Guild{ID: "g1"},
		Actor:  moderator(5),
		Target: LiveTarget(member(1)),
	})
	require.ErrorIs(t, err, ErrUnpreparedRequest)
	assert.Nil(t, rec)
	assert.Empty(t, f.platform.calls)
}
