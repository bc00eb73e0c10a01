package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   []byte
}

type requestRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *requestRecorder) add(req recordedRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *requestRecorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

// callbacks returns the decoded interaction responses.
func (r *requestRecorder) callbacks(t *testing.T) []discordgo.InteractionResponse {
	t.Helper()
	var out []discordgo.InteractionResponse
	for _, req := range r.all() {
		if !strings.HasSuffix(req.Path, "/callback") {
			continue
		}
		var resp discordgo.InteractionResponse
		require.NoError(t, json.Unmarshal(req.Body, &resp))
		out = append(out, resp)
	}
	return out
}

func newTestSession(t *testing.T, routes map[string]string) (*discordgo.Session, *requestRecorder) {
	t.Helper()
	rec := &requestRecorder{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.add(recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		w.Header().Set("Content-Type", "application/json")
		if payload, ok := routes[r.Method+" "+r.URL.Path]; ok {
			_, _ = io.WriteString(w, payload)
			return
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(server.Close)

	oldAPI := discordgo.EndpointAPI
	oldWebhooks := discordgo.EndpointWebhooks
	oldApplications := discordgo.EndpointApplications
	discordgo.EndpointAPI = server.URL + "/"
	discordgo.EndpointWebhooks = server.URL + "/webhooks/"
	discordgo.EndpointApplications = server.URL + "/applications"
	t.Cleanup(func() {
		discordgo.EndpointAPI = oldAPI
		discordgo.EndpointWebhooks = oldWebhooks
		discordgo.EndpointApplications = oldApplications
	})

	session, err := discordgo.New("Bot test-token")
	require.NoError(t, err)
	session.State.User = &discordgo.User{ID: "app"}
	return session, rec
}

func buildInteraction(command, guildID string, perms int64, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	var member *discordgo.Member
	if guildID != "" {
		member = &discordgo.Member{User: &discordgo.User{ID: "user"}, Permissions: perms}
	}
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        "interaction-" + command,
			AppID:     "app",
			Token:     "token",
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   guildID,
			ChannelID: "channel",
			Member:    member,
			User:      &discordgo.User{ID: "user"},
			Data: discordgo.ApplicationCommandInteractionData{
				ID:      "cmd-" + command,
				Name:    command,
				Options: options,
			},
		},
	}
}

func testSpec(name string, perm int64, handler func(*Context) error) Spec {
	if handler == nil {
		handler = func(*Context) error { return nil }
	}
	return Spec{Name: name, Description: name + " command", Permission: perm, Handler: handler}
}

func newTestRouter(t *testing.T, session *discordgo.Session, specs ...Spec) *CommandRouter {
	t.Helper()
	registry, err := NewCommandRegistry(specs...)
	require.NoError(t, err)
	return NewCommandRouter(context.Background(), session, registry)
}

func TestValidateSpecs(t *testing.T) {
	ok := testSpec("kick", discordgo.PermissionKickMembers, nil)

	tests := []struct {
		name  string
		specs []Spec
		want  error
	}{
		{name: "valid", specs: []Spec{ok, testSpec("ban", discordgo.PermissionBanMembers, nil)}},
		{name: "no permission", specs: []Spec{testSpec("kick", 0, nil)}, want: ErrInvalidSpec},
		{name: "bad name", specs: []Spec{testSpec("Kick Now", discordgo.PermissionKickMembers, nil)}, want: ErrInvalidSpec},
		{name: "no handler", specs: []Spec{{Name: "kick", Description: "x", Permission: 1}}, want: ErrInvalidSpec},
		{name: "duplicate", specs: []Spec{ok, ok}, want: ErrDuplicateSpec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpecs(tt.specs)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCommandRegistryAllSorted(t *testing.T) {
	registry, err := NewCommandRegistry(
		testSpec("unban", discordgo.PermissionBanMembers, nil),
		testSpec("ban", discordgo.PermissionBanMembers, nil),
		testSpec("kick", discordgo.PermissionKickMembers, nil),
	)
	require.NoError(t, err)

	var names []string
	for _, s := range registry.All() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"ban", "kick", "unban"}, names)

	_, found := registry.Get("kick")
	assert.True(t, found)
	_, found = registry.Get("prune")
	assert.False(t, found)
}

func TestApplicationCommandPermissions(t *testing.T) {
	cmd := ApplicationCommand(testSpec("prune", discordgo.PermissionManageMessages, nil))
	require.NotNil(t, cmd.DefaultMemberPermissions)
	assert.Equal(t, int64(discordgo.PermissionManageMessages), *cmd.DefaultMemberPermissions)
	require.NotNil(t, cmd.DMPermission)
	assert.False(t, *cmd.DMPermission)
}

func TestHasPermission(t *testing.T) {
	assert.False(t, HasPermission(nil, discordgo.PermissionKickMembers))
	assert.True(t, HasPermission(&discordgo.Member{Permissions: discordgo.PermissionKickMembers}, discordgo.PermissionKickMembers))
	assert.False(t, HasPermission(&discordgo.Member{Permissions: discordgo.PermissionKickMembers}, discordgo.PermissionBanMembers))
	assert.True(t, HasPermission(&discordgo.Member{Permissions: discordgo.PermissionAdministrator}, discordgo.PermissionBanMembers))
}

func TestHandleSlashCommandUnknownCommand(t *testing.T) {
	session, rec := newTestSession(t, nil)
	router := newTestRouter(t, session)

	router.HandleInteraction(session, buildInteraction("missing", "guild", 0))

	responses := rec.callbacks(t)
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Data.Content, "Command not found")
	assert.NotZero(t, responses[0].Data.Flags&discordgo.MessageFlagsEphemeral)
}

func TestHandleSlashCommandRequiresGuild(t *testing.T) {
	session, rec := newTestSession(t, nil)
	router := newTestRouter(t, session, testSpec("kick", discordgo.PermissionKickMembers, func(*Context) error {
		t.Fatalf("handler should not execute when missing guild")
		return nil
	}))

	router.HandleInteraction(session, buildInteraction("kick", "", 0))

	responses := rec.callbacks(t)
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Data.Content, "only be used in a server")
}

func TestHandleSlashCommandPermissionDenied(t *testing.T) {
	session, rec := newTestSession(t, nil)
	router := newTestRouter(t, session, testSpec("ban", discordgo.PermissionBanMembers, func(*Context) error {
		t.Fatalf("handler should not execute when permission denied")
		return nil
	}))

	router.HandleInteraction(session, buildInteraction("ban", "guild", discordgo.PermissionKickMembers))

	responses := rec.callbacks(t)
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Data.Content, "permission")
	assert.NotZero(t, responses[0].Data.Flags&discordgo.MessageFlagsEphemeral)
}

func TestHandleSlashCommandContext(t *testing.T) {
	session, _ := newTestSession(t, nil)

	var got *Context
	router := newTestRouter(t, session, testSpec("prune", discordgo.PermissionManageMessages, func(ctx *Context) error {
		got = ctx
		_, hasDeadline := ctx.Ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	}))
	router.SetTimeout(time.Minute)

	router.HandleInteraction(session, buildInteraction("prune", "guild", discordgo.PermissionManageMessages,
		&discordgo.ApplicationCommandInteractionDataOption{Name: "count", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(40)},
		&discordgo.ApplicationCommandInteractionDataOption{Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: "  spam  "},
	))

	require.NotNil(t, got)
	assert.Equal(t, "guild", got.GuildID)
	assert.Equal(t, "channel", got.ChannelID)
	assert.Equal(t, "user", got.UserID)
	opts := got.Options()
	assert.Equal(t, int64(40), opts.Int("count"))
	assert.Equal(t, "spam", opts.String("reason"))
	require.NotNil(t, opts.StringPtr("reason"))
	assert.Equal(t, "  spam  ", *opts.StringPtr("reason"))
	assert.Nil(t, opts.StringPtr("target"))
	assert.False(t, opts.HasOption("target"))
	assert.Error(t, got.Ctx.Err(), "context is cancelled once the handler returns")
}

func TestHandleSlashCommandCommandErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectFlag bool
		content    string
	}{
		{name: "ephemeral", err: NewCommandError("boom", true), expectFlag: true, content: "boom"},
		{name: "public", err: NewCommandError("boom", false), expectFlag: false, content: "boom"},
		{name: "wrapped", err: errors.Join(errors.New("x"), NewCommandError("boom", true)), expectFlag: true, content: "boom"},
		{name: "opaque", err: errors.New("internal detail"), expectFlag: true, content: "An error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, rec := newTestSession(t, nil)
			router := newTestRouter(t, session, testSpec("cmd", discordgo.PermissionKickMembers, func(*Context) error {
				return tt.err
			}))

			router.HandleInteraction(session, buildInteraction("cmd", "guild", discordgo.PermissionKickMembers))

			responses := rec.callbacks(t)
			require.Len(t, responses, 1)
			gotFlag := responses[0].Data.Flags&discordgo.MessageFlagsEphemeral != 0
			assert.Equal(t, tt.expectFlag, gotFlag)
			assert.Contains(t, responses[0].Data.Content, tt.content)
			assert.NotContains(t, responses[0].Data.Content, "internal detail")
		})
	}
}

func findRequest(rec *requestRecorder, method, suffix string) *recordedRequest {
	for _, req := range rec.all() {
		if req.Method == method && strings.HasSuffix(req.Path, suffix) {
			r := req
			return &r
		}
	}
	return nil
}

func TestHandleSlashCommandDeferredPublicErrorFollowsUpPrivately(t *testing.T) {
	session, rec := newTestSession(t, nil)
	router := newTestRouter(t, session, testSpec("kick", discordgo.PermissionKickMembers, func(ctx *Context) error {
		if err := ctx.Defer(false); err != nil {
			return err
		}
		return NewCommandError("Member not found", true)
	}))

	router.HandleInteraction(session, buildInteraction("kick", "guild", discordgo.PermissionKickMembers))

	responses := rec.callbacks(t)
	require.Len(t, responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, responses[0].Type)

	require.NotNil(t, findRequest(rec, http.MethodDelete, "/webhooks/app/token/messages/@original"),
		"public placeholder should be removed")
	followUp := findRequest(rec, http.MethodPost, "/webhooks/app/token")
	require.NotNil(t, followUp)

	var params discordgo.WebhookParams
	require.NoError(t, json.Unmarshal(followUp.Body, &params))
	assert.Contains(t, params.Content, "Member not found")
	assert.NotZero(t, params.Flags&discordgo.MessageFlagsEphemeral)
}

func TestHandleSlashCommandDeferredEphemeralErrorEditsResponse(t *testing.T) {
	session, rec := newTestSession(t, nil)
	router := newTestRouter(t, session, testSpec("prune", discordgo.PermissionManageMessages, func(ctx *Context) error {
		if err := ctx.Defer(true); err != nil {
			return err
		}
		return NewCommandError("The amount must be between 1 and 500.", true)
	}))

	router.HandleInteraction(session, buildInteraction("prune", "guild", discordgo.PermissionManageMessages))

	responses := rec.callbacks(t)
	require.Len(t, responses, 1)
	assert.NotZero(t, responses[0].Data.Flags&discordgo.MessageFlagsEphemeral)

	edit := findRequest(rec, http.MethodPatch, "/messages/@original")
	require.NotNil(t, edit, "deferred response should be edited")
	assert.Contains(t, string(edit.Body), "between 1 and 500")
	assert.Nil(t, findRequest(rec, http.MethodDelete, "/messages/@original"))
}

func TestSetupCommandsSync(t *testing.T) {
	kickPerm := int64(discordgo.PermissionKickMembers)
	registered := []*discordgo.ApplicationCommand{
		{ID: "1", Name: "kick", Description: "kick command", DefaultMemberPermissions: &kickPerm},
		{ID: "2", Name: "ban", Description: "outdated"},
		{ID: "3", Name: "legacy", Description: "orphan"},
	}
	payload, err := json.Marshal(registered)
	require.NoError(t, err)

	session, rec := newTestSession(t, map[string]string{
		"GET /applications/app/commands": string(payload),
	})
	router := newTestRouter(t, session,
		testSpec("kick", discordgo.PermissionKickMembers, nil),
		testSpec("ban", discordgo.PermissionBanMembers, nil),
		testSpec("unban", discordgo.PermissionBanMembers, nil),
	)

	require.NoError(t, NewCommandManager(session, router).SetupCommands(context.Background()))

	var calls []string
	for _, req := range rec.all() {
		if req.Method == http.MethodGet {
			continue
		}
		calls = append(calls, req.Method+" "+req.Path)
	}
	assert.ElementsMatch(t, []string{
		"PATCH /applications/app/commands/2",
		"POST /applications/app/commands",
		"DELETE /applications/app/commands/3",
	}, calls)
}

func TestCompareCommandsConsidersPermissions(t *testing.T) {
	a := ApplicationCommand(testSpec("ban", discordgo.PermissionBanMembers, nil))
	b := ApplicationCommand(testSpec("ban", discordgo.PermissionBanMembers, nil))
	assert.True(t, CompareCommands(a, b))

	other := int64(discordgo.PermissionKickMembers)
	b.DefaultMemberPermissions = &other
	assert.False(t, CompareCommands(a, b))
}

func TestHandlerCanStopTimingEarly(t *testing.T) {
	session, _ := newTestSession(t, nil)

	var events []string
	router := newTestRouter(t, session, testSpec("prune", discordgo.PermissionManageMessages, func(ctx *Context) error {
		events = append(events, "work")
		ctx.StopTiming()
		ctx.StopTiming()
		events = append(events, "wait")
		return nil
	}))
	router.startTimer = func(command string, _ ...slog.Attr) func() {
		events = append(events, "start "+command)
		return func() { events = append(events, "stop") }
	}

	router.HandleInteraction(session, buildInteraction("prune", "guild", discordgo.PermissionManageMessages))

	assert.Equal(t, []string{"start prune", "work", "stop", "wait"}, events)
}

func TestTimingStopsWhenHandlerReturns(t *testing.T) {
	session, _ := newTestSession(t, nil)

	stops := 0
	router := newTestRouter(t, session, testSpec("kick", discordgo.PermissionKickMembers, nil))
	router.startTimer = func(string, ...slog.Attr) func() {
		return func() { stops++ }
	}

	router.HandleInteraction(session, buildInteraction("kick", "guild", discordgo.PermissionKickMembers))

	assert.Equal(t, 1, stops)
}
