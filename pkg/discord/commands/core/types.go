package core

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Spec declares one slash command. The set of specs is fixed at startup.
type Spec struct {
	Name        string
	Description string
	Options     []*discordgo.ApplicationCommandOption
	// Permission is the Discord permission bit set required to run the command.
	// It is also registered as the command's default member permissions.
	Permission int64
	Handler    func(*Context) error
}

// Context carries everything a handler needs for one interaction.
type Context struct {
	// Ctx is cancelled once the interaction's time budget is spent.
	Ctx         context.Context
	Session     *discordgo.Session
	Interaction *discordgo.InteractionCreate
	Responder   *Responder
	Logger      *slog.Logger
	GuildID     string
	ChannelID   string
	UserID      string
	Member      *discordgo.Member

	deferred          bool
	deferredEphemeral bool
	stopTimer         func()
}

// Options returns an extractor over the interaction's top-level options.
func (c *Context) Options() *OptionExtractor {
	return NewOptionExtractor(c.Interaction.ApplicationCommandData().Options)
}

// Defer acknowledges the interaction. Later output must go through edits or
// follow-ups.
func (c *Context) Defer(ephemeral bool) error {
	if err := c.Responder.DeferResponse(c.Interaction, ephemeral); err != nil {
		return err
	}
	c.deferred = true
	c.deferredEphemeral = ephemeral
	return nil
}

// StopTiming ends the slow-handler measurement. Handlers call it before an
// intentional wait; later calls are no-ops.
func (c *Context) StopTiming() {
	if c.stopTimer != nil {
		c.stopTimer()
	}
}

// Deferred reports whether Defer succeeded.
func (c *Context) Deferred() bool { return c.deferred }

// CommandError is an error whose message is safe to show to the invoker.
type CommandError struct {
	Message   string
	Ephemeral bool
}

func (e *CommandError) Error() string {
	return e.Message
}

// NewCommandError creates a new command error.
func NewCommandError(message string, ephemeral bool) *CommandError {
	return &CommandError{
		Message:   message,
		Ephemeral: ephemeral,
	}
}
