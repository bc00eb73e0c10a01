package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/discord/perf"
	"github.com/small-frappuccino/modcore/pkg/log"
)

// DefaultCommandTimeout bounds one handler run. Interaction tokens stay valid
// for 15 minutes.
const DefaultCommandTimeout = 2 * time.Minute

var (
	ErrInvalidSpec   = errors.New("invalid command spec")
	ErrDuplicateSpec = errors.New("duplicate command name")

	commandNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
)

// ValidateSpec rejects specs Discord would refuse or that could run unguarded.
func ValidateSpec(spec Spec) error {
	switch {
	case !commandNamePattern.MatchString(spec.Name):
		return fmt.Errorf("%w: name %q", ErrInvalidSpec, spec.Name)
	case spec.Description == "" || len([]rune(spec.Description)) > 100:
		return fmt.Errorf("%w: %s: description must be 1-100 characters", ErrInvalidSpec, spec.Name)
	case spec.Permission == 0:
		return fmt.Errorf("%w: %s: no required permission", ErrInvalidSpec, spec.Name)
	case spec.Handler == nil:
		return fmt.Errorf("%w: %s: no handler", ErrInvalidSpec, spec.Name)
	}
	return nil
}

// ValidateSpecs validates each spec and checks names are unique.
func ValidateSpecs(specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if err := ValidateSpec(spec); err != nil {
			return err
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSpec, spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	return nil
}

// CommandRegistry holds the fixed command set.
type CommandRegistry struct {
	specs map[string]Spec
}

// NewCommandRegistry validates and indexes specs.
func NewCommandRegistry(specs ...Spec) (*CommandRegistry, error) {
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	r := &CommandRegistry{specs: make(map[string]Spec, len(specs))}
	for _, spec := range specs {
		r.specs[spec.Name] = spec
	}
	return r, nil
}

// Get returns the spec registered under name.
func (r *CommandRegistry) Get(name string) (Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// All returns every spec sorted by name.
func (r *CommandRegistry) All() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ApplicationCommand is the registration payload for spec. Commands are
// guild only and hidden from members lacking the permission.
func ApplicationCommand(spec Spec) *discordgo.ApplicationCommand {
	perms := spec.Permission
	dm := false
	return &discordgo.ApplicationCommand{
		Name:                     spec.Name,
		Description:              spec.Description,
		Options:                  spec.Options,
		DefaultMemberPermissions: &perms,
		DMPermission:             &dm,
	}
}

// HasPermission reports whether member holds every bit in required.
// Administrator satisfies any requirement.
func HasPermission(member *discordgo.Member, required int64) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return member.Permissions&required == required
}

// CommandRouter routes slash command interactions to their handlers.
type CommandRouter struct {
	base      context.Context
	session   *discordgo.Session
	registry  *CommandRegistry
	responder *Responder
	logger    *slog.Logger
	timeout   time.Duration
	// startTimer begins the slow-handler measurement for one command.
	startTimer func(command string, attrs ...slog.Attr) func()
}

// NewCommandRouter creates a router. Handler contexts derive from base.
func NewCommandRouter(base context.Context, session *discordgo.Session, registry *CommandRegistry) *CommandRouter {
	if base == nil {
		base = context.Background()
	}
	return &CommandRouter{
		base:      base,
		session:   session,
		registry:  registry,
		responder: NewResponder(session),
		logger:    log.DiscordLogger().With("component", "command_router"),
		timeout:   DefaultCommandTimeout,

		startTimer: perf.StartCommand,
	}
}

// SetTimeout overrides DefaultCommandTimeout. Non-positive values are ignored.
func (cr *CommandRouter) SetTimeout(d time.Duration) {
	if d > 0 {
		cr.timeout = d
	}
}

// SetSlowTimer replaces the slow-handler measurement (perf.StartCommand by
// default). Nil is ignored.
func (cr *CommandRouter) SetSlowTimer(start func(command string, attrs ...slog.Attr) func()) {
	if start != nil {
		cr.startTimer = start
	}
}

// Registry returns the command registry
func (cr *CommandRouter) Registry() *CommandRegistry {
	return cr.registry
}

// HandleInteraction is registered as a discordgo handler.
func (cr *CommandRouter) HandleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	cr.handleSlashCommand(i)
}

func (cr *CommandRouter) handleSlashCommand(i *discordgo.InteractionCreate) {
	commandName := i.ApplicationCommandData().Name
	logger := cr.logger.With("command", commandName, "guildID", i.GuildID, "userID", extractUserID(i))

	spec, exists := cr.registry.Get(commandName)
	if !exists {
		logger.Error("Command not found")
		_ = cr.responder.Error(i, "Command not found")
		return
	}

	if i.GuildID == "" || i.Member == nil {
		logger.Warn("Command used outside of guild")
		_ = cr.responder.Error(i, "This command can only be used in a server")
		return
	}

	if !HasPermission(i.Member, spec.Permission) {
		logger.Warn("User without permission tried to use command")
		_ = cr.responder.Error(i, "You do not have permission to use this command")
		return
	}

	runCtx, cancel := context.WithTimeout(cr.base, cr.timeout)
	defer cancel()
	ctx := BuildContext(runCtx, cr.session, cr.responder, logger, i)

	var once sync.Once
	done := cr.startTimer(commandName, slog.String("guildID", i.GuildID))
	ctx.stopTimer = func() { once.Do(done) }
	defer ctx.StopTiming()

	logger.Info("Executing command")
	err := spec.Handler(ctx)
	if err == nil {
		return
	}
	logger.Error("Command execution failed", "err", err)
	cr.reportError(ctx, err)
}

// reportError shows err to the invoker. After a deferral the placeholder is
// replaced; an ephemeral error behind a public placeholder removes it and
// follows up privately.
func (cr *CommandRouter) reportError(ctx *Context, err error) {
	message := "An error occurred while executing the command"
	ephemeral := true
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		message, ephemeral = cmdErr.Message, cmdErr.Ephemeral
	}

	i := ctx.Interaction
	if !ctx.Deferred() {
		if ephemeral {
			_ = cr.responder.Error(i, message)
		} else {
			_ = cr.responder.Public(i, message)
		}
		return
	}

	if ephemeral && !ctx.deferredEphemeral {
		if derr := cr.responder.DeleteResponse(i); derr == nil {
			if ferr := cr.responder.FollowUp(i, ErrorMessage(message), true); ferr != nil {
				ctx.Logger.Warn("Failed to send error follow-up", "err", ferr)
			}
			return
		}
	}
	if rerr := cr.responder.EditResponse(i, ErrorMessage(message)); rerr != nil {
		ctx.Logger.Warn("Failed to edit deferred response", "err", rerr)
	}
}

// CommandManager keeps Discord's registered commands in line with the registry.
type CommandManager struct {
	session *discordgo.Session
	router  *CommandRouter
	logger  *slog.Logger
}

// NewCommandManager creates a new command manager
func NewCommandManager(session *discordgo.Session, router *CommandRouter) *CommandManager {
	return &CommandManager{
		session: session,
		router:  router,
		logger:  log.DiscordLogger().With("component", "command_manager"),
	}
}

// Router returns the command router
func (cm *CommandManager) Router() *CommandRouter {
	return cm.router
}

// SetupCommands installs the interaction handler and syncs global commands:
// missing ones are created, changed ones edited and orphans removed.
func (cm *CommandManager) SetupCommands(ctx context.Context) error {
	cm.session.AddHandler(cm.router.HandleInteraction)

	if cm.session.State == nil || cm.session.State.User == nil {
		return fmt.Errorf("session user not available; open the session first")
	}
	appID := cm.session.State.User.ID

	registered, err := cm.session.ApplicationCommands(appID, "", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to fetch registered commands: %w", err)
	}

	regByName := make(map[string]*discordgo.ApplicationCommand, len(registered))
	for _, rc := range registered {
		regByName[rc.Name] = rc
	}

	specs := cm.router.registry.All()
	codeByName := make(map[string]struct{}, len(specs))

	created, updated, unchanged := 0, 0, 0
	for _, spec := range specs {
		codeByName[spec.Name] = struct{}{}
		desired := ApplicationCommand(spec)

		if existing, ok := regByName[spec.Name]; ok {
			if CompareCommands(existing, desired) {
				cm.logger.Debug("Command unchanged, skipping", "command", spec.Name)
				unchanged++
				continue
			}
			if _, err := cm.session.ApplicationCommandEdit(appID, "", existing.ID, desired, discordgo.WithContext(ctx)); err != nil {
				return fmt.Errorf("error updating command '%s': %w", spec.Name, err)
			}
			cm.logger.Info("Command updated", "command", spec.Name)
			updated++
			continue
		}

		if _, err := cm.session.ApplicationCommandCreate(appID, "", desired, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("error creating command '%s': %w", spec.Name, err)
		}
		cm.logger.Info("Command created", "command", spec.Name)
		created++
	}

	deleted := 0
	for _, rc := range registered {
		if _, exists := codeByName[rc.Name]; exists {
			continue
		}
		if err := cm.session.ApplicationCommandDelete(appID, "", rc.ID, discordgo.WithContext(ctx)); err != nil {
			cm.logger.Warn("Error removing orphan command", "command", rc.Name, "err", err)
			continue
		}
		cm.logger.Info("Orphan command removed", "command", rc.Name)
		deleted++
	}

	cm.logger.Info("Command synchronization completed",
		"created", created,
		"updated", updated,
		"deleted", deleted,
		"unchanged", unchanged,
		"total", len(specs),
	)
	return nil
}
