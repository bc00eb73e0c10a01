// Package app wires the moderation bot together and runs it until shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/small-frappuccino/modcore/pkg/audit"
	"github.com/small-frappuccino/modcore/pkg/config"
	"github.com/small-frappuccino/modcore/pkg/control"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/core"
	modcmds "github.com/small-frappuccino/modcore/pkg/discord/commands/moderation"
	"github.com/small-frappuccino/modcore/pkg/discord/platform"
	"github.com/small-frappuccino/modcore/pkg/discord/session"
	"github.com/small-frappuccino/modcore/pkg/errutil"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/metrics"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/storage"
	"github.com/small-frappuccino/modcore/pkg/theme"
	"github.com/small-frappuccino/modcore/pkg/transcript"
	"github.com/small-frappuccino/modcore/pkg/util"
)

const shutdownTimeout = 30 * time.Second

// components is everything built on top of an open session and store.
type components struct {
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	bindings  *storage.BindingCache
	audit     *audit.Router
	archiver  *transcript.Archiver
	executor  *moderation.Executor
	commands  *core.CommandRegistry
	cmdRouter *core.CommandRouter
}

func buildComponents(ctx context.Context, s *discordgo.Session, store *storage.Store, cfg config.Config) (*components, error) {
	c := &components{registry: metrics.NewRegistry()}
	c.metrics = metrics.New(c.registry)

	adapter := platform.NewAdapter(s)
	c.bindings = storage.NewBindingCache(store, cfg.BindingCacheSize, cfg.BindingCacheTTL)
	c.audit = audit.NewRouter(c.bindings, platform.NewSink(s),
		audit.WithLogger(log.DiscordLogger().With("component", "audit")),
		audit.WithObserver(c.metrics),
	)

	archiver, err := transcript.NewArchiver(transcript.Config{
		Source:        adapter,
		Deleter:       adapter,
		Publisher:     c.audit,
		AgedPolicy:    cfg.AgedPolicy,
		DeliveryDelay: cfg.TranscriptDelay,
		Observer:      c.metrics,
		Logger:        log.DiscordLogger().With("component", "transcript"),
	})
	if err != nil {
		return nil, fmt.Errorf("create archiver: %w", err)
	}
	c.archiver = archiver

	executor, err := moderation.NewExecutor(moderation.Deps{
		Platform:      adapter,
		Directory:     adapter,
		Purger:        archiver,
		Observer:      c.metrics,
		Logger:        log.DiscordLogger().With("component", "moderation"),
		MaxBulkDelete: cfg.MaxBulkDelete,
	})
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	c.executor = executor

	registry, err := core.NewCommandRegistry(modcmds.Commands(modcmds.Deps{
		Executor:      executor,
		Interactions:  adapter,
		Audit:         c.audit,
		Transcripts:   archiver,
		MaxBulkDelete: cfg.MaxBulkDelete,
	})...)
	if err != nil {
		return nil, fmt.Errorf("build command registry: %w", err)
	}
	c.commands = registry
	c.cmdRouter = core.NewCommandRouter(ctx, s, registry)
	c.cmdRouter.SetTimeout(cfg.CommandTimeout)
	return c, nil
}

// Run bootstraps the bot and blocks until ctx is done or an interrupt arrives.
func Run(ctx context.Context, cfg config.Config) error {
	started := time.Now()

	if err := log.SetupLogger(cfg.LogOptions()); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer func() { _ = log.GlobalLogger.Close() }()
	logger := log.ApplicationLogger()

	if err := cfg.ValidateForRun(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := theme.SetCurrent(cfg.Theme); err != nil {
		logger.Warn("Failed to apply theme", "theme", cfg.Theme, "err", err)
	}

	logger.Info(formatStartupMessage(cfg.AppName, Version))

	store := storage.NewStore(cfg.DBPath)
	if err := errutil.HandleConfigError("open", cfg.DBPath, store.Init); err != nil {
		return fmt.Errorf("initialize SQLite store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.DatabaseLogger().Warn("Failed to close store", "err", err)
		}
	}()
	if last, ok, err := store.GetHeartbeat(); err == nil && ok {
		log.DatabaseLogger().Info("Previous run heartbeat", "at", last.Format(time.RFC3339))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	discordSession, err := session.NewDiscordSession(cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	defer session.Close(discordSession)
	if discordSession.State == nil || discordSession.State.User == nil {
		return fmt.Errorf("discord session state not properly initialized")
	}
	log.DiscordLogger().Info("Authenticated", "user", discordSession.State.User.Username, "userID", discordSession.State.User.ID)

	c, err := buildComponents(runCtx, discordSession, store, cfg)
	if err != nil {
		return err
	}

	if err := core.NewCommandManager(discordSession, c.cmdRouter).SetupCommands(runCtx); err != nil {
		return fmt.Errorf("configure slash commands: %w", err)
	}

	controlServer := control.NewServer(cfg.ControlAddr, c.registry, store, c.bindings)
	if err := controlServer.Start(); err != nil {
		return err
	}

	stopHeartbeat := startHeartbeat(runCtx, store, cfg.HeartbeatInterval)

	logger.Info("modcore initialized", "took", time.Since(started).Round(time.Millisecond).String())
	logger.Info("modcore running. Press Ctrl+C to stop...")

	util.WaitForInterrupt(runCtx)
	logger.Info("Stopping modcore...")

	// In-flight handlers derive from runCtx; cancelling it drops pending
	// transcript deliveries. Committed actions are unaffected.
	cancel()
	stopHeartbeat()

	shutdownCtx, shutdownCancel := context.WithTimeoutCause(context.Background(), shutdownTimeout, fmt.Errorf("application shutdown"))
	defer shutdownCancel()
	if err := controlServer.Stop(shutdownCtx); err != nil {
		log.ErrorLoggerRaw().Error("Control server failed to stop cleanly", "err", err)
	}
	return nil
}

// startHeartbeat records a heartbeat immediately and then every interval.
// The returned func stops the loop and waits for it to exit.
func startHeartbeat(ctx context.Context, store *storage.Store, interval time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	beat := func() {
		if err := store.SetHeartbeat(time.Now().UTC()); err != nil {
			log.DatabaseLogger().Warn("Failed to record heartbeat", "err", err)
		}
	}

	go func() {
		defer close(done)
		beat()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
