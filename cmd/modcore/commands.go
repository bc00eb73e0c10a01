package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/small-frappuccino/modcore/pkg/app"
	"github.com/small-frappuccino/modcore/pkg/config"
	"github.com/small-frappuccino/modcore/pkg/control"
	"github.com/small-frappuccino/modcore/pkg/storage"
	"github.com/spf13/cobra"
)

var snowflake = regexp.MustCompile(`^[0-9]{5,20}$`)

var errInvalidID = errors.New("invalid snowflake id")

// loadConfig is swapped in tests.
var loadConfig = config.Load

func execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "modcore",
		Short:         "Discord moderation bot",
		Long:          "modcore serves the /kick, /ban, /unban and /prune slash commands and records them to per-guild audit channels.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newBindCmd(),
		newUnbindCmd(),
		newBindingsCmd(),
		newVersionCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve moderation commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, loadConfig())
		},
	}
}

func newBindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bind <guild-id> <channel-id>",
		Short: "Set the audit channel for a guild",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, channelID := args[0], args[1]
			if err := checkIDs(guildID, channelID); err != nil {
				return err
			}
			cfg := loadConfig()
			return withStore(cfg, func(store *storage.Store) error {
				if err := store.SetAuditChannel(cmd.Context(), guildID, channelID, time.Now().UTC()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Guild %s now audits to channel %s\n", guildID, channelID)
				notifyRunning(cmd, cfg, guildID)
				return nil
			})
		},
	}
}

func newUnbindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unbind <guild-id>",
		Short: "Remove the audit channel for a guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID := args[0]
			if err := checkIDs(guildID); err != nil {
				return err
			}
			cfg := loadConfig()
			return withStore(cfg, func(store *storage.Store) error {
				removed, err := store.DeleteAuditChannel(cmd.Context(), guildID)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Guild %s had no audit channel\n", guildID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Guild %s no longer has an audit channel\n", guildID)
				notifyRunning(cmd, cfg, guildID)
				return nil
			})
		},
	}
}

func newBindingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bindings",
		Short: "List audit channel bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(loadConfig(), func(store *storage.Store) error {
				records, err := store.ListBindings(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No audit bindings")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "GUILD\tCHANNEL\tUPDATED")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.GuildID, r.ChannelID, humanize.Time(r.UpdatedAt))
				}
				return w.Flush()
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the modcore version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "modcore version %s\n", app.Version)
			return err
		},
	}
}

func checkIDs(ids ...string) error {
	for _, id := range ids {
		if !snowflake.MatchString(id) {
			return fmt.Errorf("%w: %q", errInvalidID, id)
		}
	}
	return nil
}

func withStore(cfg config.Config, fn func(*storage.Store) error) error {
	if cfg.DBPath == "" {
		return errors.New("database path is empty")
	}
	store := storage.NewStore(cfg.DBPath)
	if err := store.Init(); err != nil {
		return fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

// notifyRunning asks a running bot to drop its cached binding. The store is
// already updated, so failures only warn; the cache expires on its own.
func notifyRunning(cmd *cobra.Command, cfg config.Config, guildID string) {
	if cfg.ControlAddr == "" {
		return
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if err := control.NotifyInvalidate(ctx, cfg.ControlAddr, guildID); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: running bot not notified: %v\n", err)
	}
}
