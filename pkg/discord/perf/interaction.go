// Package perf logs slow slash command handlers.
package perf

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/util"
)

const (
	EnvSlowCommandThresholdMs     = "MODCORE_SLOW_COMMAND_MS"
	defaultSlowCommandThresholdMs = int64(2000)
)

var (
	thresholdOnce sync.Once
	threshold     time.Duration
)

func slowThreshold() time.Duration {
	thresholdOnce.Do(func() {
		threshold = thresholdFrom(util.EnvInt64(EnvSlowCommandThresholdMs, defaultSlowCommandThresholdMs))
	})
	return threshold
}

func thresholdFrom(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// StartCommand times a command handler. The returned func logs a warning when
// the handler ran past the threshold. A threshold of 0 disables it.
func StartCommand(command string, attrs ...slog.Attr) func() {
	return startWith(slowThreshold(), log.DiscordLogger(), time.Now, command, attrs...)
}

func startWith(limit time.Duration, logger *slog.Logger, now func() time.Time, command string, attrs ...slog.Attr) func() {
	if limit <= 0 || logger == nil {
		return func() {}
	}

	start := now()
	return func() {
		took := now().Sub(start)
		if took < limit {
			return
		}
		name := strings.TrimSpace(command)
		if name == "" {
			name = "unknown"
		}
		args := make([]any, 0, len(attrs)+3)
		args = append(args,
			slog.String("command", name),
			slog.Duration("duration", took),
			slog.Int64("duration_ms", took.Milliseconds()),
		)
		for _, a := range attrs {
			args = append(args, a)
		}
		logger.Warn("Slow command handler", args...)
	}
}
