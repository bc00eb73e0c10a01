// Package config builds the bot configuration from MODCORE_* environment
// variables, optionally loaded from $HOME/.local/bin/.env.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/storage"
	"github.com/small-frappuccino/modcore/pkg/theme"
	"github.com/small-frappuccino/modcore/pkg/transcript"
	"github.com/small-frappuccino/modcore/pkg/util"
)

// Environment variable names.
const (
	EnvToken             = "MODCORE_TOKEN"
	EnvAppName           = "MODCORE_APP_NAME"
	EnvDBPath            = "MODCORE_DB_PATH"
	EnvLogDir            = "MODCORE_LOG_DIR"
	EnvLogLevel          = "MODCORE_LOG_LEVEL"
	EnvLogNoConsole      = "MODCORE_LOG_NO_CONSOLE"
	EnvControlAddr       = "MODCORE_CONTROL_ADDR"
	EnvTranscriptDelay   = "MODCORE_TRANSCRIPT_DELAY"
	EnvMaxBulkDelete     = "MODCORE_MAX_BULK_DELETE"
	EnvAgedPolicy        = "MODCORE_AGED_POLICY"
	EnvBindingCacheTTL   = "MODCORE_BINDING_CACHE_TTL"
	EnvBindingCacheSize  = "MODCORE_BINDING_CACHE_SIZE"
	EnvTheme             = "MODCORE_THEME"
	EnvCommandTimeout    = "MODCORE_COMMAND_TIMEOUT"
	EnvHeartbeatInterval = "MODCORE_HEARTBEAT_INTERVAL"
)

// Defaults not owned by another package.
const (
	DefaultCommandTimeout    = 2 * time.Minute
	DefaultHeartbeatInterval = time.Minute
	// MaxBulkDeleteLimit caps MODCORE_MAX_BULK_DELETE.
	MaxBulkDeleteLimit = 10000
)

var ErrMissingToken = errors.New("discord bot token not configured")

// Config is the resolved runtime configuration.
type Config struct {
	Token             string
	AppName           string
	DBPath            string
	LogDir            string
	LogLevel          string
	LogConsole        bool
	ControlAddr       string
	TranscriptDelay   time.Duration
	MaxBulkDelete     int
	AgedPolicy        transcript.AgedPolicy
	BindingCacheTTL   time.Duration
	BindingCacheSize  int
	Theme             string
	CommandTimeout    time.Duration
	HeartbeatInterval time.Duration

	agedPolicyRaw string
}

// Load reads the environment. A missing token is not an error here; binding
// management runs without one. Call Validate or ValidateForRun afterwards.
func Load() Config {
	token, _ := util.LoadEnvWithLocalBinFallback(EnvToken)
	appName := util.EnvString(EnvAppName, util.DefaultAppName)

	cfg := Config{
		Token:             strings.TrimSpace(token),
		AppName:           appName,
		DBPath:            util.EnvString(EnvDBPath, util.DatabasePath(appName)),
		LogDir:            util.EnvString(EnvLogDir, util.LogDir(appName)),
		LogLevel:          util.EnvString(EnvLogLevel, util.EnvString("LOG_LEVEL", "info")),
		LogConsole:        !util.EnvBool(EnvLogNoConsole),
		ControlAddr:       util.EnvString(EnvControlAddr, ""),
		TranscriptDelay:   util.EnvDuration(EnvTranscriptDelay, transcript.DefaultDeliveryDelay),
		MaxBulkDelete:     int(util.EnvInt64(EnvMaxBulkDelete, moderation.DefaultMaxBulkDelete)),
		BindingCacheTTL:   util.EnvDuration(EnvBindingCacheTTL, storage.DefaultBindingCacheTTL),
		BindingCacheSize:  int(util.EnvInt64(EnvBindingCacheSize, storage.DefaultBindingCacheSize)),
		Theme:             util.EnvString(EnvTheme, ""),
		CommandTimeout:    util.EnvDuration(EnvCommandTimeout, DefaultCommandTimeout),
		HeartbeatInterval: util.EnvDuration(EnvHeartbeatInterval, DefaultHeartbeatInterval),
		agedPolicyRaw:     util.EnvString(EnvAgedPolicy, ""),
	}
	if p, err := transcript.ParseAgedPolicy(cfg.agedPolicyRaw); err == nil {
		cfg.AgedPolicy = p
	}
	return cfg
}

// Validate checks every setting except the token.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", EnvDBPath))
	}
	if _, err := transcript.ParseAgedPolicy(c.agedPolicyRaw); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", EnvAgedPolicy, err))
	}
	if c.MaxBulkDelete < 1 || c.MaxBulkDelete > MaxBulkDeleteLimit {
		errs = append(errs, fmt.Errorf("%s must be between 1 and %d, got %d", EnvMaxBulkDelete, MaxBulkDeleteLimit, c.MaxBulkDelete))
	}
	if c.TranscriptDelay < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", EnvTranscriptDelay))
	}
	if c.BindingCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvBindingCacheTTL))
	}
	if c.BindingCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvBindingCacheSize))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvCommandTimeout))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvHeartbeatInterval))
	}
	if c.Theme != "" && !knownTheme(c.Theme) {
		errs = append(errs, fmt.Errorf("%s: unknown theme %q (have %s)", EnvTheme, c.Theme, strings.Join(theme.Names(), ", ")))
	}
	return errors.Join(errs...)
}

// ValidateForRun additionally requires the bot token.
func (c Config) ValidateForRun() error {
	if c.Token == "" {
		return fmt.Errorf("%w: set %s", ErrMissingToken, EnvToken)
	}
	return c.Validate()
}

// LogOptions maps the logging settings onto pkg/log.
func (c Config) LogOptions() log.Options {
	return log.Options{
		Dir:     c.LogDir,
		Level:   c.LogLevel,
		Console: c.LogConsole,
	}
}

func knownTheme(name string) bool {
	return slices.Contains(theme.Names(), name)
}
