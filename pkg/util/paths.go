package util

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultAppName is used for on-disk paths when no name is configured.
const DefaultAppName = "modcore"

// ConfigDir returns <user config dir>/<app>, falling back to ./<app>/config.
func ConfigDir(appName string) string {
	if base, err := os.UserConfigDir(); err == nil && base != "" {
		return filepath.Join(base, sanitizeAppName(appName))
	}
	return filepath.Join(".", sanitizeAppName(appName), "config")
}

// CacheDir returns <user cache dir>/<app>, falling back to ./<app>/cache.
func CacheDir(appName string) string {
	if base, err := os.UserCacheDir(); err == nil && base != "" {
		return filepath.Join(base, sanitizeAppName(appName))
	}
	return filepath.Join(".", sanitizeAppName(appName), "cache")
}

// LogDir returns <cache dir>/logs.
func LogDir(appName string) string {
	return filepath.Join(CacheDir(appName), "logs")
}

// DatabasePath returns the default SQLite path for audit bindings.
func DatabasePath(appName string) string {
	return filepath.Join(ConfigDir(appName), "data", "modcore.db")
}

func sanitizeAppName(name string) string {
	n := strings.TrimSpace(name)
	n = strings.ReplaceAll(n, "/", "-")
	n = strings.ReplaceAll(n, "\\", "-")
	n = strings.ReplaceAll(n, "\x00", "")
	if n == "" {
		return DefaultAppName
	}
	return n
}
