package app

import (
	"fmt"
	"strings"
)

// Version is overridden at build time with -ldflags "-X .../pkg/app.Version=v1.2.3".
var Version = "dev"

func formatStartupMessage(appName, version string) string {
	appName = strings.TrimSpace(appName)
	version = strings.TrimSpace(version)
	if version == "" || version == "dev" {
		return fmt.Sprintf("🚀 Starting %s (development build)...", appName)
	}
	return fmt.Sprintf("🚀 Starting %s %s...", appName, version)
}
