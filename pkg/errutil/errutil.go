// Package errutil runs an operation and logs its failure with a stable
// operation name, so call sites only deal with the returned error.
package errutil

import (
	"errors"
	"fmt"

	"github.com/small-frappuccino/modcore/pkg/log"
)

var errNilFunc = errors.New("nil function provided")

// HandleDiscordError executes fn and logs a failure as a Discord error.
// The error is returned unmodified.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	log.ErrorLoggerRaw().Error("Discord operation failed", "operation", operation, "err", err)
	return err
}

// HandleConfigError executes fn and logs a failure as a configuration error.
// The returned error names the operation and path.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	log.ErrorLoggerRaw().Error("Config operation failed", "operation", operation, "path", path, "err", err)
	return fmt.Errorf("config %s %s: %w", operation, path, err)
}
