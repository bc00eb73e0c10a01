package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WaitForInterrupt blocks until SIGINT or SIGTERM is received or parent is done.
func WaitForInterrupt(parent context.Context) {
	waitForInterruptContext(parent, nil)
}

// WaitForInterruptWithCallback runs callback after the signal arrives.
func WaitForInterruptWithCallback(parent context.Context, callback func()) {
	waitForInterruptContext(parent, callback)
}

func waitForInterruptContext(parent context.Context, callback func()) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	if callback != nil {
		callback()
	}
}
