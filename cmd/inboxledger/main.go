package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshsymonds/inboxledger/internal/runtime"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		runtime.DefaultLogger().Error("inboxledger failed", "error", err)
		cancel()
		os.Exit(1)
	}
}
