package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"tether/cmd/tether/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
