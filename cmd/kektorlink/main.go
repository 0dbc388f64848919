package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sanonone/kektorlink/internal/cli"
)

func main() {
	// Ctrl-C cancels the context; training stops after the current batch.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}
