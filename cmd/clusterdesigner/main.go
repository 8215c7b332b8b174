// ABOUTME: Entry point for the clusterdesigner CLI: loads .env, builds the command tree, and runs it.
// ABOUTME: SIGINT and SIGTERM cancel the command context; an interrupted run exits 130.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := loadDotEnvAuto(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return newRootCmd(os.Stderr).ExecuteContext(ctx)
}
