package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/git-pkgs/pubcheck/internal/cli"
	"github.com/git-pkgs/pubcheck/internal/resolver"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()

	switch {
	case err == nil:
		return
	case errors.Is(err, cli.ErrNotPublishable):
		// The summary already explains why.
	case errors.Is(err, resolver.ErrCancelled), errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "Cancelled, no package.json was changed.")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
