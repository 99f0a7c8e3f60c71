package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/isometry/go-freeipa/internal/cli"
)

// Overridden with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, version, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
