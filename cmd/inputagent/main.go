// Package main provides the inputagent process entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Javran/android-input-agent/internal/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires process signal handling to the application runner. A supervisor
// stopping the agent gets exit 0; a backend failure exits with the restart code.
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	return app.Execute(ctx, args, os.Stdout, os.Stderr)
}
