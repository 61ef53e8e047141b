// Command harbour is the Harbour package manager and build system for C
// and C++ projects.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"harbour/internal/ops"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ops.ExitCode(err))
	}
}
