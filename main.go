// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/aegiscore/cmd"
)

func main() {
	// Interrupts cancel the command context so servers and streams drain cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil && ctx.Err() == nil {
		stop()
		os.Exit(1)
	}
}
