// Command kbase is a local knowledge base for retrieval-augmented generation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nomadai/kbase/internal/adapters/driving/cli"
	"github.com/nomadai/kbase/internal/logger"
)

func main() {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("loading .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetBootstrap(cli.Bootstrap{
		Settings: openSettings,
		Runtime:  openRuntime,
		Check:    checkEmbedding,
	})

	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
