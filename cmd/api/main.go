package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/arclightapps/identity-gateway/internal/infra/app"
	"github.com/arclightapps/identity-gateway/internal/infra/config"
)

// run wires the application and blocks until shutdown. Errors bubble up here
// so main stays the single place that decides the process exit code.
func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	return application.Run(ctx)
}

func main() {
	if err := run(); err != nil {
		log.Printf("identity-gateway: %v", err)
		os.Exit(1)
	}
}
