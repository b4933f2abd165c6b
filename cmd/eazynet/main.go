package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Initialize context that cancelled on SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("can't run app, sorry", "error", err.Error())
		os.Exit(1)
	}
}

// Config sources in priority order: flags, environment, '.env' file, defaults
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return fmt.Errorf("error while loading environment: %w", err)
	}
	if err := c.ParseFlags(args); err != nil {
		return fmt.Errorf("error while parsing flags: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	app, err := NewServerApp(ctx, c)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Run(ctx)
}
