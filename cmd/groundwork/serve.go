package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groundwork-ai/groundwork/pkg/runtime"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(ctx); err != nil {
			slog.Error("closing runtime", "error", err)
		}
	}()

	startupCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.StartupHealthCheck(startupCtx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := rt.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
