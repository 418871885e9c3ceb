package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/app"
	"github.com/ayush/personal-library/internal/config"
	"github.com/ayush/personal-library/internal/logger"
	"github.com/ayush/personal-library/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Tracing ──────────────────────────────────────────────
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:       cfg.OTelEnabled,
		ServiceName:   cfg.OTelServiceName,
		Environment:   cfg.Environment,
		CollectorAddr: cfg.OTelCollectorAddr,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Error("tracer shutdown", zap.Error(err))
		}
	}()

	// ── Stores and handlers ──────────────────────────────────
	api, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer api.Close()

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.Handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Environment),
			zap.String("user_store", cfg.UserStore),
			zap.String("book_store", cfg.BookStore),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	return nil
}
