// Package app wires up and runs the application services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skobkin/systop-web/internal/config"
	"github.com/skobkin/systop-web/internal/httpserver"
	"github.com/skobkin/systop-web/internal/procscan"
	"github.com/skobkin/systop-web/internal/sampler"
	"github.com/skobkin/systop-web/internal/sysinfo"
)

const shutdownTimeout = 10 * time.Second

// Run bootstraps the application lifecycle. It returns once ctx is cancelled
// and every service has stopped, or as soon as one of them fails.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) (err error) {
	appLogger := baseLogger.With("component", "app")

	source, err := sysinfo.Open(cfg.ProcRoot, cfg.EtcRoot,
		sysinfo.WithClockTicks(cfg.ClockTicks),
		sysinfo.WithLogger(baseLogger.With("component", "sysinfo")),
	)
	if err != nil {
		return fmt.Errorf("open host roots: %w", err)
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close host roots: %w", closeErr))
		}
	}()
	appLogger.Info("reading host metrics",
		"proc_root", cfg.ProcRoot,
		"etc_root", cfg.EtcRoot,
		"clock_ticks", source.ClockTicksPerSecond(),
	)

	reader, err := sampler.NewReader(source, baseLogger.With("component", "sampler_reader"))
	if err != nil {
		return fmt.Errorf("init sampler reader: %w", err)
	}
	samplerManager, err := sampler.NewManager(cfg.SampleInterval, reader, baseLogger.With("component", "sampler"))
	if err != nil {
		return fmt.Errorf("init sampler manager: %w", err)
	}
	defer samplerManager.Close()

	// The manager serves on-demand lookups even when periodic scans are off.
	procManager, err := procscan.NewManager(cfg.Proc, source, baseLogger.With("component", "procscan"))
	if err != nil {
		return fmt.Errorf("init proc scanner: %w", err)
	}
	defer procManager.Close()

	srv := httpserver.New(cfg, baseLogger.With("component", "http"), samplerManager, procManager)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return samplerManager.Run(gctx)
	})
	g.Go(func() error {
		return procManager.Run(gctx)
	})
	g.Go(func() error {
		appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr)
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("shutdown initiated", "reason", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	appLogger.Info("shutdown complete")
	return nil
}
