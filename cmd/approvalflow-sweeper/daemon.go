// Package main provides the escalation sweeper daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bizbooks/approvalflow/pkg/workflow"
	"github.com/robfig/cron/v3"
)

// Daemon runs the sweeper on a fixed interval until a shutdown signal.
type Daemon struct {
	logger  *slog.Logger
	sweeper *workflow.Sweeper
}

func NewDaemon(logger *slog.Logger, sweeper *workflow.Sweeper) *Daemon {
	return &Daemon{
		logger:  logger.With("module", "daemon"),
		sweeper: sweeper,
	}
}

// Start sweeps once immediately, then on every interval tick. It blocks until
// the context is cancelled or a termination signal arrives.
func (d *Daemon) Start(ctx context.Context, interval time.Duration) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.handleSignals(cancel)

	d.sweep(runCtx)

	scheduler := cron.New()

	_, err := scheduler.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		d.sweep(runCtx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	d.logger.InfoContext(runCtx, "Starting escalation sweeps", "interval", interval)
	scheduler.Start()

	<-runCtx.Done()

	d.logger.Info("Stopping escalation sweeps")
	<-scheduler.Stop().Done()

	return nil
}

func (d *Daemon) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		d.logger.Info("Received signal, shutting down gracefully", "signal", sig)
		cancel()
	}()
}

func (d *Daemon) sweep(ctx context.Context) {
	approved, err := d.sweeper.Sweep(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "Sweep pass failed", "error", err, "approved", approved)

		return
	}

	d.logger.InfoContext(ctx, "Sweep pass completed", "approved", approved)
}
