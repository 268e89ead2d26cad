package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/app"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/config"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/scheduler"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/pkg/logger"
)

func main() {
	var (
		configPath string
		once       bool
	)
	cmd := &cobra.Command{
		Use:           "workers",
		Short:         "Run the scheduled deadline and inbox jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, once)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	cmd.Flags().BoolVar(&once, "once", false, "run every job once and exit")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		zap.NewExample().Error("Workers failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, once bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.New(cfg.Environment, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log, app.ModeWorker)
	if err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			log.Error("Failed to release resources", zap.Error(err))
		}
	}()

	sweeper := scheduler.NewDeadlineSweeper(
		application.Documents,
		application.Directory,
		application.Dispatcher,
		cfg.Scheduler.ReminderWindow,
		log,
	)
	cleanup := scheduler.NewInboxCleanup(application.Inbox, cfg.Scheduler.PruneAfter, log)

	manager := scheduler.NewManager(log, 10*time.Minute)

	if once {
		var errs []error
		for _, job := range []scheduler.Job{sweeper, cleanup} {
			errs = append(errs, manager.RunNow(ctx, job))
		}
		return errors.Join(errs...)
	}

	if err := manager.AddJob(cfg.Scheduler.DeadlineSpec, sweeper); err != nil {
		return fmt.Errorf("failed to schedule deadline sweeper: %w", err)
	}
	if err := manager.AddJob(cfg.Scheduler.PruneSpec, cleanup); err != nil {
		return fmt.Errorf("failed to schedule inbox cleanup: %w", err)
	}
	if err := manager.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	<-ctx.Done()
	log.Info("Shutting down workers...")
	manager.Stop()
	log.Info("Workers exiting")
	return nil
}
