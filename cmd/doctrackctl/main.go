package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/app"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/config"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/database"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/pkg/logger"
)

// Set via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const appName = "doctrackctl"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Operator tool for the document tracking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config.yaml", "Config file path (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		migrateCmd(g),
		performCmd(g),
		bulkCmd(g),
		statusCmd(g),
		tokenCmd(g),
		departmentCmd(g),
		userCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// withApp wires the application for one command and releases it afterwards.
func (g *globals) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Environment, g.logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.ModeCLI)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Warn("Failed to release resources", zap.Error(err))
		}
	}()

	return fn(ctx, a)
}

func migrateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withMigrator(cmd, func(ctx context.Context, m *database.Migrator) error {
				n, err := m.Down(ctx, steps)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", n)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back, 0 for all")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withMigrator(cmd, func(ctx context.Context, m *database.Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return g.withMigrator(cmd, func(ctx context.Context, m *database.Migrator) error {
				return m.Force(version)
			})
		},
	}

	cmd.AddCommand(down, status, force)
	return cmd
}

// withMigrator runs fn with a migrator that closes when fn returns.
func (g *globals) withMigrator(cmd *cobra.Command, fn func(context.Context, *database.Migrator) error) error {
	return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
		m, err := a.Migrator()
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				a.Logger.Warn("Failed to close migrator", zap.Error(err))
			}
		}()
		return fn(ctx, m)
	})
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
