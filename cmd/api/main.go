package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/app"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/auth"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/config"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/database"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/notifications"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/tracking"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/pkg/logger"
)

func main() {
	var (
		configPath string
		migrate    bool
	)
	cmd := &cobra.Command{
		Use:           "api",
		Short:         "Serve the document tracking HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, migrate)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		zap.NewExample().Error("API server failed", zap.Error(err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string, migrate bool) error {
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

	if migrate {
		applied, err := database.RunMigrations(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		log.Info("Migrations applied", zap.Int("count", applied))
	}

	application, err := app.New(ctx, cfg, log, app.ModeAPI)
	if err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.GinMiddleware(log), logger.GinRecovery(log), cors(cfg.Server.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		sqlDB, err := application.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(application.Registry, promhttp.HandlerOpts{})))

	middleware := auth.NewMiddleware(application.Signer, application.Directory, log)

	api := router.Group("/api/v1")
	{
		auth.NewHandler(middleware).RegisterRoutes(api)

		protected := api.Group("")
		protected.Use(middleware.RequireActor())

		tracking.NewHandler(application.Tracking, log).RegisterRoutes(protected)

		var sockets notifications.ConnectionHandler
		if application.Sockets != nil {
			sockets = application.Sockets
		}
		notifications.NewHandler(application.Inbox, sockets, log).RegisterRoutes(protected)
	}

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case serveErr = <-errCh:
		log.Error("Server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := application.Close(shutdownCtx); err != nil {
		log.Error("Failed to release resources", zap.Error(err))
	}

	log.Info("Server exiting")
	return serveErr
}

// cors allows the configured origins, or any origin when none are configured.
func cors(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowed, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
