package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/auth"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/cache"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/config"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/database"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/events"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/notifications"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/notifications/websocket"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/search"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/tracking"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/workflow"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/pkg/security"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/pkg/storage"
)

// Mode selects which long-lived pieces a process needs.
type Mode int

const (
	ModeAPI Mode = iota
	ModeWorker
	ModeCLI
)

// App holds every wired component of one process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Registry *prometheus.Registry

	Cache      cache.Cache
	Documents  documents.Repository
	Directory  directory.Repository
	Trail      *audit.Trail
	Inbox      *notifications.Inbox
	Sockets    *websocket.Manager
	Dispatcher *notifications.Dispatcher
	Engine     *workflow.Engine
	Tracking   *tracking.Service
	Signer     *auth.Signer
	Search     *search.Index
	Files      storage.S3Client

	closers []func(context.Context) error
}

// New connects to every configured backend and wires the services. Optional
// backends (redis, elasticsearch, nats, s3, ses, sns) are skipped when their
// settings are empty.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, mode Mode) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	wired := false
	defer func() {
		if !wired {
			_ = a.Close(context.Background())
		}
	}()

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var err error
	a.DB, err = database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if err := a.buildCache(ctx); err != nil {
		return nil, err
	}

	a.Documents = documents.NewRepository(a.DB)
	a.Directory = directory.NewRepository(a.DB)
	a.Trail = audit.NewTrail(audit.NewGormStore(a.DB), audit.WithLogger(logger))
	a.Inbox = notifications.NewInbox(a.DB)

	a.Signer, err = auth.NewSigner(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	var awsCfg *aws.Config
	if needsAWS(cfg) {
		loaded, err := config.LoadAWS(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		awsCfg = &loaded
	}

	channels := []notifications.Channel{a.Inbox}
	if mode == ModeAPI && cfg.Notifications.WebSocket {
		a.Sockets = websocket.NewManager(logger, cfg.Server.AllowedOrigins...)
		channels = append(channels, a.Sockets)
		a.onClose(func(context.Context) error {
			a.Sockets.Close()
			return nil
		})
	}
	if awsCfg != nil && cfg.Notifications.EmailFrom != "" {
		channels = append(channels, notifications.NewEmailChannel(
			sesv2.NewFromConfig(*awsCfg),
			cfg.Notifications.EmailFrom,
			cfg.Notifications.SESConfigSet,
			cfg.Notifications.PortalBaseURL,
		))
	}
	if awsCfg != nil && cfg.Notifications.PushTopicARN != "" {
		channels = append(channels, notifications.NewPushChannel(sns.NewFromConfig(*awsCfg), cfg.Notifications.PushTopicARN))
	}

	a.Dispatcher = notifications.NewDispatcher(notifications.DispatcherConfig{
		Workers:         cfg.Notifications.Workers,
		QueueSize:       cfg.Notifications.QueueSize,
		DeliveryTimeout: cfg.Notifications.DeliveryTimeout,
	}, channels,
		notifications.WithDispatcherMetrics(notifications.NewMetrics(a.Registry)),
		notifications.WithDispatcherLogger(logger),
	)
	// Closers run in reverse, so queued deliveries drain before the
	// channels behind them close.
	a.onClose(a.Dispatcher.Close)

	engineOpts := []workflow.Option{
		workflow.WithNotifier(a.Dispatcher),
		workflow.WithMetrics(workflow.NewMetrics(a.Registry)),
		workflow.WithLogger(logger),
		workflow.WithBulkLimit(cfg.Workflow.BulkLimit),
		workflow.WithHook("cache", workflow.NewCacheInvalidator(a.Cache)),
	}
	trackingOpts := []tracking.Option{
		tracking.WithCache(a.Cache, cfg.Cache.TTL),
		tracking.WithLogger(logger),
	}

	if awsCfg != nil && cfg.Storage.Bucket != "" {
		client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.Storage.UsePathStyle
		})
		a.Files = storage.NewS3Client(client)

		alg, err := security.ParseAlgorithm(cfg.Workflow.HashAlgorithm)
		if err != nil {
			return nil, err
		}
		hasher := security.NewFileHasher(a.Files, cfg.Storage.Bucket, alg)
		engineOpts = append(engineOpts, workflow.WithContentHasher(hasher))
		trackingOpts = append(trackingOpts,
			tracking.WithFiles(a.Files, cfg.Storage.Bucket),
			tracking.WithVerifier(hasher),
		)
	}

	if len(cfg.Search.Addresses) > 0 {
		es, err := search.NewClient(cfg.Search.Addresses, cfg.Search.Username, cfg.Search.Password)
		if err != nil {
			return nil, err
		}
		a.Search = search.NewIndex(es, cfg.Search.Index)
		if err := a.Search.EnsureIndex(ctx); err != nil {
			logger.Warn("Search index not ready, continuing without it", zap.Error(err))
		}
		engineOpts = append(engineOpts, workflow.WithHook("search", a.Search))
		trackingOpts = append(trackingOpts, tracking.WithSearch(a.Search))
	}

	if cfg.Events.NATSURL != "" {
		nc, err := events.Connect(cfg.Events.NATSURL, "doctrack-"+modeName(mode))
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return nc.Drain() })
		engineOpts = append(engineOpts, workflow.WithHook("events", events.NewPublisher(nc, cfg.Events.SubjectPrefix)))
	}

	a.Engine = workflow.NewEngine(workflow.NewGormStore(a.DB), a.Trail, engineOpts...)
	a.Tracking = tracking.NewService(a.Engine, a.Documents, a.Trail, trackingOpts...)

	logger.Info("Application wired",
		zap.String("mode", modeName(mode)),
		zap.Int("notification_channels", len(channels)),
		zap.Bool("search", a.Search != nil),
		zap.Bool("events", cfg.Events.NATSURL != ""),
		zap.Bool("files", a.Files != nil),
	)
	wired = true
	return a, nil
}

func (a *App) buildCache(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		a.Cache = cache.NewRedisCache(client, cfg.Redis.Namespace, cfg.Cache.TTL)
	case "none":
		a.Cache = cache.Nop{}
	default:
		mem := cache.NewMemoryCache(cfg.Cache.TTL)
		a.onClose(func(context.Context) error {
			mem.Stop()
			return nil
		})
		a.Cache = mem
	}
	return nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) (int, error) {
	return database.RunMigrations(ctx, a.Config.Database, a.Logger)
}

// Migrator opens a migrator over its own connection. Callers close it.
func (a *App) Migrator() (*database.Migrator, error) {
	return database.NewMigrator(a.Config.Database, a.Logger)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func needsAWS(cfg *config.Config) bool {
	return cfg.Storage.Bucket != "" || cfg.Notifications.EmailFrom != "" || cfg.Notifications.PushTopicARN != ""
}

func modeName(m Mode) string {
	switch m {
	case ModeWorker:
		return "worker"
	case ModeCLI:
		return "cli"
	default:
		return "api"
	}
}
