package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/config"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	migrationsDir   = "migrations"
	migrationsTable = "schema_migrations"
)

// ErrDirtySchema means a previous migration failed halfway and the recorded
// version has to be forced before anything else runs.
var ErrDirtySchema = errors.New("schema is dirty")

// Migration is one embedded schema step.
type Migration struct {
	Version uint   `json:"version"`
	Name    string `json:"name"`
	HasDown bool   `json:"has_down"`
}

// MigrationStatus compares the database against the embedded migrations.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Latest  uint `json:"latest"`
	Pending int  `json:"pending"`
}

// Migrations lists the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	src, err := iofs.New(migrationFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	defer src.Close()

	var out []Migration
	v, err := src.First()
	for err == nil {
		up, name, rerr := src.ReadUp(v)
		if rerr != nil {
			return nil, fmt.Errorf("failed to read migration %d: %w", v, rerr)
		}
		_ = up.Close()

		m := Migration{Version: v, Name: name}
		if down, _, derr := src.ReadDown(v); derr == nil {
			_ = down.Close()
			m.HasDown = true
		}
		out = append(out, m)
		v, err = src.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	return out, nil
}

// Migrator applies the embedded migrations with golang-migrate.
type Migrator struct {
	m          *migrate.Migrate
	migrations []Migration
	logger     *zap.Logger
}

// NewMigrator opens a dedicated connection for migrations. Close releases it.
func NewMigrator(cfg config.DatabaseConfig, logger *zap.Logger) (*Migrator, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{logger: logger}

	return &Migrator{m: m, migrations: migrations, logger: logger}, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	before, err := m.cleanVersion()
	if err != nil {
		return 0, err
	}
	if err := m.run(ctx, m.m.Up); err != nil {
		return 0, err
	}
	after, _, err := m.version()
	if err != nil {
		return 0, err
	}

	n := countBetween(m.migrations, before, after)
	if n > 0 {
		m.logger.Info("Migrations applied", zap.Int("count", n), zap.Uint("version", after))
	}
	return n, nil
}

// Down rolls back steps migrations, or all of them when steps <= 0.
func (m *Migrator) Down(ctx context.Context, steps int) (int, error) {
	before, err := m.cleanVersion()
	if err != nil {
		return 0, err
	}

	fn := m.m.Down
	if steps > 0 {
		fn = func() error { return m.m.Steps(-steps) }
	}
	if err := m.run(ctx, fn); err != nil {
		return 0, err
	}
	after, _, err := m.version()
	if err != nil {
		return 0, err
	}

	n := countBetween(m.migrations, after, before)
	if n > 0 {
		m.logger.Info("Migrations rolled back", zap.Int("count", n), zap.Uint("version", after))
	}
	return n, nil
}

// Force records version as applied and clears the dirty flag without running
// anything.
func (m *Migrator) Force(version int) error {
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	m.logger.Warn("Migration version forced", zap.Int("version", version))
	return nil
}

func (m *Migrator) Status() (MigrationStatus, error) {
	v, dirty, err := m.version()
	if err != nil {
		return MigrationStatus{}, err
	}
	status := MigrationStatus{Version: v, Dirty: dirty}
	if len(m.migrations) > 0 {
		status.Latest = m.migrations[len(m.migrations)-1].Version
	}
	status.Pending = countBetween(m.migrations, v, status.Latest)
	return status, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// RunMigrations applies pending migrations over a short-lived connection.
func RunMigrations(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (int, error) {
	m, err := NewMigrator(cfg, logger)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return m.Up(ctx)
}

func (m *Migrator) version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, dirty, nil
}

func (m *Migrator) cleanVersion() (uint, error) {
	v, dirty, err := m.version()
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("%w at version %d", ErrDirtySchema, v)
	}
	return v, nil
}

// run executes fn, asking golang-migrate to stop between migrations once ctx
// is done. ErrNoChange counts as success.
func (m *Migrator) run(ctx context.Context, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	var dirty migrate.ErrDirty
	if errors.As(err, &dirty) {
		return fmt.Errorf("%w at version %d", ErrDirtySchema, dirty.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migration interrupted: %w", err)
	}
	return nil
}

// countBetween counts the migrations with from < version <= to.
func countBetween(migrations []Migration, from, to uint) int {
	n := 0
	for _, mig := range migrations {
		if mig.Version > from && mig.Version <= to {
			n++
		}
	}
	return n
}

// migrateLogger routes golang-migrate's output through zap.
type migrateLogger struct {
	logger *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), zap.String("component", "migrate"))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}
