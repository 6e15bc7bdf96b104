package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-sentinel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

//go:embed data/fixtures/*.yml
var fixturesFS embed.FS

func init() {
	persistence.RegisterModel((*sentinel.User)(nil))
	persistence.RegisterModel((*sentinel.Group)(nil))
	persistence.RegisterModel((*sentinel.UserGroup)(nil))
	persistence.RegisterModel((*sentinel.Throttle)(nil))
}

// persistenceConfig feeds the DSN derived settings to the persistence client.
type persistenceConfig struct {
	dsn     string
	driver  string
	debug   bool
	timeout time.Duration
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.dsn }
func (c persistenceConfig) GetDSN() string                { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.timeout }
func (c persistenceConfig) GetOtelIdentifier() string     { return "sentinel" }

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// openSQL picks the driver and dialect from the DSN scheme. postgres:// and
// postgresql:// go through pgx, anything else is a SQLite file.
func openSQL(dsn string) (*sql.DB, schema.Dialect, string, error) {
	if isPostgresDSN(dsn) {
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, "", fmt.Errorf("open postgres: %w", err)
		}
		return sqldb, pgdialect.New(), "pgx", nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, nil, "", fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		sqldb.Close()
		return nil, nil, "", fmt.Errorf("enable foreign keys: %w", err)
	}
	return sqldb, sqlitedialect.New(), sqliteshim.ShimName, nil
}

// openClient wraps the connection in a persistence client that owns the
// dialect migrations and the fixtures.
func openClient(cfg cliConfig, logger glog.Logger) (*persistence.Client, error) {
	sqldb, dialect, driver, err := openSQL(cfg.DSN)
	if err != nil {
		return nil, err
	}

	client, err := persistence.New(persistenceConfig{
		dsn:     cfg.DSN,
		driver:  driver,
		debug:   cfg.Verbose,
		timeout: 5 * time.Second,
	}, sqldb, dialect)
	if err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	client.SetLogger(logger)

	migrationsFS, err := fs.Sub(sentinel.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)
	return client, nil
}

func migrateClient(ctx context.Context, client *persistence.Client) error {
	if err := client.ValidateDialects(ctx); err != nil {
		return fmt.Errorf("validate migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// loadFixtures resets the fixture tables and loads data/fixtures.
func loadFixtures(ctx context.Context, client *persistence.Client) error {
	client.RegisterFixtures(fixturesFS).AddOptions(persistence.WithTrucateTables())
	if err := client.Seed(ctx); err != nil {
		return fmt.Errorf("load fixtures: %w", err)
	}
	return nil
}
