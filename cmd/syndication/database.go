package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	syndicationmigrations "github.com/goliatone/go-syndication/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type databaseConfig struct {
	driver string
	dsn    string
}

func (c databaseConfig) GetDebug() bool                { return false }
func (c databaseConfig) GetDriver() string             { return c.driver }
func (c databaseConfig) GetServer() string             { return c.dsn }
func (c databaseConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c databaseConfig) GetOtelIdentifier() string     { return "go-syndication" }

// openDatabase connects with the bun dialect and migration set matching
// driver.
func openDatabase(driver string, dsn string) (*persistence.Client, string, error) {
	var (
		sqlDriver string
		dialect   schema.Dialect
		target    string
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg":
		sqlDriver, dialect, target = "postgres", pgdialect.New(), syndicationmigrations.DialectPostgres
	case "sqlite", "sqlite3":
		sqlDriver, dialect, target = "sqlite3", sqlitedialect.New(), syndicationmigrations.DialectSQLite
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}
	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", sqlDriver, err)
	}
	if sqlDriver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(databaseConfig{driver: sqlDriver, dsn: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("connect %s: %w", sqlDriver, err)
	}
	return client, target, nil
}

func migrateDatabase(ctx context.Context, client *persistence.Client, target string) error {
	if _, err := syndicationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == target {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, syndicationmigrations.WithValidationTargets(target)); err != nil {
		return fmt.Errorf("register migrations: %w", err)
	}
	return client.Migrate(ctx)
}
