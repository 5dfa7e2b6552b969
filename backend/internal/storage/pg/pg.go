package pg

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/blogmedia/blogmedia/shared/config"
	"github.com/blogmedia/blogmedia/shared/logger"
	sharedpg "github.com/blogmedia/blogmedia/shared/storage/pg"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Storage struct {
	db *sqlx.DB
}

// New connects using cfg and brings the schema up to date.
func New(ctx context.Context, cfg *config.Config) (*Storage, error) {
	return Open(ctx, sharedpg.DSN(cfg))
}

// Open connects to dsn and runs pending migrations.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	logger.Log.Info("connecting to database")
	db, err := sharedpg.Connect(ctx, dsn, sharedpg.DefaultConnectionConfig())
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Log.Info("successfully connected to database")
	return &Storage{db: db}, nil
}

func Migrate(db *sqlx.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	migrationsDir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations directory: %w", err)
	}
	goose.SetBaseFS(migrationsDir)
	if err := goose.Up(db.DB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Cleanup() error {
	return s.db.Close()
}
