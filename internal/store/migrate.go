package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// Migrate applies every pending migration for dialect to db.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, log *zap.Logger) error {
	var dir string
	switch dialect {
	case goose.DialectPostgres:
		dir = "migrations/postgres"
	case goose.DialectSQLite3:
		dir = "migrations/sqlite"
	default:
		return fmt.Errorf("no migrations for dialect %q", dialect)
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	for _, r := range results {
		log.Info("migration applied",
			zap.String("dialect", string(dialect)),
			zap.Int64("version", r.Source.Version),
			zap.Duration("took", r.Duration),
		)
	}
	return nil
}
