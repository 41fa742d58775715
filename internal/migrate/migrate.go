package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"example.com/quadclue/db"
)

const (
	schemaTable = "goose_db_version"
	seedTable   = "goose_seed_version"
)

// Up applies all pending schema migrations. An empty dir uses the
// migrations built into the binary; otherwise dir is read from disk.
//
// It returns an error (no log.Fatal) so the caller can decide how to handle it.
func Up(ctx context.Context, dbURL, dir string, log *slog.Logger) error {
	var (
		fsys fs.FS = db.Migrations
		path       = "migrations"
	)
	if dir != "" {
		fsys, path = os.DirFS(dir), "."
	}
	return run(ctx, dbURL, fsys, path, schemaTable, log)
}

// Seed loads the development puzzles. Never part of Up, so production
// databases only get them when asked.
func Seed(ctx context.Context, dbURL string, log *slog.Logger) error {
	return run(ctx, dbURL, db.Seeds, "seeds", seedTable, log)
}

func run(ctx context.Context, dbURL string, fsys fs.FS, path, table string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	conn, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("migrations: open db: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Error("database close error", "err", err)
		}
	}()

	// goose keeps these globally; restore the schema table for the next run
	goose.SetBaseFS(fsys)
	goose.SetTableName(table)
	defer goose.SetTableName(schemaTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrations: set dialect: %w", err)
	}

	log.Info("running database migrations", "table", table, "path", path)
	if err := goose.UpContext(ctx, conn, path); err != nil {
		return fmt.Errorf("migrations: goose up (%s): %w", table, err)
	}
	log.Info("database migrations applied", "table", table)
	return nil
}
