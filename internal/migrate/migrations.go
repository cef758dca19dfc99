package migrate

import (
	"context"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"juzgado/internal/db"
)

//go:embed sql
var migrationsFS embed.FS

// gooseDialect maps our dialects to goose's names.
func gooseDialect(d db.Dialect) (string, error) {
	switch d {
	case db.SQLite:
		return "sqlite3", nil
	case db.Postgres:
		return "postgres", nil
	}
	return "", fmt.Errorf("no migrations for dialect %q", d)
}

type gooseLogger struct {
	log zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf must not exit the process; goose also returns the error to Migrate.
func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate applies the embedded migrations for the connection's dialect.
// Each file runs in its own transaction.
func Migrate(ctx context.Context, conn *db.Conn, log zerolog.Logger) error {
	dialect, err := gooseDialect(conn.Dialect)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: log.With().Str("component", "migrate").Logger()})
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, conn.DB, path.Join("sql", string(conn.Dialect))); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func Version(ctx context.Context, conn *db.Conn) (int64, error) {
	dialect, err := gooseDialect(conn.Dialect)
	if err != nil {
		return 0, err
	}
	if err := goose.SetDialect(dialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, conn.DB)
}
