package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"juzgado/internal/config"
	"juzgado/internal/db"
	"juzgado/internal/engine"
	"juzgado/internal/migrate"
	"juzgado/internal/repo"
)

// DefaultOfficeName seeds the config when neither the database nor the workspace has one.
const DefaultOfficeName = "Juzgado"

// ResolveConfig returns the office config stored in the database. When none is
// stored yet it seeds one from juzgado.yml in the workspace, or from defaults.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetOfficeConfig(ctx, nil)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		seed = config.Default(DefaultOfficeName)
	}
	if err := r.UpsertOfficeConfig(ctx, nil, seed, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("seed office config: %w", err)
	}
	return seed, nil
}

// Options locate the datastore.
type Options struct {
	Workspace string
	Driver    string
	DSN       string
}

// Open connects, migrates and builds an engine bound to the stored office config.
func Open(ctx context.Context, opts Options, log zerolog.Logger) (engine.Engine, *db.Conn, error) {
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Driver: opts.Driver, DSN: opts.DSN})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(ctx, conn, log); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := ResolveConfig(ctx, opts.Workspace, repo.New(conn))
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	return engine.New(conn, cfg, log), conn, nil
}

// EnsureAdmin creates the first admin account when the users table is empty.
// It reports whether an account was created.
func EnsureAdmin(ctx context.Context, eng engine.Engine, username, password string) (bool, error) {
	n, err := eng.Repo.CountUsers(ctx, nil)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if password == "" {
		return false, errors.New("no users exist; set an admin password to bootstrap")
	}
	if username == "" {
		username = config.AdminRole
	}
	if _, err := eng.CreateUser(ctx, engine.UserCreateOptions{
		Username:    username,
		DisplayName: "Administrador",
		Role:        config.AdminRole,
		Password:    password,
		ActorID:     "bootstrap",
	}); err != nil {
		return false, err
	}
	return true, nil
}
