package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"juzgado/internal/config"
	"juzgado/internal/domain"
	"juzgado/internal/engine/auth"
	"juzgado/internal/events"
	"juzgado/internal/repo"
)

type UserCreateOptions struct {
	Username    string
	DisplayName string
	Role        string
	Password    string
	ActorID     string
}

// CreateUser adds an office account. The role must be one of the configured roles.
func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(opts.Username))
	if username == "" {
		return domain.User{}, errors.New("username is required")
	}
	if e.Config == nil {
		return domain.User{}, errors.New("config not loaded")
	}
	if _, ok := e.Config.RBAC.Roles[opts.Role]; !ok {
		return domain.User{}, fmt.Errorf("unknown role %q (have %s)", opts.Role, strings.Join(e.Config.RoleNames(), ", "))
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetUserByUsername(ctx, tx, username); err == nil {
		return domain.User{}, fmt.Errorf("user %s: %w", username, ErrDuplicate)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           newID(),
		Username:     username,
		DisplayName:  strings.TrimSpace(opts.DisplayName),
		Role:         opts.Role,
		PasswordHash: hash,
		CreatedAt:    e.stamp(),
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, events.UserCreated, "user", u.ID, actor(opts.ActorID), events.EventPayload{
		"username": u.Username, "role": u.Role,
	}); err != nil {
		return domain.User{}, err
	}
	return u, tx.Commit()
}

// Authenticate checks a username and password.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, nil, username)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CreateAPIKey issues a key for a user. The raw key is only ever returned here.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, nil, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "jz_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyCreated, "user", userID, actor(actorID), events.EventPayload{
		"key_id": key.ID, "name": key.Name,
	}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}

// RevokeAPIKey deletes a key so it no longer authenticates.
func (e Engine) RevokeAPIKey(ctx context.Context, keyID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	key, err := e.Repo.DeleteAPIKey(ctx, tx, keyID)
	if err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyRevoked, "user", key.UserID, actor(actorID), events.EventPayload{
		"key_id": key.ID, "name": key.Name,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// StoreConfig validates and persists the office config, then uses it.
func (e *Engine) StoreConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOfficeConfig(ctx, tx, cfg, e.stamp()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ConfigUpdated, "config", "office", actor(actorID), events.EventPayload{
		"office": cfg.Office.Name, "resolved_window_days": cfg.Lifecycle.ResolvedWindowDays,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Config = cfg
	return nil
}
