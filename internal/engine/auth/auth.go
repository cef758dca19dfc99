package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"juzgado/internal/config"
	"juzgado/internal/domain"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

var ErrInvalidCredentials = errors.New("invalid username or password")

// Principal is an authenticated user with the permissions of their role.
type Principal struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source,omitempty"`
}

// PrincipalFor resolves a user's permissions from the office roles.
func PrincipalFor(cfg *config.Config, u domain.User, source string) Principal {
	return Principal{
		UserID:      u.ID,
		Username:    u.Username,
		Role:        u.Role,
		Permissions: cfg.Permissions(u.Role),
		Source:      source,
	}
}

// System is the principal local CLI commands run as.
func System(actorID string) Principal {
	if actorID == "" {
		actorID = "system"
	}
	return Principal{
		UserID:      actorID,
		Username:    actorID,
		Role:        config.AdminRole,
		Permissions: append([]string(nil), config.KnownPermissions...),
		Source:      "local",
	}
}

func (p Principal) Has(perm string) bool {
	for _, granted := range p.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}

// Require returns a ForbiddenError when perm is missing.
func (p Principal) Require(perm string) error {
	if p.Has(perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}

// HashPassword hashes with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is required")
	}
	if len(password) > 72 {
		return "", errors.New("password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash against a candidate password.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
