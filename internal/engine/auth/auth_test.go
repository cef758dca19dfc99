package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juzgado/internal/config"
	"juzgado/internal/domain"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3creto")
	require.NoError(t, err)
	assert.NotEqual(t, "s3creto", hash)
	require.NoError(t, CheckPassword(hash, "s3creto"))
	assert.ErrorIs(t, CheckPassword(hash, "otro"), ErrInvalidCredentials)

	_, err = HashPassword("   ")
	assert.Error(t, err)
}

func TestPrincipalPermissions(t *testing.T) {
	cfg := config.Default("Juzgado")
	p := PrincipalFor(cfg, domain.User{ID: "u1", Username: "ana", Role: "consulta"}, "jwt")
	assert.True(t, p.Has("case.read"))
	err := p.Require("case.write")
	var forbidden ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, "case.write", forbidden.Permission)

	admin := System("")
	assert.Equal(t, "system", admin.UserID)
	for _, perm := range config.KnownPermissions {
		assert.NoError(t, admin.Require(perm))
	}
}
