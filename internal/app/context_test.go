package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juzgado/internal/config"
)

func TestOpenSeedsConfigFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "juzgado.yml"), []byte(config.GenerateDefault("Juzgado 3 Civil")), 0o644))
	ctx := context.Background()

	eng, conn, err := Open(ctx, Options{Workspace: dir}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "Juzgado 3 Civil", eng.Config.Office.Name)
	require.NoError(t, conn.Close())

	// once stored, the database copy wins over the file
	require.NoError(t, os.WriteFile(filepath.Join(dir, "juzgado.yml"), []byte(config.GenerateDefault("Otro")), 0o644))
	eng, conn, err = Open(ctx, Options{Workspace: dir}, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "Juzgado 3 Civil", eng.Config.Office.Name)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	eng, conn, err := Open(ctx, Options{Workspace: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, DefaultOfficeName, eng.Config.Office.Name)

	_, err = EnsureAdmin(ctx, eng, "", "")
	assert.Error(t, err)

	created, err := EnsureAdmin(ctx, eng, "", "admin-pass")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = EnsureAdmin(ctx, eng, "", "admin-pass")
	require.NoError(t, err)
	assert.False(t, created)

	u, err := eng.Authenticate(ctx, "admin", "admin-pass")
	require.NoError(t, err)
	assert.Equal(t, config.AdminRole, u.Role)
}
