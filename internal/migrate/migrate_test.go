package migrate

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juzgado/internal/db"
)

func TestMigrateIsRepeatable(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(ctx, conn, zerolog.Nop()))
	require.NoError(t, Migrate(ctx, conn, zerolog.Nop()))

	v, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	for _, table := range []string{"cases", "intakes", "statuses", "actions", "events", "users", "api_keys", "office_config"} {
		var n int
		require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestUnknownDialect(t *testing.T) {
	_, err := gooseDialect(db.Dialect("oracle"))
	assert.Error(t, err)
}
