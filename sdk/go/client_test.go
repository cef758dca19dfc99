package juzgadosdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juzgado/internal/config"
	"juzgado/internal/db"
	"juzgado/internal/engine"
	"juzgado/internal/migrate"
	"juzgado/internal/server"
	juzgadosdk "juzgado/sdk/go"
)

func newClient(t *testing.T) *juzgadosdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn, zerolog.Nop()))
	e := engine.New(conn, config.Default("Juzgado de prueba"), zerolog.Nop())
	e.Now = func() time.Time { return time.Date(2024, 10, 1, 15, 0, 0, 0, time.UTC) }
	_, err = e.CreateUser(context.Background(), engine.UserCreateOptions{
		Username: "admin", Role: config.AdminRole, Password: "s3cret-pass", ActorID: "test",
	})
	require.NoError(t, err)
	handler, err := server.New(server.Config{
		Engine: e,
		Auth:   server.AuthConfig{JWTSecret: "sdk-secret", Log: zerolog.Nop()},
		Log:    zerolog.Nop(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c := juzgadosdk.New(ts.URL)
	require.NoError(t, c.Login(context.Background(), "admin", "s3cret-pass"))
	return c
}

func TestClientCaseFlow(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	created, err := c.CreateCase(ctx, juzgadosdk.NewCase{Radicado: "110013103001-2024-00042-00", Demandante: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "P", created.Case.Estado)
	assert.Nil(t, created.Case.Turno)

	tr, err := c.AddIntake(ctx, created.Case.ID, juzgadosdk.Intake{Fecha: "2024-09-01", Solicitud: "impulso"})
	require.NoError(t, err)
	assert.Equal(t, "AP", tr.To)
	require.NotNil(t, tr.Turno)
	assert.Equal(t, 1, *tr.Turno)

	byRadicado, err := c.GetCase(ctx, "11001-31-03-001-2024-00042-00")
	require.NoError(t, err)
	assert.Equal(t, created.Case.ID, byRadicado.ID)

	queue, err := c.Queue(ctx, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, created.Case.ID, queue[0].CaseID)

	tr, err = c.AddStatus(ctx, created.Case.ID, juzgadosdk.StatusEvent{Fecha: "2024-09-15", Clase: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "AR", tr.To)
	assert.Equal(t, "clear", tr.Queue)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Queued)

	evts, err := c.Events(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, evts)

	require.NoError(t, c.DeleteCase(ctx, created.Case.ID))
	_, err = c.GetCase(ctx, created.Case.ID)
	var apiErr *juzgadosdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClientBadLogin(t *testing.T) {
	c := newClient(t)
	c.BearerToken = ""
	err := c.Login(context.Background(), "admin", "wrong")
	var apiErr *juzgadosdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
