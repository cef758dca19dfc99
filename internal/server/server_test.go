package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juzgado/internal/config"
	"juzgado/internal/db"
	"juzgado/internal/domain"
	"juzgado/internal/engine"
	"juzgado/internal/migrate"
	"juzgado/internal/repo"
)

const (
	testSecret   = "test-secret"
	testPassword = "correct horse"
)

type testServer struct {
	*httptest.Server
	Engine engine.Engine
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn, zerolog.Nop()))
	e := engine.New(conn, config.Default("Juzgado de prueba"), zerolog.Nop())
	e.Now = func() time.Time { return time.Date(2024, 10, 1, 15, 0, 0, 0, time.UTC) }
	_, err = e.CreateUser(context.Background(), engine.UserCreateOptions{
		Username: "admin", Role: config.AdminRole, Password: testPassword, ActorID: "test",
	})
	require.NoError(t, err)

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, Log: zerolog.Nop()},
		Log:      zerolog.Nop(),
	})
	require.NoError(t, err)
	srv := &testServer{Server: httptest.NewServer(handler), Engine: e}
	t.Cleanup(srv.Close)
	srv.token = srv.login(t, "admin", testPassword)
	return srv
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	status, data := s.do(t, http.MethodPost, "/v1/auth/token", map[string]string{
		"username": username, "password": password,
	}, nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(data, &tok))
	require.NotEmpty(t, tok.Token)
	return tok.Token
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, data
}

func (s *testServer) as(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *testServer) admin(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	return s.do(t, method, path, body, s.as(s.token))
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error.Code
}

func radicado(n int) string {
	return fmt.Sprintf("110013103001-2024-%05d-00", n)
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t)
	status, data := srv.do(t, http.MethodGet, "/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.do(t, http.MethodGet, "/v1/cases", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", errorCode(t, data))

	status, data = srv.do(t, http.MethodGet, "/v1/cases", nil, srv.as("not-a-token"))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", errorCode(t, data))

	status, data = srv.do(t, http.MethodPost, "/v1/auth/token", map[string]string{
		"username": "admin", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", errorCode(t, data))
}

func TestCaseLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	status, data := srv.admin(t, http.MethodPost, "/v1/cases", map[string]any{
		"radicado":   radicado(1),
		"demandante": "Ana Pérez",
		"intake":     map[string]any{"fecha": "2024-09-01", "solicitud": "tutela"},
	})
	require.Equal(t, http.StatusCreated, status, string(data))
	created := decode[CaseMutationResponse](t, data)
	assert.Equal(t, "AP", created.Case.Estado)
	assert.Equal(t, "11001310300120240000100", created.Case.Radicado)
	assert.Equal(t, "2024-00001", created.Case.RadicadoCorto)
	require.NotNil(t, created.Case.Turno)
	assert.Equal(t, 1, *created.Case.Turno)
	assert.Equal(t, "assign", created.Transition.Queue)
	caseID := created.Case.ID

	status, data = srv.admin(t, http.MethodGet, "/v1/queue", nil)
	require.Equal(t, http.StatusOK, status)
	queue := decode[[]QueueEntryResponse](t, data)
	require.Len(t, queue, 1)
	assert.Equal(t, caseID, queue[0].CaseID)
	require.NotNil(t, queue[0].OrderingDate)
	assert.Equal(t, "2024-09-01", *queue[0].OrderingDate)

	status, data = srv.admin(t, http.MethodPost, "/v1/cases/"+caseID+"/statuses", map[string]any{
		"fecha": "2024-09-20", "clase": "fallo",
	})
	require.Equal(t, http.StatusCreated, status, string(data))
	resolved := decode[StatusMutationResponse](t, data)
	assert.Equal(t, "AP", resolved.Transition.From)
	assert.Equal(t, "AR", resolved.Transition.To)
	assert.True(t, resolved.Transition.Changed)
	assert.Equal(t, "clear", resolved.Transition.Queue)
	assert.Nil(t, resolved.Transition.Turno)

	status, data = srv.admin(t, http.MethodGet, "/v1/queue", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]QueueEntryResponse](t, data))

	status, data = srv.admin(t, http.MethodGet, "/v1/cases/"+caseID+"/lifecycle", nil)
	require.Equal(t, http.StatusOK, status)
	life := decode[LifecycleResponse](t, data)
	assert.Equal(t, "AR", life.DerivedEstado)
	assert.False(t, life.Drift)
	assert.Equal(t, 1, life.Activity.Intakes)
	assert.Equal(t, 1, life.Activity.Statuses)
	assert.Equal(t, "2024-10-01", life.Today)

	status, data = srv.admin(t, http.MethodPost, "/v1/cases/"+caseID+"/actions", map[string]any{
		"descripcion": "oficio enviado", "fecha": "2024-09-25",
	})
	require.Equal(t, http.StatusCreated, status, string(data))
	assert.Equal(t, 1, decode[ActionResponse](t, data).Secuencia)

	status, data = srv.admin(t, http.MethodGet, "/v1/cases/"+caseID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "AR", decode[CaseResponse](t, data).Estado)

	status, data = srv.admin(t, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, status)
	stats := decode[StatsResponse](t, data)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByState["AR"])
	assert.Equal(t, 0, stats.Queued)
}

func TestManualOverrideOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	status, data := srv.admin(t, http.MethodPost, "/v1/cases", map[string]any{"radicado": radicado(2)})
	require.Equal(t, http.StatusCreated, status, string(data))
	c := decode[CaseMutationResponse](t, data).Case
	assert.Equal(t, "P", c.Estado)
	assert.Nil(t, c.Turno)

	// without an ordering date the case is AP but unnumbered
	status, data = srv.admin(t, http.MethodPatch, "/v1/cases/"+c.ID, map[string]any{"estado": "AP"})
	require.Equal(t, http.StatusOK, status, string(data))
	updated := decode[CaseMutationResponse](t, data)
	assert.Equal(t, "AP", updated.Case.Estado)
	assert.Nil(t, updated.Case.Turno)

	status, data = srv.admin(t, http.MethodPatch, "/v1/cases/"+c.ID, map[string]any{"fecha_ingreso": "2024-05-02"})
	require.Equal(t, http.StatusOK, status, string(data))
	updated = decode[CaseMutationResponse](t, data)
	assert.Equal(t, "AP", updated.Case.Estado)
	require.NotNil(t, updated.Case.Turno)
	assert.Equal(t, 1, *updated.Case.Turno)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{"radicado": radicado(3)}
	status, data := srv.admin(t, http.MethodPost, "/v1/cases", body)
	require.Equal(t, http.StatusCreated, status, string(data))

	status, data = srv.admin(t, http.MethodPost, "/v1/cases", body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", errorCode(t, data))

	status, data = srv.admin(t, http.MethodGet, "/v1/cases/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorCode(t, data))

	status, data = srv.admin(t, http.MethodPost, "/v1/cases", map[string]any{
		"radicado": radicado(4), "fecha_ingreso": "ayer",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", errorCode(t, data))

	status, data = srv.admin(t, http.MethodPost, "/v1/cases", map[string]any{"radicado": "123"})
	assert.Equal(t, http.StatusBadRequest, status, string(data))

	status, _ = srv.admin(t, http.MethodGet, "/v1/cases?cursor=broken", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPermissionDenied(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.Engine.CreateUser(context.Background(), engine.UserCreateOptions{
		Username: "lectora", Role: "consulta", Password: testPassword, ActorID: "test",
	})
	require.NoError(t, err)
	token := srv.login(t, "lectora", testPassword)

	status, data := srv.do(t, http.MethodPost, "/v1/cases", map[string]any{"radicado": radicado(5)}, srv.as(token))
	assert.Equal(t, http.StatusForbidden, status)
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "forbidden", env.Error.Code)
	assert.Equal(t, "case.write", env.Error.Details["permission"])

	status, _ = srv.do(t, http.MethodGet, "/v1/cases", nil, srv.as(token))
	assert.Equal(t, http.StatusOK, status)

	status, _ = srv.do(t, http.MethodGet, "/v1/users", nil, srv.as(token))
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	status, data := srv.admin(t, http.MethodPost, "/v1/users", map[string]any{
		"username": "integracion", "role": "auxiliar", "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, status, string(data))
	user := decode[UserResponse](t, data)

	status, data = srv.admin(t, http.MethodPost, "/v1/users/"+user.ID+"/api-keys", map[string]any{"name": "scanner"})
	require.Equal(t, http.StatusCreated, status, string(data))
	key := decode[APIKeyResponse](t, data)
	require.NotEmpty(t, key.Key)

	status, data = srv.do(t, http.MethodGet, "/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, status, string(data))
	me := decode[MeResponse](t, data)
	assert.Equal(t, user.ID, me.UserID)
	assert.Equal(t, "auxiliar", me.Role)
	assert.Contains(t, me.Permissions, "case.write")

	status, _ = srv.do(t, http.MethodGet, "/v1/me", nil, map[string]string{"X-Api-Key": "jz_unknown"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, data = srv.admin(t, http.MethodGet, "/v1/users/"+user.ID+"/api-keys", nil)
	require.Equal(t, http.StatusOK, status)
	keys := decode[[]APIKeyResponse](t, data)
	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].Key)

	status, data = srv.admin(t, http.MethodDelete, "/v1/api-keys/"+keys[0].ID, nil)
	require.Equal(t, http.StatusNoContent, status, string(data))
	status, _ = srv.do(t, http.MethodGet, "/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = srv.admin(t, http.MethodDelete, "/v1/api-keys/"+keys[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCasePagination(t *testing.T) {
	srv := newTestServer(t)
	for i := 10; i < 13; i++ {
		status, data := srv.admin(t, http.MethodPost, "/v1/cases", map[string]any{"radicado": radicado(i)})
		require.Equal(t, http.StatusCreated, status, string(data))
	}
	status, data := srv.admin(t, http.MethodGet, "/v1/cases?limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	first := decode[paginatedCases](t, data)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	status, data = srv.admin(t, http.MethodGet, "/v1/cases?limit=2&cursor="+first.NextCursor, nil)
	require.Equal(t, http.StatusOK, status)
	second := decode[paginatedCases](t, data)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	for _, c := range append(first.Items, second.Items...) {
		seen[c.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestImportAndEvents(t *testing.T) {
	srv := newTestServer(t)
	status, data := srv.admin(t, http.MethodPost, "/v1/import", map[string]any{
		"rows": []map[string]any{
			{"radicado": radicado(20), "ingresos": []map[string]any{{"fecha": "2024-08-01"}}},
			{"radicado": radicado(21), "ingresos": []map[string]any{{"fecha": "2024-07-01"}}},
		},
	})
	require.Equal(t, http.StatusOK, status, string(data))
	summary := decode[engine.ImportSummary](t, data)
	assert.Equal(t, 2, summary.Created)
	assert.Zero(t, summary.Failed)

	status, data = srv.admin(t, http.MethodGet, "/v1/queue", nil)
	require.Equal(t, http.StatusOK, status)
	queue := decode[[]QueueEntryResponse](t, data)
	require.Len(t, queue, 2)
	assert.Equal(t, "2024-07-01", *queue[0].OrderingDate)
	assert.Equal(t, 1, queue[0].Turno)
	assert.Equal(t, 2, queue[1].Turno)

	status, data = srv.admin(t, http.MethodPost, "/v1/queue/recompute", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	rec := decode[RecomputeResponse](t, data)
	assert.Equal(t, 2, rec.Queued)
	assert.Zero(t, rec.Changed)

	status, data = srv.admin(t, http.MethodGet, "/v1/events?type=import.completed", nil)
	require.Equal(t, http.StatusOK, status)
	evts := decode[paginatedEvents](t, data)
	require.Len(t, evts.Items, 1)

	status, data = srv.admin(t, http.MethodGet, "/v1/events?limit=1", nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[paginatedEvents](t, data)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)
	status, data = srv.admin(t, http.MethodGet, "/v1/events?limit=1&cursor="+page.NextCursor, nil)
	require.Equal(t, http.StatusOK, status)
	next := decode[paginatedEvents](t, data)
	require.Len(t, next.Items, 1)
	assert.Less(t, next.Items[0].ID, page.Items[0].ID)
}

func TestHandleErrorRetryable(t *testing.T) {
	err := handleError(fmt.Errorf("recompute: %w", engine.ErrRetryable))
	assert.Equal(t, http.StatusServiceUnavailable, err.GetStatus())
	assert.Equal(t, http.StatusNotFound, handleError(fmt.Errorf("case x: %w", repo.ErrNotFound)).GetStatus())
}

type stubEvents struct {
	events []domain.Event
}

func (s stubEvents) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range s.events {
		if e.ID > cursor && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s stubEvents) LatestEventID(context.Context) (int64, error) { return 0, nil }

func TestWebhookDeliverySigned(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
		sigs     []string
		bodies   [][]byte
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r.Header.Get("X-Juzgado-Event"))
		sigs = append(sigs, r.Header.Get("X-Juzgado-Signature"))
		bodies = append(bodies, b)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	src := stubEvents{events: []domain.Event{
		{ID: 1, Type: "case.created", EntityKind: "case", EntityID: "c1", Payload: `{"radicado":"x"}`},
		{ID: 2, Type: "queue.recomputed", EntityKind: "queue", Payload: `{"queued":3}`},
		{ID: 3, Type: "case.state.changed", EntityKind: "case", EntityID: "c1", Payload: `{"from":"P","to":"AP"}`},
	}}
	d := newWebhookDispatcher(src, []config.WebhookConfig{{
		URL:    hook.URL,
		Secret: "s3cret",
		Events: []string{"queue.recomputed", "case.state.changed"},
	}}, zerolog.Nop())
	d.dispatchAll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"queue.recomputed", "case.state.changed"}, received)
	for i := range bodies {
		assert.Equal(t, sign("s3cret", bodies[i]), sigs[i])
	}
	var evt webhookEvent
	require.NoError(t, json.Unmarshal(bodies[0], &evt))
	assert.JSONEq(t, `{"queued":3}`, string(evt.Payload))
	assert.Equal(t, int64(3), d.cursors[0])
}

func TestWebhookFailureKeepsCursor(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer hook.Close()
	src := stubEvents{events: []domain.Event{{ID: 7, Type: "case.created"}}}
	d := newWebhookDispatcher(src, []config.WebhookConfig{{URL: hook.URL}}, zerolog.Nop())
	d.dispatchAll(context.Background())
	assert.Equal(t, int64(0), d.cursors[0])
}
