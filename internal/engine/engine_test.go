package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juzgado/internal/config"
	"juzgado/internal/db"
	"juzgado/internal/domain"
	"juzgado/internal/engine"
	"juzgado/internal/lifecycle"
	"juzgado/internal/migrate"
	"juzgado/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var pinned = time.Date(2024, 10, 1, 15, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn, zerolog.Nop()))
	eng := engine.New(conn, config.Default("Juzgado de prueba"), zerolog.Nop())
	eng.Now = func() time.Time { return pinned }
	return &testEnv{Engine: eng, Ctx: context.Background()}
}

func rad(n int) string {
	return fmt.Sprintf("110013103001-2024-%05d-00", n)
}

func day(s string) lifecycle.NullDate {
	return lifecycle.NullDateOf(s)
}

func (env *testEnv) caseWithIntake(t *testing.T, n int, fecha string) domain.Case {
	t.Helper()
	c, _, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{
		Radicado:   rad(n),
		Demandante: fmt.Sprintf("Demandante %d", n),
		Intake:     &engine.IntakeInput{Fecha: day(fecha), Solicitud: "tutela"},
		ActorID:    "tester",
	})
	require.NoError(t, err)
	return c
}

func (env *testEnv) get(t *testing.T, id string) domain.Case {
	t.Helper()
	c, err := env.Engine.Repo.GetCase(env.Ctx, nil, id)
	require.NoError(t, err)
	return c
}

func (env *testEnv) queueIDs(t *testing.T) []string {
	t.Helper()
	entries, err := env.Engine.Repo.ListQueue(env.Ctx, nil, 0)
	require.NoError(t, err)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.CaseID
	}
	return ids
}

// assertQueueInvariant checks turnos are exactly 1..N and held only by AP cases with an ordering key.
func (env *testEnv) assertQueueInvariant(t *testing.T) {
	t.Helper()
	entries, err := env.Engine.Repo.ListQueue(env.Ctx, nil, 0)
	require.NoError(t, err)
	for i, e := range entries {
		require.Equal(t, i+1, e.Turno, "turnos must be dense")
	}
	cases, err := env.Engine.Repo.ListCases(env.Ctx, nil, repo.CaseFilters{})
	require.NoError(t, err)
	for _, c := range cases {
		key, err := env.Engine.Repo.OrderingKey(env.Ctx, nil, c.ID)
		require.NoError(t, err)
		queued := c.Estado == lifecycle.StateAwaiting && key.Valid
		assert.Equal(t, queued, c.Turno != nil, "case %s estado=%s key=%s", c.Radicado, c.Estado, key)
	}
}

func turno(c domain.Case) int {
	if c.Turno == nil {
		return 0
	}
	return *c.Turno
}

func TestThreeCaseScenario(t *testing.T) {
	env := newTestEnv(t)
	c1 := env.caseWithIntake(t, 1, "2024-03-01")
	c2 := env.caseWithIntake(t, 2, "2024-01-15")
	c3 := env.caseWithIntake(t, 3, "2023-01-01")
	_, tr, err := env.Engine.AddStatus(env.Ctx, c3.ID, engine.StatusInput{Fecha: day("2023-06-01"), Clase: "fallo"}, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateAwaiting, tr.From)
	assert.Equal(t, lifecycle.StateInactiveResolved, tr.To)
	assert.Equal(t, engine.QueueClear, tr.Queue)

	assert.Equal(t, lifecycle.StateAwaiting, env.get(t, c1.ID).Estado)
	assert.Equal(t, lifecycle.StateAwaiting, env.get(t, c2.ID).Estado)
	assert.Equal(t, 1, turno(env.get(t, c2.ID)))
	assert.Equal(t, 2, turno(env.get(t, c1.ID)))
	assert.Nil(t, env.get(t, c3.ID).Turno)
	assert.Equal(t, []string{c2.ID, c1.ID}, env.queueIDs(t))
	env.assertQueueInvariant(t)
}

func TestCreateCaseDerivesShortRadicadoAndPending(t *testing.T) {
	env := newTestEnv(t)
	c, tr, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{Radicado: "11001 3103 001 2024 00012 00"})
	require.NoError(t, err)
	assert.Equal(t, "11001310300120240001200", c.Radicado)
	assert.Equal(t, "2024-00012", c.RadicadoCorto)
	assert.Equal(t, lifecycle.StatePending, c.Estado)
	assert.Equal(t, engine.QueueNone, tr.Queue)
	assert.Nil(t, c.Turno)

	_, _, err = env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{Radicado: "11001310300120240001200"})
	assert.ErrorIs(t, err, engine.ErrDuplicate)

	_, _, err = env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{Radicado: "123"})
	assert.Error(t, err)

	_, _, err = env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{
		Radicado: rad(9), Intake: &engine.IntakeInput{Fecha: day("someday")},
	})
	assert.Error(t, err, "intake without a usable date is rejected")
}

func TestFIFOByEarliestIntake(t *testing.T) {
	env := newTestEnv(t)
	late := env.caseWithIntake(t, 1, "2024-02-01")
	early := env.caseWithIntake(t, 2, "2024-01-01")
	assert.Equal(t, 1, turno(env.get(t, early.ID)))
	assert.Equal(t, 2, turno(env.get(t, late.ID)))

	// a second, later intake keeps the case ordered by its first one
	_, _, err := env.Engine.AddIntake(env.Ctx, early.ID, engine.IntakeInput{Fecha: day("2024-06-01")}, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, turno(env.get(t, early.ID)))
}

func TestTieBreaksByCreationOrder(t *testing.T) {
	env := newTestEnv(t)
	first := env.caseWithIntake(t, 1, "2024-01-01")
	second := env.caseWithIntake(t, 2, "2024-01-01")
	assert.Equal(t, []string{first.ID, second.ID}, env.queueIDs(t))
}

func TestSameDayStatusResolves(t *testing.T) {
	env := newTestEnv(t)
	c := env.caseWithIntake(t, 1, "2024-09-01")
	_, tr, err := env.Engine.AddStatus(env.Ctx, c.ID, engine.StatusInput{Fecha: day("2024-09-01")}, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateActiveResolved, tr.To)
	assert.Nil(t, env.get(t, c.ID).Turno)
}

func TestAwaitingWithoutOrderingKeyIsExcluded(t *testing.T) {
	env := newTestEnv(t)
	queued := env.caseWithIntake(t, 1, "2024-05-01")
	c, _, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{Radicado: rad(2)})
	require.NoError(t, err)

	ap := lifecycle.StateAwaiting
	c, tr, err := env.Engine.UpdateCase(env.Ctx, engine.CaseUpdateOptions{ID: c.ID, Estado: &ap, ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, engine.QueueAssign, tr.Queue)
	assert.Equal(t, lifecycle.StateAwaiting, c.Estado)
	assert.Nil(t, c.Turno)

	res, err := env.Engine.RecomputeQueue(env.Ctx, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 1, res.Excluded)
	env.assertQueueInvariant(t)

	// giving it its own intake date lets it queue, ahead of the later case
	fecha := day("2024-01-10")
	c, tr, err = env.Engine.UpdateCase(env.Ctx, engine.CaseUpdateOptions{ID: c.ID, Fields: repo.CaseFields{FechaIngreso: &fecha}})
	require.NoError(t, err)
	assert.Equal(t, engine.QueueReorder, tr.Queue)
	assert.Equal(t, 1, turno(c))
	assert.Equal(t, 2, turno(env.get(t, queued.ID)))
	env.assertQueueInvariant(t)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	for i, d := range []string{"2024-04-01", "2024-01-01", "2024-03-01", "2024-02-01"} {
		env.caseWithIntake(t, i+1, d)
	}
	before := env.queueIDs(t)
	res, err := env.Engine.RecomputeQueue(env.Ctx, "tester")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Queued)
	assert.Equal(t, 0, res.Changed)
	assert.Equal(t, before, env.queueIDs(t))

	res, err = env.Engine.RecomputeQueue(env.Ctx, "tester")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Changed)
	assert.Equal(t, before, env.queueIDs(t))
}

func TestRoundTripRegainsPosition(t *testing.T) {
	env := newTestEnv(t)
	a := env.caseWithIntake(t, 1, "2024-01-01")
	b := env.caseWithIntake(t, 2, "2024-02-01")
	c := env.caseWithIntake(t, 3, "2024-03-01")

	_, tr, err := env.Engine.AddStatus(env.Ctx, a.ID, engine.StatusInput{Fecha: day("2024-04-01")}, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateActiveResolved, tr.To)
	assert.Equal(t, []string{b.ID, c.ID}, env.queueIDs(t))
	env.assertQueueInvariant(t)

	_, tr, err = env.Engine.AddIntake(env.Ctx, a.ID, engine.IntakeInput{Fecha: day("2024-05-01")}, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateAwaiting, tr.To)
	assert.Equal(t, engine.QueueAssign, tr.Queue)
	require.NotNil(t, tr.Turno)
	assert.Equal(t, 1, *tr.Turno)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, env.queueIDs(t))
	env.assertQueueInvariant(t)
}

func TestDensityAcrossMutations(t *testing.T) {
	env := newTestEnv(t)
	var cases []domain.Case
	for i, d := range []string{"2024-03-05", "2024-01-20", "2023-11-02", "2024-07-14", "2024-02-29", "2024-06-01"} {
		cases = append(cases, env.caseWithIntake(t, i+1, d))
	}
	env.assertQueueInvariant(t)

	_, _, err := env.Engine.AddStatus(env.Ctx, cases[2].ID, engine.StatusInput{Fecha: day("2024-08-01")}, "tester")
	require.NoError(t, err)
	env.assertQueueInvariant(t)

	require.NoError(t, env.Engine.DeleteCase(env.Ctx, cases[1].ID, "tester"))
	env.assertQueueInvariant(t)

	intakes, err := env.Engine.Repo.ListIntakes(env.Ctx, nil, cases[3].ID)
	require.NoError(t, err)
	tr, err := env.Engine.DeleteIntake(env.Ctx, cases[3].ID, intakes[0].ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatePending, tr.To)
	env.assertQueueInvariant(t)

	statuses, err := env.Engine.Repo.ListStatuses(env.Ctx, nil, cases[2].ID)
	require.NoError(t, err)
	tr, err = env.Engine.DeleteStatus(env.Ctx, cases[2].ID, statuses[0].ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateAwaiting, tr.To)
	env.assertQueueInvariant(t)

	entries, err := env.Engine.Repo.ListQueue(env.Ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, cases[2].ID, entries[0].CaseID, "oldest intake comes first again")
}

func TestUpdateIntakeDateReorders(t *testing.T) {
	env := newTestEnv(t)
	a := env.caseWithIntake(t, 1, "2024-01-01")
	b := env.caseWithIntake(t, 2, "2024-02-01")
	intakes, err := env.Engine.Repo.ListIntakes(env.Ctx, nil, b.ID)
	require.NoError(t, err)
	earlier := day("2023-12-01")
	_, tr, err := env.Engine.UpdateIntake(env.Ctx, b.ID, intakes[0].ID, engine.IntakePatch{Fecha: &earlier}, "tester")
	require.NoError(t, err)
	assert.Equal(t, engine.QueueReorder, tr.Queue)
	assert.Equal(t, []string{b.ID, a.ID}, env.queueIDs(t))
}

func TestUpdateStatusDateCanReopen(t *testing.T) {
	env := newTestEnv(t)
	c := env.caseWithIntake(t, 1, "2024-03-01")
	st, _, err := env.Engine.AddStatus(env.Ctx, c.ID, engine.StatusInput{Fecha: day("2024-04-01")}, "tester")
	require.NoError(t, err)
	before := day("2024-02-01")
	_, tr, err := env.Engine.UpdateStatus(env.Ctx, c.ID, st.ID, engine.StatusPatch{Fecha: &before}, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateAwaiting, tr.To)
	assert.Equal(t, 1, turno(env.get(t, c.ID)))
}

func TestManualStateOverride(t *testing.T) {
	env := newTestEnv(t)
	c := env.caseWithIntake(t, 1, "2024-03-01")
	other := env.caseWithIntake(t, 2, "2024-04-01")
	ir := lifecycle.StateInactiveResolved
	c, tr, err := env.Engine.UpdateCase(env.Ctx, engine.CaseUpdateOptions{ID: c.ID, Estado: &ir})
	require.NoError(t, err)
	assert.Equal(t, engine.QueueClear, tr.Queue)
	assert.Nil(t, c.Turno)
	assert.Equal(t, 1, turno(env.get(t, other.ID)))

	// a descriptive edit keeps the manual state
	name := "Nuevo demandante"
	c, _, err = env.Engine.UpdateCase(env.Ctx, engine.CaseUpdateOptions{ID: c.ID, Fields: repo.CaseFields{Demandante: &name}})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateInactiveResolved, c.Estado)
	assert.Equal(t, "Nuevo demandante", c.Demandante)

	bad := lifecycle.State("XX")
	_, _, err = env.Engine.UpdateCase(env.Ctx, engine.CaseUpdateOptions{ID: c.ID, Estado: &bad})
	assert.Error(t, err)
}

func TestReclassifyAllAgesResolutions(t *testing.T) {
	env := newTestEnv(t)
	c := env.caseWithIntake(t, 1, "2023-12-01")
	_, tr, err := env.Engine.AddStatus(env.Ctx, c.ID, engine.StatusInput{Fecha: day("2024-01-01")}, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateActiveResolved, tr.To)
	queued := env.caseWithIntake(t, 2, "2024-05-01")

	env.Engine.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	res, err := env.Engine.ReclassifyAll(env.Ctx, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, 1, res.Queue.Queued)
	assert.Equal(t, lifecycle.StateInactiveResolved, env.get(t, c.ID).Estado)
	assert.Equal(t, 1, turno(env.get(t, queued.ID)))

	tr, err = env.Engine.Reclassify(env.Ctx, c.ID, "tester")
	require.NoError(t, err)
	assert.False(t, tr.Changed())
}

func TestActionsNeverChangeState(t *testing.T) {
	env := newTestEnv(t)
	c, _, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{Radicado: rad(1)})
	require.NoError(t, err)
	a1, err := env.Engine.AddAction(env.Ctx, c.ID, engine.ActionInput{Descripcion: "Auto admisorio", Fecha: day("2024-09-01")}, "tester")
	require.NoError(t, err)
	a2, err := env.Engine.AddAction(env.Ctx, c.ID, engine.ActionInput{Descripcion: "Notificación"}, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, a1.Secuencia)
	assert.Equal(t, 2, a2.Secuencia)
	assert.Equal(t, lifecycle.StatePending, env.get(t, c.ID).Estado)

	desc, err := env.Engine.Describe(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatePending, desc.Derived.State)
	assert.Equal(t, 2, desc.Actions.Actions)
	assert.Equal(t, "2024-10-01", desc.Today)

	require.NoError(t, env.Engine.DeleteAction(env.Ctx, c.ID, a1.ID, "tester"))
	acts, err := env.Engine.Repo.ListActions(env.Ctx, nil, c.ID)
	require.NoError(t, err)
	assert.Len(t, acts, 1)

	_, err = env.Engine.AddAction(env.Ctx, c.ID, engine.ActionInput{}, "tester")
	assert.Error(t, err)
}

func TestMissingRecords(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Engine.AddIntake(env.Ctx, "nope", engine.IntakeInput{Fecha: day("2024-01-01")}, "tester")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, env.Engine.DeleteCase(env.Ctx, "nope", "tester"), repo.ErrNotFound)
	c := env.caseWithIntake(t, 1, "2024-01-01")
	_, err = env.Engine.DeleteStatus(env.Ctx, c.ID, "nope", "tester")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	env.assertQueueInvariant(t)
}

func TestImportRows(t *testing.T) {
	env := newTestEnv(t)
	data := []byte(`
- radicado: "11001-3103-001-2024-00001-00"
  demandante: Ana
  ingresos:
    - fecha: 15/01/2024
      solicitud: tutela
- radicado: "11001310300120240000200"
  fecha_ingreso: 2024-01-01
  ingresos:
    - fecha: 2024-03-01
  estados:
    - fecha: 2024-04-01
      clase: fallo
  actuaciones:
    - descripcion: Sentencia
      fecha: 2024-04-01
- radicado: "bad"
`)
	rows, err := engine.ParseImportFile(data)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	sum, err := env.Engine.ImportRows(env.Ctx, rows, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, 1, sum.Failed)
	assert.NotEmpty(t, sum.Results[2].Error)
	assert.Equal(t, lifecycle.StateAwaiting, sum.Results[0].Estado)
	require.NotNil(t, sum.Results[0].Turno)
	assert.Equal(t, 1, *sum.Results[0].Turno)
	assert.Equal(t, lifecycle.StateActiveResolved, sum.Results[1].Estado)
	assert.Nil(t, sum.Results[1].Turno)

	// re-running the same file adds nothing
	sum, err = env.Engine.ImportRows(env.Ctx, rows[:2], "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Updated)
	assert.Equal(t, 1, sum.Results[0].Skipped)
	assert.Equal(t, 3, sum.Results[1].Skipped)
	intakes, err := env.Engine.Repo.ListIntakes(env.Ctx, nil, sum.Results[0].CaseID)
	require.NoError(t, err)
	assert.Len(t, intakes, 1)
	env.assertQueueInvariant(t)

	c := env.get(t, sum.Results[0].CaseID)
	assert.Equal(t, "Ana", c.Demandante)
	assert.Equal(t, "2024-00001", c.RadicadoCorto)
}

func TestStatsAndEvents(t *testing.T) {
	env := newTestEnv(t)
	env.caseWithIntake(t, 1, "2024-01-01")
	_, _, err := env.Engine.CreateCase(env.Ctx, engine.CaseCreateOptions{Radicado: rad(2)})
	require.NoError(t, err)
	stats, err := env.Engine.Stats(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.ByState[lifecycle.StateAwaiting])
	assert.Equal(t, 1, stats.ByState[lifecycle.StatePending])
	assert.Equal(t, 0, stats.ByState[lifecycle.StateInactiveResolved])

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: "case.state.changed"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Contains(t, evts[0].Payload, `"to":"AP"`)
	assert.Equal(t, "tester", evts[0].ActorID)
}

func TestUsersAndAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: " Ana ", Role: "secretario", Password: "clave-segura"})
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Username)

	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "ana", Role: "secretario", Password: "x"})
	assert.ErrorIs(t, err, engine.ErrDuplicate)
	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "luis", Role: "juez", Password: "x"})
	assert.Error(t, err)

	got, err := env.Engine.Authenticate(env.Ctx, "ANA", "clave-segura")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = env.Engine.Authenticate(env.Ctx, "ana", "wrong")
	assert.Error(t, err)

	key, raw, err := env.Engine.CreateAPIKey(env.Ctx, u.ID, "scanner", "tester")
	require.NoError(t, err)
	assert.Equal(t, u.ID, key.UserID)
	owner, err := env.Engine.Repo.UserByAPIKey(env.Ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner.ID)

	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "tester"))
	_, err = env.Engine.Repo.UserByAPIKey(env.Ctx, raw)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "tester"), repo.ErrNotFound)
}

func TestStoreConfigChangesWindow(t *testing.T) {
	env := newTestEnv(t)
	cfg := config.Default("Juzgado de prueba")
	cfg.Lifecycle.ResolvedWindowDays = 30
	require.NoError(t, env.Engine.StoreConfig(env.Ctx, cfg, "tester"))
	stored, err := env.Engine.Repo.GetOfficeConfig(env.Ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.Lifecycle.ResolvedWindowDays)

	c := env.caseWithIntake(t, 1, "2024-07-01")
	_, tr, err := env.Engine.AddStatus(env.Ctx, c.ID, engine.StatusInput{Fecha: day("2024-08-01")}, "tester")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateInactiveResolved, tr.To)
}
