package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"juzgado/internal/events"
	"juzgado/internal/lifecycle"
	"juzgado/internal/repo"
)

// ImportRow is one case in a bulk import file, with any history to attach.
type ImportRow struct {
	Radicado      string             `json:"radicado" yaml:"radicado"`
	RadicadoCorto string             `json:"radicado_corto,omitempty" yaml:"radicado_corto"`
	Demandante    string             `json:"demandante,omitempty" yaml:"demandante"`
	Demandado     string             `json:"demandado,omitempty" yaml:"demandado"`
	JuzgadoOrigen string             `json:"juzgado_origen,omitempty" yaml:"juzgado_origen"`
	TipoSolicitud string             `json:"tipo_solicitud,omitempty" yaml:"tipo_solicitud"`
	Responsable   string             `json:"responsable,omitempty" yaml:"responsable"`
	FechaIngreso  lifecycle.NullDate `json:"fecha_ingreso" yaml:"fecha_ingreso"`
	Ingresos      []IntakeInput      `json:"ingresos,omitempty" yaml:"ingresos"`
	Estados       []StatusInput      `json:"estados,omitempty" yaml:"estados"`
	Actuaciones   []ActionInput      `json:"actuaciones,omitempty" yaml:"actuaciones"`
}

type ImportResult struct {
	Row      int             `json:"row"`
	Radicado string          `json:"radicado"`
	CaseID   string          `json:"case_id,omitempty"`
	Created  bool            `json:"created"`
	Estado   lifecycle.State `json:"estado,omitempty"`
	Turno    *int            `json:"turno,omitempty"`
	Skipped  int             `json:"skipped"`
	Error    string          `json:"error,omitempty"`
}

type ImportSummary struct {
	Rows    int            `json:"rows"`
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Failed  int            `json:"failed"`
	Results []ImportResult `json:"results"`
}

// ParseImportFile reads a YAML or JSON list of rows.
func ParseImportFile(data []byte) ([]ImportRow, error) {
	var rows []ImportRow
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("invalid import file: %w", err)
	}
	return rows, nil
}

// ImportRows upserts cases by radicado. Each row commits on its own, so a bad
// row is reported and the rest still land.
func (e Engine) ImportRows(ctx context.Context, rows []ImportRow, actorID string) (ImportSummary, error) {
	sum := ImportSummary{Rows: len(rows), Results: make([]ImportResult, 0, len(rows))}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := e.importOne(ctx, row, actorID)
		res.Row = i + 1
		if res.Radicado == "" {
			res.Radicado = row.Radicado
		}
		switch {
		case err != nil:
			res.Error = err.Error()
			sum.Failed++
			e.Log.Warn().Int("row", res.Row).Str("radicado", row.Radicado).Err(err).Msg("import row failed")
		case res.Created:
			sum.Created++
		default:
			sum.Updated++
		}
		sum.Results = append(sum.Results, res)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return sum, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, events.ImportCompleted, "import", "", actor(actorID), events.EventPayload{
		"rows": sum.Rows, "created": sum.Created, "updated": sum.Updated, "failed": sum.Failed,
	}); err != nil {
		return sum, err
	}
	return sum, tx.Commit()
}

func (e Engine) importOne(ctx context.Context, row ImportRow, actorID string) (ImportResult, error) {
	radicado, err := NormalizeRadicado(row.Radicado)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Radicado: radicado}
	tx, err := e.begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	var prev snapshot
	existing, err := e.Repo.GetCaseByRadicado(ctx, tx, radicado)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		created, _, err := e.createCaseTx(ctx, tx, CaseCreateOptions{
			Radicado:      radicado,
			RadicadoCorto: row.RadicadoCorto,
			Demandante:    row.Demandante,
			Demandado:     row.Demandado,
			JuzgadoOrigen: row.JuzgadoOrigen,
			TipoSolicitud: row.TipoSolicitud,
			Responsable:   row.Responsable,
			FechaIngreso:  row.FechaIngreso,
			ActorID:       actorID,
		})
		if err != nil {
			return res, err
		}
		res.CaseID, res.Created = created.ID, true
		prev = snapshot{State: created.Estado}
	case err != nil:
		return res, err
	default:
		res.CaseID = existing.ID
		if prev, err = e.snapshot(ctx, tx, existing.ID); err != nil {
			return res, err
		}
		if err := e.Repo.UpdateCaseFields(ctx, tx, existing.ID, importFields(row), e.stamp()); err != nil {
			return res, err
		}
	}
	skipped, err := e.importHistory(ctx, tx, res.CaseID, row, actorID)
	if err != nil {
		return res, err
	}
	res.Skipped = skipped
	c, _, err := e.settle(ctx, tx, res.CaseID, prev, nil, actorID)
	if err != nil {
		return res, err
	}
	res.Estado, res.Turno = c.Estado, c.Turno
	return res, tx.Commit()
}

// importFields keeps stored values for anything the row leaves blank.
func importFields(row ImportRow) repo.CaseFields {
	pick := func(v string) *string {
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return &v
	}
	f := repo.CaseFields{
		RadicadoCorto: pick(row.RadicadoCorto),
		Demandante:    pick(row.Demandante),
		Demandado:     pick(row.Demandado),
		JuzgadoOrigen: pick(row.JuzgadoOrigen),
		TipoSolicitud: pick(row.TipoSolicitud),
		Responsable:   pick(row.Responsable),
	}
	if row.FechaIngreso.Valid {
		d := row.FechaIngreso
		f.FechaIngreso = &d
	}
	return f
}

// importHistory adds the row's intakes, statuses and actions, skipping ones
// already recorded so re-running a file is harmless.
func (e Engine) importHistory(ctx context.Context, tx *sql.Tx, caseID string, row ImportRow, actorID string) (int, error) {
	skipped := 0
	intakes, err := e.Repo.ListIntakes(ctx, tx, caseID)
	if err != nil {
		return 0, err
	}
	for _, in := range row.Ingresos {
		dup := false
		for _, have := range intakes {
			if have.Fecha.Same(in.Fecha) && have.Solicitud == strings.TrimSpace(in.Solicitud) {
				dup = true
				break
			}
		}
		if dup {
			skipped++
			continue
		}
		added, err := e.insertIntake(ctx, tx, caseID, in, actorID)
		if err != nil {
			return 0, err
		}
		intakes = append(intakes, added)
	}
	statuses, err := e.Repo.ListStatuses(ctx, tx, caseID)
	if err != nil {
		return 0, err
	}
	for _, in := range row.Estados {
		dup := false
		for _, have := range statuses {
			if have.Fecha.Same(in.Fecha) && have.Clase == strings.TrimSpace(in.Clase) && have.Auto == strings.TrimSpace(in.Auto) {
				dup = true
				break
			}
		}
		if dup {
			skipped++
			continue
		}
		added, err := e.insertStatus(ctx, tx, caseID, in, actorID)
		if err != nil {
			return 0, err
		}
		statuses = append(statuses, added)
	}
	actions, err := e.Repo.ListActions(ctx, tx, caseID)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, a := range actions {
		if a.Secuencia >= next {
			next = a.Secuencia + 1
		}
	}
	for _, in := range row.Actuaciones {
		desc := strings.TrimSpace(in.Descripcion)
		if desc == "" {
			return 0, errors.New("actuacion descripcion is required")
		}
		dup := false
		for _, have := range actions {
			if have.Descripcion == desc && have.Fecha.Same(in.Fecha) {
				dup = true
				break
			}
		}
		if dup {
			skipped++
			continue
		}
		seq := in.Secuencia
		if seq <= 0 {
			seq = next
		}
		if seq >= next {
			next = seq + 1
		}
		a := domainAction(newID(), caseID, seq, desc, in, e.stamp())
		if err := e.Repo.InsertAction(ctx, tx, a); err != nil {
			return 0, err
		}
		if err := e.Events.Append(ctx, tx, events.ActionAdded, "case", caseID, actor(actorID), events.EventPayload{
			"action_id": a.ID, "secuencia": a.Secuencia,
		}); err != nil {
			return 0, err
		}
		actions = append(actions, a)
	}
	return skipped, nil
}
