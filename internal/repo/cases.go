package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"juzgado/internal/domain"
	"juzgado/internal/lifecycle"
)

const caseColumns = `id,radicado,COALESCE(radicado_corto,''),COALESCE(demandante,''),COALESCE(demandado,''),
COALESCE(juzgado_origen,''),COALESCE(tipo_solicitud,''),estado,turno,fecha_ingreso,responsable,created_at,updated_at`

func scanCase(row rowScanner) (domain.Case, error) {
	var c domain.Case
	var estado string
	var turno sql.NullInt64
	var responsable sql.NullString
	err := row.Scan(&c.ID, &c.Radicado, &c.RadicadoCorto, &c.Demandante, &c.Demandado,
		&c.JuzgadoOrigen, &c.TipoSolicitud, &estado, &turno, &c.FechaIngreso, &responsable, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Estado = lifecycle.State(estado)
	if turno.Valid {
		n := int(turno.Int64)
		c.Turno = &n
	}
	c.Responsable = strPtr(responsable)
	return c, nil
}

func (r Repo) InsertCase(ctx context.Context, q Querier, c domain.Case) error {
	_, err := r.exec(ctx, r.orDB(q), `INSERT INTO cases(id,radicado,radicado_corto,demandante,demandado,juzgado_origen,tipo_solicitud,estado,turno,fecha_ingreso,responsable,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Radicado, nullable(c.RadicadoCorto), nullable(c.Demandante), nullable(c.Demandado),
		nullable(c.JuzgadoOrigen), nullable(c.TipoSolicitud), string(c.Estado), nullableIntPtr(c.Turno),
		c.FechaIngreso, nullableStrPtr(c.Responsable), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCase(ctx context.Context, q Querier, id string) (domain.Case, error) {
	return scanCase(r.queryRow(ctx, r.orDB(q), `SELECT `+caseColumns+` FROM cases WHERE id=?`, id))
}

func (r Repo) GetCaseByRadicado(ctx context.Context, q Querier, radicado string) (domain.Case, error) {
	return scanCase(r.queryRow(ctx, r.orDB(q), `SELECT `+caseColumns+` FROM cases WHERE radicado=?`, radicado))
}

// CaseFields is a partial update of the descriptive columns. Nil fields are left alone;
// an empty Responsable clears it.
type CaseFields struct {
	RadicadoCorto *string
	Demandante    *string
	Demandado     *string
	JuzgadoOrigen *string
	TipoSolicitud *string
	Responsable   *string
	FechaIngreso  *lifecycle.NullDate
}

func (f CaseFields) Empty() bool {
	return f.RadicadoCorto == nil && f.Demandante == nil && f.Demandado == nil && f.JuzgadoOrigen == nil &&
		f.TipoSolicitud == nil && f.Responsable == nil && f.FechaIngreso == nil
}

func (r Repo) UpdateCaseFields(ctx context.Context, q Querier, id string, f CaseFields, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v *string) {
		if v == nil {
			return
		}
		fields = append(fields, col+"=?")
		args = append(args, nullable(strings.TrimSpace(*v)))
	}
	set("radicado_corto", f.RadicadoCorto)
	set("demandante", f.Demandante)
	set("demandado", f.Demandado)
	set("juzgado_origen", f.JuzgadoOrigen)
	set("tipo_solicitud", f.TipoSolicitud)
	set("responsable", f.Responsable)
	if f.FechaIngreso != nil {
		fields = append(fields, "fecha_ingreso=?")
		args = append(args, *f.FechaIngreso)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.exec(ctx, r.orDB(q), fmt.Sprintf(`UPDATE cases SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCaseState persists a state. Leaving AP drops the turno in the same statement.
func (r Repo) SetCaseState(ctx context.Context, q Querier, id string, state lifecycle.State, updatedAt string) error {
	query := `UPDATE cases SET estado=?, updated_at=? WHERE id=?`
	if state != lifecycle.StateAwaiting {
		query = `UPDATE cases SET estado=?, turno=NULL, updated_at=? WHERE id=?`
	}
	res, err := r.exec(ctx, r.orDB(q), query, string(state), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTurno writes or clears (nil) a case's queue position.
func (r Repo) SetTurno(ctx context.Context, q Querier, id string, turno *int) error {
	_, err := r.exec(ctx, r.orDB(q), `UPDATE cases SET turno=? WHERE id=?`, nullableIntPtr(turno), id)
	return err
}

func (r Repo) DeleteCase(ctx context.Context, q Querier, id string) error {
	res, err := r.exec(ctx, r.orDB(q), `DELETE FROM cases WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type CaseFilters struct {
	Estado          lifecycle.State
	Responsable     string
	Search          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListCases(ctx context.Context, q Querier, f CaseFilters) ([]domain.Case, error) {
	var clauses []string
	var args []any
	if f.Estado != "" {
		clauses = append(clauses, "estado=?")
		args = append(args, string(f.Estado))
	}
	if f.Responsable != "" {
		clauses = append(clauses, "responsable=?")
		args = append(args, f.Responsable)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		clauses = append(clauses, "(LOWER(radicado) LIKE ? OR LOWER(COALESCE(radicado_corto,'')) LIKE ? OR LOWER(COALESCE(demandante,'')) LIKE ? OR LOWER(COALESCE(demandado,'')) LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + caseColumns + ` FROM cases ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, r.orDB(q), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CaseIDs returns every case id in creation order.
func (r Repo) CaseIDs(ctx context.Context, q Querier) ([]string, error) {
	rows, err := r.query(ctx, r.orDB(q), `SELECT id FROM cases ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) CountCasesByState(ctx context.Context, q Querier) (map[lifecycle.State]int, error) {
	rows, err := r.query(ctx, r.orDB(q), `SELECT estado, count(*) FROM cases GROUP BY estado`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[lifecycle.State]int, len(lifecycle.States))
	for _, s := range lifecycle.States {
		res[s] = 0
	}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		res[lifecycle.State(state)] = count
	}
	return res, rows.Err()
}
