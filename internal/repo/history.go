package repo

import (
	"context"
	"database/sql"

	"juzgado/internal/domain"
)

func scanIntake(row rowScanner) (domain.Intake, error) {
	var in domain.Intake
	var ubicacion sql.NullString
	err := row.Scan(&in.ID, &in.CaseID, &in.Fecha, &in.Solicitud, &in.Observaciones, &ubicacion, &in.CreatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	in.Ubicacion = strPtr(ubicacion)
	return in, err
}

const intakeColumns = `id,case_id,fecha,COALESCE(solicitud,''),COALESCE(observaciones,''),ubicacion,created_at`

func (r Repo) InsertIntake(ctx context.Context, q Querier, in domain.Intake) error {
	_, err := r.exec(ctx, r.orDB(q), `INSERT INTO intakes(id,case_id,fecha,solicitud,observaciones,ubicacion,created_at) VALUES (?,?,?,?,?,?,?)`,
		in.ID, in.CaseID, in.Fecha, nullable(in.Solicitud), nullable(in.Observaciones), nullableStrPtr(in.Ubicacion), in.CreatedAt)
	return err
}

func (r Repo) GetIntake(ctx context.Context, q Querier, caseID, id string) (domain.Intake, error) {
	return scanIntake(r.queryRow(ctx, r.orDB(q), `SELECT `+intakeColumns+` FROM intakes WHERE case_id=? AND id=?`, caseID, id))
}

func (r Repo) ListIntakes(ctx context.Context, q Querier, caseID string) ([]domain.Intake, error) {
	rows, err := r.query(ctx, r.orDB(q), `SELECT `+intakeColumns+` FROM intakes WHERE case_id=? ORDER BY fecha, id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Intake
	for rows.Next() {
		in, err := scanIntake(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

// UpdateIntake rewrites the mutable columns of an intake.
func (r Repo) UpdateIntake(ctx context.Context, q Querier, in domain.Intake) error {
	res, err := r.exec(ctx, r.orDB(q), `UPDATE intakes SET fecha=?, solicitud=?, observaciones=?, ubicacion=? WHERE case_id=? AND id=?`,
		in.Fecha, nullable(in.Solicitud), nullable(in.Observaciones), nullableStrPtr(in.Ubicacion), in.CaseID, in.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteIntake(ctx context.Context, q Querier, caseID, id string) error {
	res, err := r.exec(ctx, r.orDB(q), `DELETE FROM intakes WHERE case_id=? AND id=?`, caseID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const statusColumns = `id,case_id,fecha,COALESCE(clase,''),COALESCE(auto,''),COALESCE(observaciones,''),created_at`

func scanStatus(row rowScanner) (domain.StatusEvent, error) {
	var s domain.StatusEvent
	err := row.Scan(&s.ID, &s.CaseID, &s.Fecha, &s.Clase, &s.Auto, &s.Observaciones, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertStatus(ctx context.Context, q Querier, s domain.StatusEvent) error {
	_, err := r.exec(ctx, r.orDB(q), `INSERT INTO statuses(id,case_id,fecha,clase,auto,observaciones,created_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.CaseID, s.Fecha, nullable(s.Clase), nullable(s.Auto), nullable(s.Observaciones), s.CreatedAt)
	return err
}

func (r Repo) GetStatus(ctx context.Context, q Querier, caseID, id string) (domain.StatusEvent, error) {
	return scanStatus(r.queryRow(ctx, r.orDB(q), `SELECT `+statusColumns+` FROM statuses WHERE case_id=? AND id=?`, caseID, id))
}

func (r Repo) ListStatuses(ctx context.Context, q Querier, caseID string) ([]domain.StatusEvent, error) {
	rows, err := r.query(ctx, r.orDB(q), `SELECT `+statusColumns+` FROM statuses WHERE case_id=? ORDER BY fecha, id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusEvent
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateStatus(ctx context.Context, q Querier, s domain.StatusEvent) error {
	res, err := r.exec(ctx, r.orDB(q), `UPDATE statuses SET fecha=?, clase=?, auto=?, observaciones=? WHERE case_id=? AND id=?`,
		s.Fecha, nullable(s.Clase), nullable(s.Auto), nullable(s.Observaciones), s.CaseID, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteStatus(ctx context.Context, q Querier, caseID, id string) error {
	res, err := r.exec(ctx, r.orDB(q), `DELETE FROM statuses WHERE case_id=? AND id=?`, caseID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertAction(ctx context.Context, q Querier, a domain.Action) error {
	_, err := r.exec(ctx, r.orDB(q), `INSERT INTO actions(id,case_id,secuencia,descripcion,fecha,origen,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.CaseID, a.Secuencia, a.Descripcion, a.Fecha, nullable(a.Origen), a.CreatedAt)
	return err
}

func (r Repo) ListActions(ctx context.Context, q Querier, caseID string) ([]domain.Action, error) {
	rows, err := r.query(ctx, r.orDB(q), `SELECT id,case_id,secuencia,descripcion,fecha,COALESCE(origen,''),created_at FROM actions WHERE case_id=? ORDER BY secuencia, id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Action
	for rows.Next() {
		var a domain.Action
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Secuencia, &a.Descripcion, &a.Fecha, &a.Origen, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// NextActionSequence returns max(secuencia)+1 for a case.
func (r Repo) NextActionSequence(ctx context.Context, q Querier, caseID string) (int, error) {
	var n int
	err := r.queryRow(ctx, r.orDB(q), `SELECT COALESCE(MAX(secuencia),0) FROM actions WHERE case_id=?`, caseID).Scan(&n)
	return n + 1, err
}

func (r Repo) DeleteAction(ctx context.Context, q Querier, caseID, id string) error {
	res, err := r.exec(ctx, r.orDB(q), `DELETE FROM actions WHERE case_id=? AND id=?`, caseID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
