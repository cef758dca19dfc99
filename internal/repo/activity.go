package repo

import (
	"context"
	"database/sql"

	"juzgado/internal/domain"
	"juzgado/internal/lifecycle"
)

// CaseActivity reads the counts and latest dates the classifier works from.
func (r Repo) CaseActivity(ctx context.Context, q Querier, caseID string) (lifecycle.Activity, error) {
	q = r.orDB(q)
	var a lifecycle.Activity
	if err := r.queryRow(ctx, q, `SELECT COUNT(*), MAX(fecha) FROM intakes WHERE case_id=?`, caseID).Scan(&a.Intakes, &a.LastIntake); err != nil {
		return a, err
	}
	if err := r.queryRow(ctx, q, `SELECT COUNT(*), MAX(fecha) FROM statuses WHERE case_id=?`, caseID).Scan(&a.Statuses, &a.LastStatus); err != nil {
		return a, err
	}
	return a, nil
}

func (r Repo) ActionActivity(ctx context.Context, q Querier, caseID string) (lifecycle.ActionActivity, error) {
	var a lifecycle.ActionActivity
	err := r.queryRow(ctx, r.orDB(q), `SELECT COUNT(*), MAX(fecha) FROM actions WHERE case_id=?`, caseID).Scan(&a.Actions, &a.LastAction)
	return a, err
}

const candidateColumns = `c.id, c.estado, (SELECT MIN(i.fecha) FROM intakes i WHERE i.case_id=c.id), c.fecha_ingreso`

func scanCandidate(row rowScanner) (lifecycle.Candidate, error) {
	var cand lifecycle.Candidate
	var estado string
	err := row.Scan(&cand.CaseID, &estado, &cand.FirstIntake, &cand.FechaIngreso)
	if err == sql.ErrNoRows {
		return cand, ErrNotFound
	}
	cand.State = lifecycle.State(estado)
	return cand, err
}

// OrderingKey returns the date a case queues by: its earliest intake, else its own intake date.
func (r Repo) OrderingKey(ctx context.Context, q Querier, caseID string) (lifecycle.NullDate, error) {
	cand, err := scanCandidate(r.queryRow(ctx, r.orDB(q), `SELECT `+candidateColumns+` FROM cases c WHERE c.id=?`, caseID))
	if err != nil {
		return lifecycle.NullDate{}, err
	}
	return cand.Key(), nil
}

// QueueCandidates returns every AP case with the dates its ordering key derives from.
func (r Repo) QueueCandidates(ctx context.Context, q Querier) ([]lifecycle.Candidate, error) {
	rows, err := r.query(ctx, r.orDB(q), `SELECT `+candidateColumns+` FROM cases c WHERE c.estado=?`, string(lifecycle.StateAwaiting))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []lifecycle.Candidate
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, cand)
	}
	return res, rows.Err()
}

// TurnoHolders maps every case currently holding a turno to it.
func (r Repo) TurnoHolders(ctx context.Context, q Querier) (map[string]int, error) {
	rows, err := r.query(ctx, r.orDB(q), `SELECT id, turno FROM cases WHERE turno IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var id string
		var turno int
		if err := rows.Scan(&id, &turno); err != nil {
			return nil, err
		}
		res[id] = turno
	}
	return res, rows.Err()
}

// ListQueue returns the queued cases by turno.
func (r Repo) ListQueue(ctx context.Context, q Querier, limit int) ([]domain.QueueEntry, error) {
	query := `SELECT c.turno, c.id, c.radicado, COALESCE(c.demandante,''), COALESCE(c.demandado,''), c.responsable,
COALESCE((SELECT MIN(i.fecha) FROM intakes i WHERE i.case_id=c.id), c.fecha_ingreso)
FROM cases c WHERE c.turno IS NOT NULL ORDER BY c.turno`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.query(ctx, r.orDB(q), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		var responsable sql.NullString
		if err := rows.Scan(&e.Turno, &e.CaseID, &e.Radicado, &e.Demandante, &e.Demandado, &responsable, &e.OrderingDate); err != nil {
			return nil, err
		}
		e.Responsable = strPtr(responsable)
		res = append(res, e)
	}
	return res, rows.Err()
}
