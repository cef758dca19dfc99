package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"juzgado/internal/db"
	"juzgado/internal/events"
	"juzgado/internal/lifecycle"
	"juzgado/internal/repo"
)

// ErrRetryable marks failures where the transaction was rolled back and the
// operation can simply be run again.
var ErrRetryable = errors.New("retryable")

type retryableError struct {
	op  string
	err error
}

func (e *retryableError) Error() string   { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *retryableError) Unwrap() []error { return []error{ErrRetryable, e.err} }

func retryable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{op: op, err: err}
}

// RecomputeResult summarizes a queue renumbering.
type RecomputeResult struct {
	Queued   int `json:"queued"`
	Changed  int `json:"changed"`
	Excluded int `json:"excluded"`
}

// Queue keeps turno numbers dense and ordered by each case's ordering key.
type Queue struct {
	DB      *sql.DB
	Dialect db.Dialect
	Repo    repo.Repo
	Events  events.Writer
	Log     zerolog.Logger
}

// Lock serializes queue writers for the rest of tx. SQLite transactions are opened
// with _txlock=immediate so the writer lock is already held.
func (q Queue) Lock(ctx context.Context, tx *sql.Tx) error {
	if q.Dialect != db.Postgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('turno-recompute'))`); err != nil {
		return retryable("lock queue", err)
	}
	return nil
}

// AssignOnTransitionToAP gives a case that just became AP its place in the queue.
func (q Queue) AssignOnTransitionToAP(ctx context.Context, tx *sql.Tx, caseID string) (RecomputeResult, error) {
	res, err := q.Recompute(ctx, tx)
	if err != nil {
		return res, err
	}
	q.Log.Debug().Str("case_id", caseID).Int("queued", res.Queued).Msg("case entered queue")
	return res, nil
}

// ClearOnTransitionFromAP drops a case's turno and closes the gap it leaves.
func (q Queue) ClearOnTransitionFromAP(ctx context.Context, tx *sql.Tx, caseID string) (RecomputeResult, error) {
	if err := q.Repo.SetTurno(ctx, tx, caseID, nil); err != nil {
		return RecomputeResult{}, retryable("clear turno", err)
	}
	res, err := q.Recompute(ctx, tx)
	if err != nil {
		return res, err
	}
	q.Log.Debug().Str("case_id", caseID).Int("queued", res.Queued).Msg("case left queue")
	return res, nil
}

// Recompute renumbers every AP case inside tx. Rows whose number changes are
// released before any new number is written so the unique index never trips.
func (q Queue) Recompute(ctx context.Context, tx *sql.Tx) (RecomputeResult, error) {
	var res RecomputeResult
	cands, err := q.Repo.QueueCandidates(ctx, tx)
	if err != nil {
		return res, retryable("load queue candidates", err)
	}
	held, err := q.Repo.TurnoHolders(ctx, tx)
	if err != nil {
		return res, retryable("load current turnos", err)
	}
	slots := lifecycle.Allocate(cands)
	plan := lifecycle.Positions(slots)
	res.Queued = len(slots)
	res.Excluded = len(cands) - len(slots)

	for id, turno := range held {
		if plan[id] == turno {
			continue
		}
		if err := q.Repo.SetTurno(ctx, tx, id, nil); err != nil {
			return res, retryable("release turno", err)
		}
		if _, queued := plan[id]; !queued {
			res.Changed++
		}
	}
	for _, s := range slots {
		if held[s.CaseID] == s.Turno {
			continue
		}
		turno := s.Turno
		if err := q.Repo.SetTurno(ctx, tx, s.CaseID, &turno); err != nil {
			return res, retryable("assign turno", err)
		}
		res.Changed++
	}
	return res, nil
}

// RecomputeAll renumbers the whole queue in its own transaction.
func (q Queue) RecomputeAll(ctx context.Context, actorID string) (RecomputeResult, error) {
	start := time.Now()
	tx, err := q.DB.BeginTx(ctx, nil)
	if err != nil {
		return RecomputeResult{}, retryable("begin recompute", err)
	}
	defer tx.Rollback()
	if err := q.Lock(ctx, tx); err != nil {
		return RecomputeResult{}, err
	}
	res, err := q.Recompute(ctx, tx)
	if err != nil {
		return res, err
	}
	if err := q.Events.Append(ctx, tx, events.QueueRecomputed, "queue", "", actorID, events.EventPayload{
		"queued": res.Queued, "changed": res.Changed, "excluded": res.Excluded,
	}); err != nil {
		return res, retryable("record recompute", err)
	}
	if err := tx.Commit(); err != nil {
		return res, retryable("commit recompute", err)
	}
	q.Log.Info().Int("queued", res.Queued).Int("changed", res.Changed).Int("excluded", res.Excluded).
		Dur("took", time.Since(start)).Msg("queue recomputed")
	return res, nil
}
