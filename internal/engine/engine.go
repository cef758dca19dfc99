// Package engine runs every case mutation in one transaction: it re-derives the
// lifecycle state, hands the transition to the coordinator and records the audit event.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"juzgado/internal/config"
	"juzgado/internal/db"
	"juzgado/internal/domain"
	"juzgado/internal/events"
	"juzgado/internal/lifecycle"
	"juzgado/internal/repo"
)

// ErrDuplicate is returned when a unique business key is already taken.
var ErrDuplicate = errors.New("already exists")

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Queue       Queue
	Coordinator Coordinator
	Config      *config.Config
	Now         func() time.Time
	Log         zerolog.Logger
}

func New(conn *db.Conn, cfg *config.Config, log zerolog.Logger) Engine {
	r := repo.New(conn)
	w := events.Writer{Dialect: conn.Dialect}
	q := Queue{DB: conn.DB, Dialect: conn.Dialect, Repo: r, Events: w, Log: log}
	return Engine{
		DB:          conn.DB,
		Repo:        r,
		Events:      w,
		Queue:       q,
		Coordinator: Coordinator{Repo: r, Queue: q},
		Config:      cfg,
		Now:         time.Now,
		Log:         log,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Today is the current calendar day in the office time zone.
func (e Engine) Today() lifecycle.Date {
	return lifecycle.FromTime(e.now().In(e.Config.Location()))
}

// Classifier returns the classifier configured for the office.
func (e Engine) Classifier() lifecycle.Classifier {
	if e.Config == nil {
		return lifecycle.Classifier{}
	}
	return lifecycle.Classifier{WindowDays: e.Config.Lifecycle.ResolvedWindowDays}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func actor(id string) string {
	if id == "" {
		return "system"
	}
	return id
}

// begin opens a write transaction already holding the queue lock.
func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := e.Queue.Lock(ctx, tx); err != nil {
		tx.Rollback()
		return nil, err
	}
	return tx, nil
}

type snapshot struct {
	State lifecycle.State
	Key   lifecycle.NullDate
}

func (e Engine) snapshot(ctx context.Context, tx *sql.Tx, caseID string) (snapshot, error) {
	c, err := e.Repo.GetCase(ctx, tx, caseID)
	if err != nil {
		return snapshot{}, err
	}
	key, err := e.Repo.OrderingKey(ctx, tx, caseID)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{State: c.Estado, Key: key}, nil
}

// Transition reports how a mutation moved a case.
type Transition struct {
	CaseID string          `json:"case_id"`
	From   lifecycle.State `json:"from"`
	To     lifecycle.State `json:"to"`
	Queue  QueueAction     `json:"queue"`
	Turno  *int            `json:"turno,omitempty"`
}

func (t Transition) Changed() bool { return t.From != t.To }

// settle re-derives the case state (or applies next when given) and lets the
// coordinator update the queue. It must run inside the mutation's transaction.
func (e Engine) settle(ctx context.Context, tx *sql.Tx, caseID string, prev snapshot, next *lifecycle.State, actorID string) (domain.Case, Transition, error) {
	var state lifecycle.State
	if next != nil {
		state = *next
	} else {
		a, err := e.Repo.CaseActivity(ctx, tx, caseID)
		if err != nil {
			return domain.Case{}, Transition{}, err
		}
		state = e.Classifier().Classify(a, e.Today())
	}
	key, err := e.Repo.OrderingKey(ctx, tx, caseID)
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	action, err := e.Coordinator.OnCaseMutated(ctx, tx, Mutation{
		CaseID:    caseID,
		PrevState: prev.State,
		NewState:  state,
		PrevKey:   prev.Key,
		NewKey:    key,
		At:        e.stamp(),
	})
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	c, err := e.Repo.GetCase(ctx, tx, caseID)
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	t := Transition{CaseID: caseID, From: prev.State, To: c.Estado, Queue: action, Turno: c.Turno}
	if t.Changed() {
		payload := events.EventPayload{"from": string(t.From), "to": string(t.To), "queue": string(action)}
		if t.Turno != nil {
			payload["turno"] = *t.Turno
		}
		if err := e.Events.Append(ctx, tx, events.CaseStateChanged, "case", caseID, actor(actorID), payload); err != nil {
			return domain.Case{}, Transition{}, err
		}
	}
	e.Log.Debug().Str("case_id", caseID).Str("from", string(t.From)).Str("to", string(t.To)).
		Str("queue", string(action)).Msg("case settled")
	return c, t, nil
}

// RecomputeQueue renumbers the whole queue as an administrative operation.
func (e Engine) RecomputeQueue(ctx context.Context, actorID string) (RecomputeResult, error) {
	return e.Queue.RecomputeAll(ctx, actor(actorID))
}

// QueueStats pairs the per-state counts with the queue length.
type QueueStats struct {
	ByState map[lifecycle.State]int `json:"by_state"`
	Queued  int                     `json:"queued"`
	Total   int                     `json:"total"`
}

func (e Engine) Stats(ctx context.Context) (QueueStats, error) {
	counts, err := e.Repo.CountCasesByState(ctx, nil)
	if err != nil {
		return QueueStats{}, err
	}
	held, err := e.Repo.TurnoHolders(ctx, nil)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{ByState: counts, Queued: len(held)}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func requireDate(field string, d lifecycle.NullDate) error {
	if !d.Valid {
		return fmt.Errorf("%s is required (YYYY-MM-DD)", field)
	}
	return nil
}
