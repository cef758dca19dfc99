package engine

import (
	"context"
	"database/sql"

	"juzgado/internal/lifecycle"
	"juzgado/internal/repo"
)

// QueueAction is what a state transition did to the queue.
type QueueAction string

const (
	QueueNone    QueueAction = "none"
	QueueAssign  QueueAction = "assign"
	QueueClear   QueueAction = "clear"
	QueueReorder QueueAction = "reorder"
)

// Mutation describes a case before and after a write to its history.
type Mutation struct {
	CaseID    string
	PrevState lifecycle.State
	NewState  lifecycle.State
	PrevKey   lifecycle.NullDate
	NewKey    lifecycle.NullDate
	At        string
}

// Coordinator applies a case's derived state and keeps the queue in step with it.
type Coordinator struct {
	Repo  repo.Repo
	Queue Queue
}

// OnCaseMutated stores m.NewState and assigns a turno on entering AP, clears it on leaving AP,
// reorders when an AP case's ordering key moved, and otherwise leaves the queue alone.
func (c Coordinator) OnCaseMutated(ctx context.Context, tx *sql.Tx, m Mutation) (QueueAction, error) {
	if m.NewState != m.PrevState {
		if err := c.Repo.SetCaseState(ctx, tx, m.CaseID, m.NewState, m.At); err != nil {
			return QueueNone, err
		}
	}
	wasAP := m.PrevState == lifecycle.StateAwaiting
	isAP := m.NewState == lifecycle.StateAwaiting
	switch {
	case !wasAP && isAP:
		_, err := c.Queue.AssignOnTransitionToAP(ctx, tx, m.CaseID)
		return QueueAssign, err
	case wasAP && !isAP:
		_, err := c.Queue.ClearOnTransitionFromAP(ctx, tx, m.CaseID)
		return QueueClear, err
	case wasAP && isAP && !m.PrevKey.Same(m.NewKey):
		_, err := c.Queue.Recompute(ctx, tx)
		return QueueReorder, err
	}
	return QueueNone, nil
}
