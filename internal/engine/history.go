package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"juzgado/internal/domain"
	"juzgado/internal/events"
	"juzgado/internal/lifecycle"
)

// IntakeInput is a new intake ("ingreso") for a case.
type IntakeInput struct {
	Fecha         lifecycle.NullDate `json:"fecha" yaml:"fecha"`
	Solicitud     string             `json:"solicitud,omitempty" yaml:"solicitud"`
	Observaciones string             `json:"observaciones,omitempty" yaml:"observaciones"`
	Ubicacion     *string            `json:"ubicacion,omitempty" yaml:"ubicacion"`
}

// IntakePatch changes only the non-nil fields.
type IntakePatch struct {
	Fecha         *lifecycle.NullDate
	Solicitud     *string
	Observaciones *string
	Ubicacion     *string
}

// StatusInput is a new status event ("estado"), usually a resolution.
type StatusInput struct {
	Fecha         lifecycle.NullDate `json:"fecha" yaml:"fecha"`
	Clase         string             `json:"clase,omitempty" yaml:"clase"`
	Auto          string             `json:"auto,omitempty" yaml:"auto"`
	Observaciones string             `json:"observaciones,omitempty" yaml:"observaciones"`
}

type StatusPatch struct {
	Fecha         *lifecycle.NullDate
	Clase         *string
	Auto          *string
	Observaciones *string
}

// ActionInput is a procedural action ("actuación"). Secuencia 0 means next in line.
type ActionInput struct {
	Secuencia   int                `json:"secuencia,omitempty" yaml:"secuencia"`
	Descripcion string             `json:"descripcion" yaml:"descripcion"`
	Fecha       lifecycle.NullDate `json:"fecha" yaml:"fecha"`
	Origen      string             `json:"origen,omitempty" yaml:"origen"`
}

func (e Engine) insertIntake(ctx context.Context, tx *sql.Tx, caseID string, in IntakeInput, actorID string) (domain.Intake, error) {
	if err := requireDate("fecha", in.Fecha); err != nil {
		return domain.Intake{}, err
	}
	intake := domain.Intake{
		ID:            newID(),
		CaseID:        caseID,
		Fecha:         in.Fecha,
		Solicitud:     strings.TrimSpace(in.Solicitud),
		Observaciones: strings.TrimSpace(in.Observaciones),
		Ubicacion:     in.Ubicacion,
		CreatedAt:     e.stamp(),
	}
	if err := e.Repo.InsertIntake(ctx, tx, intake); err != nil {
		return domain.Intake{}, err
	}
	if err := e.Events.Append(ctx, tx, events.IntakeAdded, "case", caseID, actor(actorID), events.EventPayload{
		"intake_id": intake.ID, "fecha": intake.Fecha.String(),
	}); err != nil {
		return domain.Intake{}, err
	}
	return intake, nil
}

func (e Engine) AddIntake(ctx context.Context, caseID string, in IntakeInput, actorID string) (domain.Intake, Transition, error) {
	if err := requireDate("fecha", in.Fecha); err != nil {
		return domain.Intake{}, Transition{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Intake{}, Transition{}, err
	}
	defer tx.Rollback()
	prev, err := e.snapshot(ctx, tx, caseID)
	if err != nil {
		return domain.Intake{}, Transition{}, err
	}
	intake, err := e.insertIntake(ctx, tx, caseID, in, actorID)
	if err != nil {
		return domain.Intake{}, Transition{}, err
	}
	_, t, err := e.settle(ctx, tx, caseID, prev, nil, actorID)
	if err != nil {
		return domain.Intake{}, Transition{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Intake{}, Transition{}, err
	}
	return intake, t, nil
}

func (e Engine) UpdateIntake(ctx context.Context, caseID, intakeID string, patch IntakePatch, actorID string) (domain.Intake, Transition, error) {
	if patch.Fecha != nil {
		if err := requireDate("fecha", *patch.Fecha); err != nil {
			return domain.Intake{}, Transition{}, err
		}
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Intake{}, Transition{}, err
	}
	defer tx.Rollback()
	prev, err := e.snapshot(ctx, tx, caseID)
	if err != nil {
		return domain.Intake{}, Transition{}, err
	}
	intake, err := e.Repo.GetIntake(ctx, tx, caseID, intakeID)
	if err != nil {
		return domain.Intake{}, Transition{}, err
	}
	if patch.Fecha != nil {
		intake.Fecha = *patch.Fecha
	}
	if patch.Solicitud != nil {
		intake.Solicitud = strings.TrimSpace(*patch.Solicitud)
	}
	if patch.Observaciones != nil {
		intake.Observaciones = strings.TrimSpace(*patch.Observaciones)
	}
	if patch.Ubicacion != nil {
		intake.Ubicacion = patch.Ubicacion
	}
	if err := e.Repo.UpdateIntake(ctx, tx, intake); err != nil {
		return domain.Intake{}, Transition{}, err
	}
	if err := e.Events.Append(ctx, tx, events.IntakeUpdated, "case", caseID, actor(actorID), events.EventPayload{
		"intake_id": intake.ID, "fecha": intake.Fecha.String(),
	}); err != nil {
		return domain.Intake{}, Transition{}, err
	}
	_, t, err := e.settle(ctx, tx, caseID, prev, nil, actorID)
	if err != nil {
		return domain.Intake{}, Transition{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Intake{}, Transition{}, err
	}
	return intake, t, nil
}

func (e Engine) DeleteIntake(ctx context.Context, caseID, intakeID, actorID string) (Transition, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return Transition{}, err
	}
	defer tx.Rollback()
	prev, err := e.snapshot(ctx, tx, caseID)
	if err != nil {
		return Transition{}, err
	}
	if err := e.Repo.DeleteIntake(ctx, tx, caseID, intakeID); err != nil {
		return Transition{}, err
	}
	if err := e.Events.Append(ctx, tx, events.IntakeDeleted, "case", caseID, actor(actorID), events.EventPayload{
		"intake_id": intakeID,
	}); err != nil {
		return Transition{}, err
	}
	_, t, err := e.settle(ctx, tx, caseID, prev, nil, actorID)
	if err != nil {
		return Transition{}, err
	}
	return t, tx.Commit()
}

func (e Engine) insertStatus(ctx context.Context, tx *sql.Tx, caseID string, in StatusInput, actorID string) (domain.StatusEvent, error) {
	if err := requireDate("fecha", in.Fecha); err != nil {
		return domain.StatusEvent{}, err
	}
	st := domain.StatusEvent{
		ID:            newID(),
		CaseID:        caseID,
		Fecha:         in.Fecha,
		Clase:         strings.TrimSpace(in.Clase),
		Auto:          strings.TrimSpace(in.Auto),
		Observaciones: strings.TrimSpace(in.Observaciones),
		CreatedAt:     e.stamp(),
	}
	if err := e.Repo.InsertStatus(ctx, tx, st); err != nil {
		return domain.StatusEvent{}, err
	}
	if err := e.Events.Append(ctx, tx, events.StatusAdded, "case", caseID, actor(actorID), events.EventPayload{
		"status_id": st.ID, "fecha": st.Fecha.String(), "clase": st.Clase,
	}); err != nil {
		return domain.StatusEvent{}, err
	}
	return st, nil
}

func (e Engine) AddStatus(ctx context.Context, caseID string, in StatusInput, actorID string) (domain.StatusEvent, Transition, error) {
	if err := requireDate("fecha", in.Fecha); err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	defer tx.Rollback()
	prev, err := e.snapshot(ctx, tx, caseID)
	if err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	st, err := e.insertStatus(ctx, tx, caseID, in, actorID)
	if err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	_, t, err := e.settle(ctx, tx, caseID, prev, nil, actorID)
	if err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	return st, t, nil
}

func (e Engine) UpdateStatus(ctx context.Context, caseID, statusID string, patch StatusPatch, actorID string) (domain.StatusEvent, Transition, error) {
	if patch.Fecha != nil {
		if err := requireDate("fecha", *patch.Fecha); err != nil {
			return domain.StatusEvent{}, Transition{}, err
		}
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	defer tx.Rollback()
	prev, err := e.snapshot(ctx, tx, caseID)
	if err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	st, err := e.Repo.GetStatus(ctx, tx, caseID, statusID)
	if err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	if patch.Fecha != nil {
		st.Fecha = *patch.Fecha
	}
	if patch.Clase != nil {
		st.Clase = strings.TrimSpace(*patch.Clase)
	}
	if patch.Auto != nil {
		st.Auto = strings.TrimSpace(*patch.Auto)
	}
	if patch.Observaciones != nil {
		st.Observaciones = strings.TrimSpace(*patch.Observaciones)
	}
	if err := e.Repo.UpdateStatus(ctx, tx, st); err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	if err := e.Events.Append(ctx, tx, events.StatusUpdated, "case", caseID, actor(actorID), events.EventPayload{
		"status_id": st.ID, "fecha": st.Fecha.String(),
	}); err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	_, t, err := e.settle(ctx, tx, caseID, prev, nil, actorID)
	if err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StatusEvent{}, Transition{}, err
	}
	return st, t, nil
}

func (e Engine) DeleteStatus(ctx context.Context, caseID, statusID, actorID string) (Transition, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return Transition{}, err
	}
	defer tx.Rollback()
	prev, err := e.snapshot(ctx, tx, caseID)
	if err != nil {
		return Transition{}, err
	}
	if err := e.Repo.DeleteStatus(ctx, tx, caseID, statusID); err != nil {
		return Transition{}, err
	}
	if err := e.Events.Append(ctx, tx, events.StatusDeleted, "case", caseID, actor(actorID), events.EventPayload{
		"status_id": statusID,
	}); err != nil {
		return Transition{}, err
	}
	_, t, err := e.settle(ctx, tx, caseID, prev, nil, actorID)
	if err != nil {
		return Transition{}, err
	}
	return t, tx.Commit()
}

// AddAction logs a procedural action. Actions never touch the state or the queue.
func (e Engine) AddAction(ctx context.Context, caseID string, in ActionInput, actorID string) (domain.Action, error) {
	desc := strings.TrimSpace(in.Descripcion)
	if desc == "" {
		return domain.Action{}, errors.New("descripcion is required")
	}
	if in.Secuencia < 0 {
		return domain.Action{}, errors.New("secuencia must be positive")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Action{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetCase(ctx, tx, caseID); err != nil {
		return domain.Action{}, err
	}
	seq := in.Secuencia
	if seq == 0 {
		if seq, err = e.Repo.NextActionSequence(ctx, tx, caseID); err != nil {
			return domain.Action{}, err
		}
	}
	a := domainAction(newID(), caseID, seq, desc, in, e.stamp())
	if err := e.Repo.InsertAction(ctx, tx, a); err != nil {
		return domain.Action{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ActionAdded, "case", caseID, actor(actorID), events.EventPayload{
		"action_id": a.ID, "secuencia": a.Secuencia,
	}); err != nil {
		return domain.Action{}, err
	}
	return a, tx.Commit()
}

func (e Engine) DeleteAction(ctx context.Context, caseID, actionID, actorID string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAction(ctx, tx, caseID, actionID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ActionDeleted, "case", caseID, actor(actorID), events.EventPayload{
		"action_id": actionID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func domainAction(id, caseID string, seq int, desc string, in ActionInput, at string) domain.Action {
	return domain.Action{
		ID:          id,
		CaseID:      caseID,
		Secuencia:   seq,
		Descripcion: desc,
		Fecha:       in.Fecha,
		Origen:      strings.TrimSpace(in.Origen),
		CreatedAt:   at,
	}
}
