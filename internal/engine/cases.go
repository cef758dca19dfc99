package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"juzgado/internal/domain"
	"juzgado/internal/events"
	"juzgado/internal/lifecycle"
	"juzgado/internal/repo"
)

const radicadoDigits = 23

// NormalizeRadicado strips separators and checks the 23-digit docket number.
func NormalizeRadicado(in string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(in) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '.' || r == ' ' || r == '/' || r == '_':
		default:
			return "", fmt.Errorf("radicado %q contains invalid character %q", in, r)
		}
	}
	out := b.String()
	if len(out) != radicadoDigits {
		return "", fmt.Errorf("invalid radicado: must have %d digits, got %d", radicadoDigits, len(out))
	}
	return out, nil
}

// ShortRadicado derives the YYYY-NNNNN form from digits 13 to 21.
func ShortRadicado(radicado string) string {
	if len(radicado) != radicadoDigits {
		return ""
	}
	return radicado[12:16] + "-" + radicado[16:21]
}

type CaseCreateOptions struct {
	ID            string
	Radicado      string
	RadicadoCorto string
	Demandante    string
	Demandado     string
	JuzgadoOrigen string
	TipoSolicitud string
	Responsable   string
	FechaIngreso  lifecycle.NullDate
	Intake        *IntakeInput
	ActorID       string
}

// CreateCase registers a case, optionally with its first intake.
func (e Engine) CreateCase(ctx context.Context, opts CaseCreateOptions) (domain.Case, Transition, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	defer tx.Rollback()
	c, t, err := e.createCaseTx(ctx, tx, opts)
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, Transition{}, err
	}
	return c, t, nil
}

func (e Engine) createCaseTx(ctx context.Context, tx *sql.Tx, opts CaseCreateOptions) (domain.Case, Transition, error) {
	radicado, err := NormalizeRadicado(opts.Radicado)
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	if opts.Intake != nil {
		if err := requireDate("intake fecha", opts.Intake.Fecha); err != nil {
			return domain.Case{}, Transition{}, err
		}
	}
	if _, err := e.Repo.GetCaseByRadicado(ctx, tx, radicado); err == nil {
		return domain.Case{}, Transition{}, fmt.Errorf("case %s: %w", radicado, ErrDuplicate)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Case{}, Transition{}, err
	}
	now := e.stamp()
	c := domain.Case{
		ID:            opts.ID,
		Radicado:      radicado,
		RadicadoCorto: strings.TrimSpace(opts.RadicadoCorto),
		Demandante:    strings.TrimSpace(opts.Demandante),
		Demandado:     strings.TrimSpace(opts.Demandado),
		JuzgadoOrigen: strings.TrimSpace(opts.JuzgadoOrigen),
		TipoSolicitud: strings.TrimSpace(opts.TipoSolicitud),
		Estado:        lifecycle.StatePending,
		FechaIngreso:  opts.FechaIngreso,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if c.RadicadoCorto == "" {
		c.RadicadoCorto = ShortRadicado(radicado)
	}
	if r := strings.TrimSpace(opts.Responsable); r != "" {
		c.Responsable = &r
	}
	if err := e.Repo.InsertCase(ctx, tx, c); err != nil {
		return domain.Case{}, Transition{}, fmt.Errorf("insert case: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.CaseCreated, "case", c.ID, actor(opts.ActorID), events.EventPayload{
		"radicado": c.Radicado,
	}); err != nil {
		return domain.Case{}, Transition{}, err
	}
	prev := snapshot{State: lifecycle.StatePending}
	if opts.Intake != nil {
		if _, err := e.insertIntake(ctx, tx, c.ID, *opts.Intake, opts.ActorID); err != nil {
			return domain.Case{}, Transition{}, err
		}
	}
	return e.settle(ctx, tx, c.ID, prev, nil, opts.ActorID)
}

type CaseUpdateOptions struct {
	ID      string
	Fields  repo.CaseFields
	Estado  *lifecycle.State
	ActorID string
}

// UpdateCase edits descriptive fields. Estado forces a state by hand; without it the
// stored state is kept and only an ordering change can move the queue.
func (e Engine) UpdateCase(ctx context.Context, opts CaseUpdateOptions) (domain.Case, Transition, error) {
	if opts.Estado != nil && !opts.Estado.Valid() {
		return domain.Case{}, Transition{}, fmt.Errorf("invalid state %q", *opts.Estado)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	defer tx.Rollback()
	prev, err := e.snapshot(ctx, tx, opts.ID)
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	if err := e.Repo.UpdateCaseFields(ctx, tx, opts.ID, opts.Fields, e.stamp()); err != nil {
		return domain.Case{}, Transition{}, err
	}
	next := prev.State
	if opts.Estado != nil {
		next = *opts.Estado
	}
	c, t, err := e.settle(ctx, tx, opts.ID, prev, &next, opts.ActorID)
	if err != nil {
		return domain.Case{}, Transition{}, err
	}
	payload := events.EventPayload{}
	if opts.Estado != nil {
		payload["manual_state"] = string(*opts.Estado)
	}
	if opts.Fields.FechaIngreso != nil {
		payload["fecha_ingreso"] = opts.Fields.FechaIngreso.Ptr()
	}
	if err := e.Events.Append(ctx, tx, events.CaseUpdated, "case", opts.ID, actor(opts.ActorID), payload); err != nil {
		return domain.Case{}, Transition{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, Transition{}, err
	}
	return c, t, nil
}

// DeleteCase removes a case and its history, closing its gap in the queue.
func (e Engine) DeleteCase(ctx context.Context, id, actorID string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCase(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteCase(ctx, tx, id); err != nil {
		return err
	}
	if c.Turno != nil {
		if _, err := e.Queue.Recompute(ctx, tx); err != nil {
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, events.CaseDeleted, "case", id, actor(actorID), events.EventPayload{
		"radicado": c.Radicado, "estado": string(c.Estado),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Reclassify re-derives one case's state against today's date.
func (e Engine) Reclassify(ctx context.Context, id, actorID string) (Transition, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return Transition{}, err
	}
	defer tx.Rollback()
	prev, err := e.snapshot(ctx, tx, id)
	if err != nil {
		return Transition{}, err
	}
	_, t, err := e.settle(ctx, tx, id, prev, nil, actorID)
	if err != nil {
		return Transition{}, err
	}
	return t, tx.Commit()
}

// RefreshResult summarizes a bulk reclassification.
type RefreshResult struct {
	Checked int             `json:"checked"`
	Changed int             `json:"changed"`
	Queue   RecomputeResult `json:"queue"`
}

// ReclassifyAll re-derives every case state, then renumbers the queue once.
func (e Engine) ReclassifyAll(ctx context.Context, actorID string) (RefreshResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	defer tx.Rollback()
	ids, err := e.Repo.CaseIDs(ctx, tx)
	if err != nil {
		return RefreshResult{}, err
	}
	var res RefreshResult
	today := e.Today()
	cls := e.Classifier()
	now := e.stamp()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return RefreshResult{}, err
		}
		c, err := e.Repo.GetCase(ctx, tx, id)
		if err != nil {
			return RefreshResult{}, err
		}
		a, err := e.Repo.CaseActivity(ctx, tx, id)
		if err != nil {
			return RefreshResult{}, err
		}
		res.Checked++
		next := cls.Classify(a, today)
		if next == c.Estado {
			continue
		}
		if err := e.Repo.SetCaseState(ctx, tx, id, next, now); err != nil {
			return RefreshResult{}, err
		}
		if err := e.Events.Append(ctx, tx, events.CaseStateChanged, "case", id, actor(actorID), events.EventPayload{
			"from": string(c.Estado), "to": string(next), "queue": string(QueueReorder),
		}); err != nil {
			return RefreshResult{}, err
		}
		res.Changed++
	}
	res.Queue, err = e.Queue.Recompute(ctx, tx)
	if err != nil {
		return RefreshResult{}, err
	}
	if err := e.Events.Append(ctx, tx, events.StatesRefreshed, "queue", "", actor(actorID), events.EventPayload{
		"checked": res.Checked, "changed": res.Changed, "queued": res.Queue.Queued,
	}); err != nil {
		return RefreshResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return RefreshResult{}, err
	}
	e.Log.Info().Int("checked", res.Checked).Int("changed", res.Changed).Msg("states refreshed")
	return res, nil
}

// CaseLifecycle is everything known about how a case got its state.
type CaseLifecycle struct {
	Case        domain.Case              `json:"case"`
	Activity    lifecycle.Activity       `json:"activity"`
	Actions     lifecycle.ActionActivity `json:"actions"`
	OrderingKey lifecycle.NullDate       `json:"ordering_key"`
	Derived     lifecycle.Description    `json:"derived"`
	Today       string                   `json:"today"`
}

// Describe reports the stored state next to the one the history derives today.
func (e Engine) Describe(ctx context.Context, id string) (CaseLifecycle, error) {
	c, err := e.Repo.GetCase(ctx, nil, id)
	if err != nil {
		return CaseLifecycle{}, err
	}
	a, err := e.Repo.CaseActivity(ctx, nil, id)
	if err != nil {
		return CaseLifecycle{}, err
	}
	acts, err := e.Repo.ActionActivity(ctx, nil, id)
	if err != nil {
		return CaseLifecycle{}, err
	}
	key, err := e.Repo.OrderingKey(ctx, nil, id)
	if err != nil {
		return CaseLifecycle{}, err
	}
	today := e.Today()
	return CaseLifecycle{
		Case:        c,
		Activity:    a,
		Actions:     acts,
		OrderingKey: key,
		Derived:     e.Classifier().Describe(a, acts, today),
		Today:       today.String(),
	}, nil
}
