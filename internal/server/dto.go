package server

import (
	"fmt"
	"strings"

	"juzgado/internal/domain"
	"juzgado/internal/engine"
	"juzgado/internal/lifecycle"
	"juzgado/internal/repo"
)

// Request payloads. Dates travel as strings and are normalized by the lifecycle package.

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type IntakeRequest struct {
	Fecha         string  `json:"fecha" example:"2024-03-15"`
	Solicitud     string  `json:"solicitud,omitempty"`
	Observaciones string  `json:"observaciones,omitempty"`
	Ubicacion     *string `json:"ubicacion,omitempty"`
}

type CreateCaseRequest struct {
	Radicado      string         `json:"radicado" example:"11001310300120240012300"`
	RadicadoCorto string         `json:"radicado_corto,omitempty"`
	Demandante    string         `json:"demandante,omitempty"`
	Demandado     string         `json:"demandado,omitempty"`
	JuzgadoOrigen string         `json:"juzgado_origen,omitempty"`
	TipoSolicitud string         `json:"tipo_solicitud,omitempty"`
	Responsable   string         `json:"responsable,omitempty"`
	FechaIngreso  *string        `json:"fecha_ingreso,omitempty"`
	Intake        *IntakeRequest `json:"intake,omitempty"`
}

// UpdateCaseRequest changes only the fields present. An empty fecha_ingreso clears it.
type UpdateCaseRequest struct {
	RadicadoCorto *string `json:"radicado_corto,omitempty"`
	Demandante    *string `json:"demandante,omitempty"`
	Demandado     *string `json:"demandado,omitempty"`
	JuzgadoOrigen *string `json:"juzgado_origen,omitempty"`
	TipoSolicitud *string `json:"tipo_solicitud,omitempty"`
	Responsable   *string `json:"responsable,omitempty"`
	FechaIngreso  *string `json:"fecha_ingreso,omitempty"`
	Estado        *string `json:"estado,omitempty" enum:"AP,AR,IR,P"`
}

type UpdateIntakeRequest struct {
	Fecha         *string `json:"fecha,omitempty"`
	Solicitud     *string `json:"solicitud,omitempty"`
	Observaciones *string `json:"observaciones,omitempty"`
	Ubicacion     *string `json:"ubicacion,omitempty"`
}

type StatusRequest struct {
	Fecha         string `json:"fecha" example:"2024-06-01"`
	Clase         string `json:"clase,omitempty"`
	Auto          string `json:"auto,omitempty"`
	Observaciones string `json:"observaciones,omitempty"`
}

type UpdateStatusRequest struct {
	Fecha         *string `json:"fecha,omitempty"`
	Clase         *string `json:"clase,omitempty"`
	Auto          *string `json:"auto,omitempty"`
	Observaciones *string `json:"observaciones,omitempty"`
}

type ActionRequest struct {
	Secuencia   int     `json:"secuencia,omitempty"`
	Descripcion string  `json:"descripcion"`
	Fecha       *string `json:"fecha,omitempty"`
	Origen      string  `json:"origen,omitempty"`
}

type ImportRowRequest struct {
	Radicado      string          `json:"radicado"`
	RadicadoCorto string          `json:"radicado_corto,omitempty"`
	Demandante    string          `json:"demandante,omitempty"`
	Demandado     string          `json:"demandado,omitempty"`
	JuzgadoOrigen string          `json:"juzgado_origen,omitempty"`
	TipoSolicitud string          `json:"tipo_solicitud,omitempty"`
	Responsable   string          `json:"responsable,omitempty"`
	FechaIngreso  *string         `json:"fecha_ingreso,omitempty"`
	Ingresos      []IntakeRequest `json:"ingresos,omitempty"`
	Estados       []StatusRequest `json:"estados,omitempty"`
	Actuaciones   []ActionRequest `json:"actuaciones,omitempty"`
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	Password    string `json:"password"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Responses

type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type CaseResponse struct {
	ID            string  `json:"id"`
	Radicado      string  `json:"radicado"`
	RadicadoCorto string  `json:"radicado_corto,omitempty"`
	Demandante    string  `json:"demandante,omitempty"`
	Demandado     string  `json:"demandado,omitempty"`
	JuzgadoOrigen string  `json:"juzgado_origen,omitempty"`
	TipoSolicitud string  `json:"tipo_solicitud,omitempty"`
	Estado        string  `json:"estado" enum:"AP,AR,IR,P"`
	EstadoLabel   string  `json:"estado_label"`
	Turno         *int    `json:"turno,omitempty"`
	FechaIngreso  *string `json:"fecha_ingreso,omitempty"`
	Responsable   *string `json:"responsable,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type TransitionResponse struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Changed bool   `json:"changed"`
	Queue   string `json:"queue" enum:"none,assign,clear,reorder"`
	Turno   *int   `json:"turno,omitempty"`
}

type CaseMutationResponse struct {
	Case       CaseResponse       `json:"case"`
	Transition TransitionResponse `json:"transition"`
}

type paginatedCases struct {
	Items      []CaseResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type IntakeResponse struct {
	ID            string  `json:"id"`
	CaseID        string  `json:"case_id"`
	Fecha         *string `json:"fecha,omitempty"`
	Solicitud     string  `json:"solicitud,omitempty"`
	Observaciones string  `json:"observaciones,omitempty"`
	Ubicacion     *string `json:"ubicacion,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type IntakeMutationResponse struct {
	Intake     IntakeResponse     `json:"intake"`
	Transition TransitionResponse `json:"transition"`
}

type StatusResponse struct {
	ID            string  `json:"id"`
	CaseID        string  `json:"case_id"`
	Fecha         *string `json:"fecha,omitempty"`
	Clase         string  `json:"clase,omitempty"`
	Auto          string  `json:"auto,omitempty"`
	Observaciones string  `json:"observaciones,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type StatusMutationResponse struct {
	Status     StatusResponse     `json:"status"`
	Transition TransitionResponse `json:"transition"`
}

type ActionResponse struct {
	ID          string  `json:"id"`
	CaseID      string  `json:"case_id"`
	Secuencia   int     `json:"secuencia"`
	Descripcion string  `json:"descripcion"`
	Fecha       *string `json:"fecha,omitempty"`
	Origen      string  `json:"origen,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type ActivityResponse struct {
	Intakes     int     `json:"intakes"`
	LastIntake  *string `json:"last_intake,omitempty"`
	Statuses    int     `json:"statuses"`
	LastStatus  *string `json:"last_status,omitempty"`
	Actions     int     `json:"actions"`
	LastAction  *string `json:"last_action,omitempty"`
	OrderingKey *string `json:"ordering_key,omitempty"`
}

type LifecycleResponse struct {
	Case          CaseResponse     `json:"case"`
	Activity      ActivityResponse `json:"activity"`
	DerivedEstado string           `json:"derived_estado"`
	DerivedLabel  string           `json:"derived_label"`
	Detail        string           `json:"detail"`
	Drift         bool             `json:"drift"`
	Today         string           `json:"today" format:"date"`
}

type QueueEntryResponse struct {
	Turno        int     `json:"turno"`
	CaseID       string  `json:"case_id"`
	Radicado     string  `json:"radicado"`
	Demandante   string  `json:"demandante,omitempty"`
	Demandado    string  `json:"demandado,omitempty"`
	Responsable  *string `json:"responsable,omitempty"`
	OrderingDate *string `json:"ordering_date,omitempty"`
}

type RecomputeResponse struct {
	Queued   int `json:"queued"`
	Changed  int `json:"changed"`
	Excluded int `json:"excluded"`
}

type RefreshResponse struct {
	Checked int               `json:"checked"`
	Changed int               `json:"changed"`
	Queue   RecomputeResponse `json:"queue"`
}

type StatsResponse struct {
	ByState map[string]int `json:"by_state"`
	Queued  int            `json:"queued"`
	Total   int            `json:"total"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MeResponse struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func caseResponse(c domain.Case) CaseResponse {
	return CaseResponse{
		ID:            c.ID,
		Radicado:      c.Radicado,
		RadicadoCorto: c.RadicadoCorto,
		Demandante:    c.Demandante,
		Demandado:     c.Demandado,
		JuzgadoOrigen: c.JuzgadoOrigen,
		TipoSolicitud: c.TipoSolicitud,
		Estado:        string(c.Estado),
		EstadoLabel:   c.Estado.Label(),
		Turno:         c.Turno,
		FechaIngreso:  c.FechaIngreso.Ptr(),
		Responsable:   c.Responsable,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func transitionResponse(t engine.Transition) TransitionResponse {
	return TransitionResponse{
		From:    string(t.From),
		To:      string(t.To),
		Changed: t.Changed(),
		Queue:   string(t.Queue),
		Turno:   t.Turno,
	}
}

func intakeResponse(in domain.Intake) IntakeResponse {
	return IntakeResponse{
		ID:            in.ID,
		CaseID:        in.CaseID,
		Fecha:         in.Fecha.Ptr(),
		Solicitud:     in.Solicitud,
		Observaciones: in.Observaciones,
		Ubicacion:     in.Ubicacion,
		CreatedAt:     in.CreatedAt,
	}
}

func statusResponse(s domain.StatusEvent) StatusResponse {
	return StatusResponse{
		ID:            s.ID,
		CaseID:        s.CaseID,
		Fecha:         s.Fecha.Ptr(),
		Clase:         s.Clase,
		Auto:          s.Auto,
		Observaciones: s.Observaciones,
		CreatedAt:     s.CreatedAt,
	}
}

func actionResponse(a domain.Action) ActionResponse {
	return ActionResponse{
		ID:          a.ID,
		CaseID:      a.CaseID,
		Secuencia:   a.Secuencia,
		Descripcion: a.Descripcion,
		Fecha:       a.Fecha.Ptr(),
		Origen:      a.Origen,
		CreatedAt:   a.CreatedAt,
	}
}

func lifecycleResponse(l engine.CaseLifecycle) LifecycleResponse {
	return LifecycleResponse{
		Case: caseResponse(l.Case),
		Activity: ActivityResponse{
			Intakes:     l.Activity.Intakes,
			LastIntake:  l.Activity.LastIntake.Ptr(),
			Statuses:    l.Activity.Statuses,
			LastStatus:  l.Activity.LastStatus.Ptr(),
			Actions:     l.Actions.Actions,
			LastAction:  l.Actions.LastAction.Ptr(),
			OrderingKey: l.OrderingKey.Ptr(),
		},
		DerivedEstado: string(l.Derived.State),
		DerivedLabel:  l.Derived.Label,
		Detail:        l.Derived.Detail,
		Drift:         l.Derived.State != l.Case.Estado,
		Today:         l.Today,
	}
}

func queueEntryResponse(q domain.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		Turno:        q.Turno,
		CaseID:       q.CaseID,
		Radicado:     q.Radicado,
		Demandante:   q.Demandante,
		Demandado:    q.Demandado,
		Responsable:  q.Responsable,
		OrderingDate: q.OrderingDate.Ptr(),
	}
}

func recomputeResponse(r engine.RecomputeResult) RecomputeResponse {
	return RecomputeResponse{Queued: r.Queued, Changed: r.Changed, Excluded: r.Excluded}
}

func statsResponse(s engine.QueueStats) StatsResponse {
	by := make(map[string]int, len(s.ByState))
	for st, n := range s.ByState {
		by[string(st)] = n
	}
	return StatsResponse{ByState: by, Queued: s.Queued, Total: s.Total}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

func apiKeyResponse(k domain.APIKey, raw string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, UserID: k.UserID, Name: k.Name, Key: raw, CreatedAt: k.CreatedAt}
}

// parseDate rejects non-empty text that does not normalize to a day. Absent stays absent.
func parseDate(field string, raw *string) (lifecycle.NullDate, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return lifecycle.NullDate{}, nil
	}
	d := lifecycle.NullDateOf(*raw)
	if !d.Valid {
		return lifecycle.NullDate{}, fmt.Errorf("invalid %s %q", field, *raw)
	}
	return d, nil
}

func parseDatePatch(field string, raw *string) (*lifecycle.NullDate, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r IntakeRequest) input() (engine.IntakeInput, error) {
	fecha, err := parseDate("fecha", &r.Fecha)
	if err != nil {
		return engine.IntakeInput{}, err
	}
	return engine.IntakeInput{
		Fecha:         fecha,
		Solicitud:     r.Solicitud,
		Observaciones: r.Observaciones,
		Ubicacion:     r.Ubicacion,
	}, nil
}

func (r StatusRequest) input() (engine.StatusInput, error) {
	fecha, err := parseDate("fecha", &r.Fecha)
	if err != nil {
		return engine.StatusInput{}, err
	}
	return engine.StatusInput{Fecha: fecha, Clase: r.Clase, Auto: r.Auto, Observaciones: r.Observaciones}, nil
}

func (r ActionRequest) input() (engine.ActionInput, error) {
	fecha, err := parseDate("fecha", r.Fecha)
	if err != nil {
		return engine.ActionInput{}, err
	}
	return engine.ActionInput{Secuencia: r.Secuencia, Descripcion: r.Descripcion, Fecha: fecha, Origen: r.Origen}, nil
}

func (r UpdateCaseRequest) options(id, actorID string) (engine.CaseUpdateOptions, error) {
	opts := engine.CaseUpdateOptions{
		ID: id,
		Fields: repo.CaseFields{
			RadicadoCorto: r.RadicadoCorto,
			Demandante:    r.Demandante,
			Demandado:     r.Demandado,
			JuzgadoOrigen: r.JuzgadoOrigen,
			TipoSolicitud: r.TipoSolicitud,
			Responsable:   r.Responsable,
		},
		ActorID: actorID,
	}
	fecha, err := parseDatePatch("fecha_ingreso", r.FechaIngreso)
	if err != nil {
		return opts, err
	}
	opts.Fields.FechaIngreso = fecha
	if r.Estado != nil {
		st, err := lifecycle.ParseState(*r.Estado)
		if err != nil {
			return opts, err
		}
		opts.Estado = &st
	}
	return opts, nil
}

func (r ImportRowRequest) row() (engine.ImportRow, error) {
	fecha, err := parseDate("fecha_ingreso", r.FechaIngreso)
	if err != nil {
		return engine.ImportRow{}, err
	}
	row := engine.ImportRow{
		Radicado:      r.Radicado,
		RadicadoCorto: r.RadicadoCorto,
		Demandante:    r.Demandante,
		Demandado:     r.Demandado,
		JuzgadoOrigen: r.JuzgadoOrigen,
		TipoSolicitud: r.TipoSolicitud,
		Responsable:   r.Responsable,
		FechaIngreso:  fecha,
	}
	for _, in := range r.Ingresos {
		v, err := in.input()
		if err != nil {
			return engine.ImportRow{}, err
		}
		row.Ingresos = append(row.Ingresos, v)
	}
	for _, st := range r.Estados {
		v, err := st.input()
		if err != nil {
			return engine.ImportRow{}, err
		}
		row.Estados = append(row.Estados, v)
	}
	for _, a := range r.Actuaciones {
		v, err := a.input()
		if err != nil {
			return engine.ImportRow{}, err
		}
		row.Actuaciones = append(row.Actuaciones, v)
	}
	return row, nil
}

func mapCases(items []domain.Case) []CaseResponse {
	res := make([]CaseResponse, 0, len(items))
	for _, c := range items {
		res = append(res, caseResponse(c))
	}
	return res
}
