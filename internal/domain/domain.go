package domain

import "juzgado/internal/lifecycle"

type Case struct {
	ID            string             `json:"id"`
	Radicado      string             `json:"radicado"`
	RadicadoCorto string             `json:"radicado_corto,omitempty"`
	Demandante    string             `json:"demandante,omitempty"`
	Demandado     string             `json:"demandado,omitempty"`
	JuzgadoOrigen string             `json:"juzgado_origen,omitempty"`
	TipoSolicitud string             `json:"tipo_solicitud,omitempty"`
	Estado        lifecycle.State    `json:"estado" enum:"AP,AR,IR,P"`
	Turno         *int               `json:"turno,omitempty"`
	FechaIngreso  lifecycle.NullDate `json:"fecha_ingreso"`
	Responsable   *string            `json:"responsable,omitempty"`
	CreatedAt     string             `json:"created_at" format:"date-time"`
	UpdatedAt     string             `json:"updated_at" format:"date-time"`
}

type Intake struct {
	ID            string             `json:"id"`
	CaseID        string             `json:"case_id"`
	Fecha         lifecycle.NullDate `json:"fecha"`
	Solicitud     string             `json:"solicitud,omitempty"`
	Observaciones string             `json:"observaciones,omitempty"`
	Ubicacion     *string            `json:"ubicacion,omitempty"`
	CreatedAt     string             `json:"created_at" format:"date-time"`
}

type StatusEvent struct {
	ID            string             `json:"id"`
	CaseID        string             `json:"case_id"`
	Fecha         lifecycle.NullDate `json:"fecha"`
	Clase         string             `json:"clase,omitempty"`
	Auto          string             `json:"auto,omitempty"`
	Observaciones string             `json:"observaciones,omitempty"`
	CreatedAt     string             `json:"created_at" format:"date-time"`
}

// Action is a procedural log entry ("actuación"). It never affects the lifecycle state.
type Action struct {
	ID          string             `json:"id"`
	CaseID      string             `json:"case_id"`
	Secuencia   int                `json:"secuencia"`
	Descripcion string             `json:"descripcion"`
	Fecha       lifecycle.NullDate `json:"fecha"`
	Origen      string             `json:"origen,omitempty"`
	CreatedAt   string             `json:"created_at" format:"date-time"`
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name,omitempty"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// QueueEntry is a case as seen from the turno queue.
type QueueEntry struct {
	Turno        int                `json:"turno"`
	CaseID       string             `json:"case_id"`
	Radicado     string             `json:"radicado"`
	Demandante   string             `json:"demandante,omitempty"`
	Demandado    string             `json:"demandado,omitempty"`
	Responsable  *string            `json:"responsable,omitempty"`
	OrderingDate lifecycle.NullDate `json:"ordering_date"`
}

// APIKey lets an integration act as a user without a password.
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
