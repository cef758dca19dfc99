package juzgadosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Juzgado HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for the /v1 API.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Case is the API case model.
type Case struct {
	ID            string  `json:"id"`
	Radicado      string  `json:"radicado"`
	RadicadoCorto string  `json:"radicado_corto,omitempty"`
	Demandante    string  `json:"demandante,omitempty"`
	Demandado     string  `json:"demandado,omitempty"`
	JuzgadoOrigen string  `json:"juzgado_origen,omitempty"`
	TipoSolicitud string  `json:"tipo_solicitud,omitempty"`
	Estado        string  `json:"estado"`
	EstadoLabel   string  `json:"estado_label"`
	Turno         *int    `json:"turno,omitempty"`
	FechaIngreso  *string `json:"fecha_ingreso,omitempty"`
	Responsable   *string `json:"responsable,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// Transition reports what a write did to the case state and its turno.
type Transition struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Changed bool   `json:"changed"`
	Queue   string `json:"queue"`
	Turno   *int   `json:"turno,omitempty"`
}

type CaseMutation struct {
	Case       Case       `json:"case"`
	Transition Transition `json:"transition"`
}

// NewCase is the payload for CreateCase. Dates are YYYY-MM-DD.
type NewCase struct {
	Radicado      string  `json:"radicado"`
	RadicadoCorto string  `json:"radicado_corto,omitempty"`
	Demandante    string  `json:"demandante,omitempty"`
	Demandado     string  `json:"demandado,omitempty"`
	JuzgadoOrigen string  `json:"juzgado_origen,omitempty"`
	TipoSolicitud string  `json:"tipo_solicitud,omitempty"`
	Responsable   string  `json:"responsable,omitempty"`
	FechaIngreso  *string `json:"fecha_ingreso,omitempty"`
	Intake        *Intake `json:"intake,omitempty"`
}

type Intake struct {
	ID            string  `json:"id,omitempty"`
	Fecha         string  `json:"fecha"`
	Solicitud     string  `json:"solicitud,omitempty"`
	Observaciones string  `json:"observaciones,omitempty"`
	Ubicacion     *string `json:"ubicacion,omitempty"`
}

type StatusEvent struct {
	ID            string `json:"id,omitempty"`
	Fecha         string `json:"fecha"`
	Clase         string `json:"clase,omitempty"`
	Auto          string `json:"auto,omitempty"`
	Observaciones string `json:"observaciones,omitempty"`
}

type QueueEntry struct {
	Turno        int     `json:"turno"`
	CaseID       string  `json:"case_id"`
	Radicado     string  `json:"radicado"`
	Demandante   string  `json:"demandante,omitempty"`
	Demandado    string  `json:"demandado,omitempty"`
	Responsable  *string `json:"responsable,omitempty"`
	OrderingDate *string `json:"ordering_date,omitempty"`
}

type Stats struct {
	ByState map[string]int `json:"by_state"`
	Queued  int            `json:"queued"`
	Total   int            `json:"total"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/token", body, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

func (c *Client) CreateCase(ctx context.Context, in NewCase) (CaseMutation, error) {
	var resp CaseMutation
	err := c.do(ctx, http.MethodPost, "cases", in, &resp)
	return resp, err
}

// GetCase accepts a case id or a radicado.
func (c *Client) GetCase(ctx context.Context, ref string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, "cases/"+url.PathEscape(ref), nil, &resp)
	return resp, err
}

// SetEstado forces a state by hand.
func (c *Client) SetEstado(ctx context.Context, caseID, estado string) (CaseMutation, error) {
	var resp CaseMutation
	err := c.do(ctx, http.MethodPatch, "cases/"+url.PathEscape(caseID), map[string]string{"estado": estado}, &resp)
	return resp, err
}

func (c *Client) DeleteCase(ctx context.Context, caseID string) error {
	return c.do(ctx, http.MethodDelete, "cases/"+url.PathEscape(caseID), nil, nil)
}

func (c *Client) AddIntake(ctx context.Context, caseID string, in Intake) (Transition, error) {
	var resp struct {
		Transition Transition `json:"transition"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("cases/%s/intakes", url.PathEscape(caseID)), in, &resp)
	return resp.Transition, err
}

func (c *Client) AddStatus(ctx context.Context, caseID string, in StatusEvent) (Transition, error) {
	var resp struct {
		Transition Transition `json:"transition"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("cases/%s/statuses", url.PathEscape(caseID)), in, &resp)
	return resp.Transition, err
}

// Queue returns cases awaiting a ruling in turno order. limit <= 0 returns all.
func (c *Client) Queue(ctx context.Context, limit int) ([]QueueEntry, error) {
	endpoint := "queue"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var resp []QueueEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var parsed struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &parsed) == nil {
			apiErr.Code, apiErr.Message = parsed.Error.Code, parsed.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
