package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"juzgado/internal/engine"
	"juzgado/internal/engine/auth"
	"juzgado/internal/lifecycle"
	"juzgado/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Log      zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type bodyBytesKey struct{}

// apiError is the error envelope every failure is rendered in.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Juzgado API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Engine.Config == nil {
		return nil, errors.New("server requires an office config")
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Log))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo, cfg.Engine.Config))
	hcfg := huma.DefaultConfig("Juzgado API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerCases(group, cfg.Engine)
	registerIntakes(group, cfg.Engine)
	registerStatuses(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerQueue(group, cfg.Engine)
	registerImport(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			ev := log.Info()
			if ww.Status() >= http.StatusInternalServerError {
				ev = log.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	msg := err.Error()
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", msg, nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, engine.ErrDuplicate):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, engine.ErrRetryable):
		return newAPIError(http.StatusServiceUnavailable, "retryable", msg, nil)
	}
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusServiceUnavailable:
		return "retryable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func badRequest(err error) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func requireBody(ctx context.Context) huma.StatusError {
	if len(bytes.TrimSpace(bodyBytes(ctx))) == 0 {
		return newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):     true,
		path.Join("/", basePath, "auth/token"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="es">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Juzgado API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, ac AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "issue-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Exchange username and password for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body TokenRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(ac.JWTSecret) == "" {
			return nil, newAPIError(http.StatusServiceUnavailable, "token_disabled", "token issuance is not configured", nil)
		}
		if input.Body.Username == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "username and password are required", nil)
		}
		u, err := e.Authenticate(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, exp, err := issueToken(ac.JWTSecret, u, time.Now(), ac.ttl())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: exp.UTC().Format(time.RFC3339)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal and permissions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		perms := p.Permissions
		if perms == nil {
			perms = []string{}
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{UserID: p.UserID, Username: p.Username, Role: p.Role, Permissions: perms}}, nil
	})
}

type casePath struct {
	CaseID string `path:"case_id"`
}

func registerCases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Register a case",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body CreateCaseRequest `json:"body"`
	}) (*struct {
		Body CaseMutationResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		in := input.Body
		fecha, err := parseDate("fecha_ingreso", in.FechaIngreso)
		if err != nil {
			return nil, badRequest(err)
		}
		opts := engine.CaseCreateOptions{
			Radicado:      in.Radicado,
			RadicadoCorto: in.RadicadoCorto,
			Demandante:    in.Demandante,
			Demandado:     in.Demandado,
			JuzgadoOrigen: in.JuzgadoOrigen,
			TipoSolicitud: in.TipoSolicitud,
			Responsable:   in.Responsable,
			FechaIngreso:  fecha,
			ActorID:       actorID,
		}
		if in.Intake != nil {
			intake, err := in.Intake.input()
			if err != nil {
				return nil, badRequest(err)
			}
			opts.Intake = &intake
		}
		c, t, err := e.CreateCase(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseMutationResponse `json:"body"`
		}{Body: CaseMutationResponse{Case: caseResponse(c), Transition: transitionResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Estado      string `query:"estado"`
		Responsable string `query:"responsable"`
		Q           string `query:"q"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedCases `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "case.read"); err != nil {
			return nil, err
		}
		limit := normalizeLimit(input.Limit)
		f := repo.CaseFilters{Responsable: input.Responsable, Search: input.Q, Limit: limit + 1}
		if input.Estado != "" {
			st, err := lifecycle.ParseState(input.Estado)
			if err != nil {
				return nil, badRequest(err)
			}
			f.Estado = st
		}
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		f.CursorCreatedAt, f.CursorID = ts, id
		items, err := e.Repo.ListCases(ctx, nil, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedCases{}
		if len(items) > limit {
			items = items[:limit]
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		resp.Items = mapCases(items)
		return &struct {
			Body paginatedCases `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}",
		Summary:     "Get a case by id or radicado",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body CaseResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "case.read"); err != nil {
			return nil, err
		}
		c, err := e.Repo.GetCase(ctx, nil, input.CaseID)
		if errors.Is(err, repo.ErrNotFound) {
			if rad, nerr := engine.NormalizeRadicado(input.CaseID); nerr == nil {
				c, err = e.Repo.GetCaseByRadicado(ctx, nil, rad)
			}
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseResponse `json:"body"`
		}{Body: caseResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-case",
		Method:      http.MethodPatch,
		Path:        "/cases/{case_id}",
		Summary:     "Edit case fields or force its state",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		CaseID string            `path:"case_id"`
		Body   UpdateCaseRequest `json:"body"`
	}) (*struct {
		Body CaseMutationResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		opts, err := input.Body.options(input.CaseID, actorID)
		if err != nil {
			return nil, badRequest(err)
		}
		c, t, err := e.UpdateCase(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseMutationResponse `json:"body"`
		}{Body: CaseMutationResponse{Case: caseResponse(c), Transition: transitionResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-case",
		Method:        http.MethodDelete,
		Path:          "/cases/{case_id}",
		Summary:       "Delete case and its history",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *casePath) (*struct{}, error) {
		actorID, err := authorize(ctx, "case.delete")
		if err != nil {
			return nil, err
		}
		if err := e.DeleteCase(ctx, input.CaseID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "case-lifecycle",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/lifecycle",
		Summary:     "Explain the case state",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body LifecycleResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "case.read"); err != nil {
			return nil, err
		}
		l, err := e.Describe(ctx, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LifecycleResponse `json:"body"`
		}{Body: lifecycleResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reclassify-case",
		Method:      http.MethodPost,
		Path:        "/cases/{case_id}/reclassify",
		Summary:     "Re-derive one case state from its history",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		t, err := e.Reclassify(ctx, input.CaseID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: transitionResponse(t)}, nil
	})
}

func registerIntakes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-intake",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/intakes",
		Summary:       "Record an intake",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		CaseID string        `path:"case_id"`
		Body   IntakeRequest `json:"body"`
	}) (*struct {
		Body IntakeMutationResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		in, err := input.Body.input()
		if err != nil {
			return nil, badRequest(err)
		}
		rec, t, err := e.AddIntake(ctx, input.CaseID, in, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntakeMutationResponse `json:"body"`
		}{Body: IntakeMutationResponse{Intake: intakeResponse(rec), Transition: transitionResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-intakes",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/intakes",
		Summary:     "List intakes",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body []IntakeResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "case.read"); err != nil {
			return nil, err
		}
		if _, err := e.Repo.GetCase(ctx, nil, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListIntakes(ctx, nil, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]IntakeResponse, 0, len(items))
		for _, in := range items {
			res = append(res, intakeResponse(in))
		}
		return &struct {
			Body []IntakeResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-intake",
		Method:      http.MethodPatch,
		Path:        "/cases/{case_id}/intakes/{intake_id}",
		Summary:     "Correct an intake",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		CaseID   string              `path:"case_id"`
		IntakeID string              `path:"intake_id"`
		Body     UpdateIntakeRequest `json:"body"`
	}) (*struct {
		Body IntakeMutationResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		fecha, err := parseDatePatch("fecha", input.Body.Fecha)
		if err != nil {
			return nil, badRequest(err)
		}
		patch := engine.IntakePatch{
			Fecha:         fecha,
			Solicitud:     input.Body.Solicitud,
			Observaciones: input.Body.Observaciones,
			Ubicacion:     input.Body.Ubicacion,
		}
		rec, t, err := e.UpdateIntake(ctx, input.CaseID, input.IntakeID, patch, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntakeMutationResponse `json:"body"`
		}{Body: IntakeMutationResponse{Intake: intakeResponse(rec), Transition: transitionResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-intake",
		Method:      http.MethodDelete,
		Path:        "/cases/{case_id}/intakes/{intake_id}",
		Summary:     "Delete an intake",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		CaseID   string `path:"case_id"`
		IntakeID string `path:"intake_id"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		t, err := e.DeleteIntake(ctx, input.CaseID, input.IntakeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: transitionResponse(t)}, nil
	})
}

func registerStatuses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-status",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/statuses",
		Summary:       "Record a status event",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		CaseID string        `path:"case_id"`
		Body   StatusRequest `json:"body"`
	}) (*struct {
		Body StatusMutationResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		in, err := input.Body.input()
		if err != nil {
			return nil, badRequest(err)
		}
		rec, t, err := e.AddStatus(ctx, input.CaseID, in, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusMutationResponse `json:"body"`
		}{Body: StatusMutationResponse{Status: statusResponse(rec), Transition: transitionResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/statuses",
		Summary:     "List status events",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body []StatusResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "case.read"); err != nil {
			return nil, err
		}
		if _, err := e.Repo.GetCase(ctx, nil, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStatuses(ctx, nil, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StatusResponse, 0, len(items))
		for _, s := range items {
			res = append(res, statusResponse(s))
		}
		return &struct {
			Body []StatusResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-status",
		Method:      http.MethodPatch,
		Path:        "/cases/{case_id}/statuses/{status_id}",
		Summary:     "Correct a status event",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		CaseID   string              `path:"case_id"`
		StatusID string              `path:"status_id"`
		Body     UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body StatusMutationResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		fecha, err := parseDatePatch("fecha", input.Body.Fecha)
		if err != nil {
			return nil, badRequest(err)
		}
		patch := engine.StatusPatch{
			Fecha:         fecha,
			Clase:         input.Body.Clase,
			Auto:          input.Body.Auto,
			Observaciones: input.Body.Observaciones,
		}
		rec, t, err := e.UpdateStatus(ctx, input.CaseID, input.StatusID, patch, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusMutationResponse `json:"body"`
		}{Body: StatusMutationResponse{Status: statusResponse(rec), Transition: transitionResponse(t)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-status",
		Method:      http.MethodDelete,
		Path:        "/cases/{case_id}/statuses/{status_id}",
		Summary:     "Delete a status event",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		CaseID   string `path:"case_id"`
		StatusID string `path:"status_id"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		t, err := e.DeleteStatus(ctx, input.CaseID, input.StatusID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: transitionResponse(t)}, nil
	})
}

func registerActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-action",
		Method:        http.MethodPost,
		Path:          "/cases/{case_id}/actions",
		Summary:       "Log a procedural action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID string        `path:"case_id"`
		Body   ActionRequest `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		in, err := input.Body.input()
		if err != nil {
			return nil, badRequest(err)
		}
		a, err := e.AddAction(ctx, input.CaseID, in, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionResponse `json:"body"`
		}{Body: actionResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/cases/{case_id}/actions",
		Summary:     "List procedural actions",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *casePath) (*struct {
		Body []ActionResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "case.read"); err != nil {
			return nil, err
		}
		if _, err := e.Repo.GetCase(ctx, nil, input.CaseID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListActions(ctx, nil, input.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ActionResponse, 0, len(items))
		for _, a := range items {
			res = append(res, actionResponse(a))
		}
		return &struct {
			Body []ActionResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-action",
		Method:        http.MethodDelete,
		Path:          "/cases/{case_id}/actions/{action_id}",
		Summary:       "Delete a procedural action",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CaseID   string `path:"case_id"`
		ActionID string `path:"action_id"`
	}) (*struct{}, error) {
		actorID, err := authorize(ctx, "case.write")
		if err != nil {
			return nil, err
		}
		if err := e.DeleteAction(ctx, input.CaseID, input.ActionID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerQueue(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-queue",
		Method:      http.MethodGet,
		Path:        "/queue",
		Summary:     "Cases awaiting a ruling, by turno",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []QueueEntryResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "queue.read"); err != nil {
			return nil, err
		}
		items, err := e.Repo.ListQueue(ctx, nil, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]QueueEntryResponse, 0, len(items))
		for _, q := range items {
			res = append(res, queueEntryResponse(q))
		}
		return &struct {
			Body []QueueEntryResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recompute-queue",
		Method:      http.MethodPost,
		Path:        "/queue/recompute",
		Summary:     "Renumber the whole queue",
		Errors:      []int{http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RecomputeResponse `json:"body"`
	}, error) {
		actorID, err := authorize(ctx, "queue.recompute")
		if err != nil {
			return nil, err
		}
		res, err := e.RecomputeQueue(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecomputeResponse `json:"body"`
		}{Body: recomputeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-states",
		Method:      http.MethodPost,
		Path:        "/states/refresh",
		Summary:     "Re-derive every case state and renumber",
		Errors:      []int{http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RefreshResponse `json:"body"`
	}, error) {
		actorID, err := authorize(ctx, "queue.recompute")
		if err != nil {
			return nil, err
		}
		res, err := e.ReclassifyAll(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RefreshResponse `json:"body"`
		}{Body: RefreshResponse{Checked: res.Checked, Changed: res.Changed, Queue: recomputeResponse(res.Queue)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Cases per state and queue length",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "queue.read"); err != nil {
			return nil, err
		}
		s, err := e.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: statsResponse(s)}, nil
	})
}

func registerImport(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "import-cases",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Upsert cases and their history by radicado",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Rows []ImportRowRequest `json:"rows"`
		} `json:"body"`
	}) (*struct {
		Body engine.ImportSummary `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "import.run")
		if err != nil {
			return nil, err
		}
		rows := make([]engine.ImportRow, 0, len(input.Body.Rows))
		for i, r := range input.Body.Rows {
			row, err := r.row()
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"row": i + 1})
			}
			rows = append(rows, row)
		}
		summary, err := e.ImportRows(ctx, rows, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ImportSummary `json:"body"`
		}{Body: summary}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"case,intake,status,action,queue,user,config,import"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "events.read"); err != nil {
			return nil, err
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Cursor:     cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create an office account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := authorize(ctx, "user.manage")
		if err != nil {
			return nil, err
		}
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			Username:    input.Body.Username,
			DisplayName: input.Body.DisplayName,
			Role:        input.Body.Role,
			Password:    input.Body.Password,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List office accounts",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "user.manage"); err != nil {
			return nil, err
		}
		items, err := e.Repo.ListUsers(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]UserResponse, 0, len(items))
		for _, u := range items {
			res = append(res, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/api-keys",
		Summary:       "Issue an API key; the raw key is shown once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string              `path:"user_id"`
		Body   CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, err := authorize(ctx, "user.manage")
		if err != nil {
			return nil, err
		}
		k, raw, err := e.CreateAPIKey(ctx, input.UserID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: apiKeyResponse(k, raw)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/api-keys",
		Summary:     "List a user's API keys",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if _, err := authorize(ctx, "user.manage"); err != nil {
			return nil, err
		}
		if _, err := e.Repo.GetUser(ctx, nil, input.UserID); err != nil {
			return nil, handleError(err)
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			res = append(res, apiKeyResponse(k, ""))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, err := authorize(ctx, "user.manage")
		if err != nil {
			return nil, err
		}
		if err := e.RevokeAPIKey(ctx, input.KeyID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
