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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"setback/internal/domain"
	"setback/internal/engine"
	"setback/internal/library"
	"setback/internal/logging"
	"setback/internal/repo"
)

const devTokenTTL = 12 * time.Hour

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Metrics mounts promhttp at /metrics, outside the authenticated base path.
	Metrics bool
	Logger  *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"worker_id\":\"w1\"}"`
}

type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the setback API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Engine.Generator == nil {
		return nil, errors.New("engine has no generator")
	}
	logger := logging.OrNop(cfg.Logger)
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Setback API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	if cfg.Metrics {
		router.Handle("/metrics", promhttp.Handler())
	}
	registerHealth(group)
	registerMe(group)
	registerWorkers(group, cfg.Engine)
	registerFailures(group, cfg.Engine, logger)
	registerLearnings(group, cfg.Engine)
	registerTemplates(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidInput):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.As(err, &cfgErr):
		return newAPIError(http.StatusUnprocessableEntity, "configuration_error", err.Error(), map[string]any{"problems": cfgErr.Problems})
	case domain.IsContentDefect(err):
		return newAPIError(http.StatusInternalServerError, "content_defect", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already exists"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
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
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
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
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Setback API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{ActorID: principal.ActorID, Source: principal.Source}}, nil
	})
}

func registerWorkers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "spawn-worker",
		Method:      http.MethodPost,
		Path:        "/workers",
		Summary:     "Spawn worker",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SpawnWorkerRequest `json:"body"`
	}) (*struct {
		Body WorkerResponse `json:"body"`
	}, error) {
		w, err := e.SpawnWorker(ctx, engine.SpawnOptions{
			ID:        strings.TrimSpace(input.Body.ID),
			Name:      strings.TrimSpace(input.Body.Name),
			Preset:    strings.TrimSpace(input.Body.Preset),
			Profile:   input.Body.Profile,
			Overrides: traitOverrides(input.Body.Overrides),
			ActorID:   actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkerResponse `json:"body"`
		}{Body: workerResponse(w, e.Generator.Archetype(w.Profile))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/workers",
		Summary:     "List workers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body workerList `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := workerList{Items: []WorkerResponse{}}
		for _, w := range items {
			resp.Items = append(resp.Items, workerResponse(w, e.Generator.Archetype(w.Profile)))
		}
		return &struct {
			Body workerList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-worker",
		Method:      http.MethodGet,
		Path:        "/workers/{id}",
		Summary:     "Get worker",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body WorkerResponse `json:"body"`
	}, error) {
		w, err := e.Repo.GetWorker(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.FailureCounts(ctx, w.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := workerResponse(w, e.Generator.Archetype(w.Profile))
		resp.FailureCounts = counts
		return &struct {
			Body WorkerResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-personality",
		Method:      http.MethodPatch,
		Path:        "/workers/{id}/personality",
		Summary:     "Change a worker's personality",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body SetPersonalityRequest `json:"body"`
	}) (*struct {
		Body WorkerResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		w, err := e.SetPersonality(ctx, engine.SetPersonalityOptions{
			WorkerID:  input.ID,
			Preset:    strings.TrimSpace(input.Body.Preset),
			Profile:   input.Body.Profile,
			Overrides: traitOverrides(input.Body.Overrides),
			ActorID:   actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkerResponse `json:"body"`
		}{Body: workerResponse(w, e.Generator.Archetype(w.Profile))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "despawn-worker",
		Method:        http.MethodDelete,
		Path:          "/workers/{id}",
		Summary:       "Despawn worker and forget its history",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DespawnWorker(ctx, input.ID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-presets",
		Method:      http.MethodGet,
		Path:        "/presets",
		Summary:     "Personality presets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]domain.Profile `json:"body"`
	}, error) {
		presets := map[string]domain.Profile{}
		if e.Config != nil {
			for name, p := range e.Config.Presets {
				presets[name] = p
			}
		}
		return &struct {
			Body map[string]domain.Profile `json:"body"`
		}{Body: presets}, nil
	})
}

func registerFailures(api huma.API, e engine.Engine, logger *zap.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "report-failure",
		Method:      http.MethodPost,
		Path:        "/workers/{id}/failures",
		Summary:     "Report a failure and get the worker's response",
		Description: "A content defect still answers 200 with fallback=true and the fallback dialogue.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body FailureRequest `json:"body"`
	}) (*struct {
		Body FailureResponse `json:"body"`
	}, error) {
		out, err := e.HandleFailure(ctx, engine.FailureEvent{
			WorkerID:    input.ID,
			FailureType: domain.FailureType(input.Body.FailureType),
			Score:       input.Body.Score,
			Emotion:     domain.EmotionalState(input.Body.Emotion),
			ActorID:     actorID(ctx),
		})
		if err != nil && !out.Fallback {
			return nil, handleError(err)
		}
		resp := failureResponse(out)
		if err != nil {
			logger.Warn("served fallback dialogue", zap.String("worker_id", input.ID), zap.Error(err))
			resp.Error = err.Error()
		}
		return &struct {
			Body FailureResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-failures",
		Method:      http.MethodGet,
		Path:        "/workers/{id}/failures",
		Summary:     "Failure history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID          string `path:"id"`
		FailureType string `query:"failure_type"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body failureList `json:"body"`
	}, error) {
		if _, err := e.Repo.GetWorker(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListFailures(ctx, repo.FailureFilters{WorkerID: input.ID, FailureType: input.FailureType, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		resp := failureList{Items: []FailureRecordResponse{}}
		for _, f := range items {
			resp.Items = append(resp.Items, FailureRecordResponse{ID: f.ID, FailureType: f.FailureType, Score: f.Score, Severity: f.Severity, TS: f.TS})
		}
		return &struct {
			Body failureList `json:"body"`
		}{Body: resp}, nil
	})

	speak := func(operationID, route, summary string, say func(context.Context, engine.FailureEvent) (string, error)) {
		huma.Register(api, huma.Operation{
			OperationID: operationID,
			Method:      http.MethodPost,
			Path:        route,
			Summary:     summary,
			Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
		}, func(ctx context.Context, input *struct {
			ID   string         `path:"id"`
			Body FailureRequest `json:"body"`
		}) (*struct {
			Body LineResponse `json:"body"`
		}, error) {
			text, err := say(ctx, engine.FailureEvent{
				WorkerID:    input.ID,
				FailureType: domain.FailureType(input.Body.FailureType),
				Score:       input.Body.Score,
				Emotion:     domain.EmotionalState(input.Body.Emotion),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body LineResponse `json:"body"`
			}{Body: LineResponse{WorkerID: input.ID, Text: text}}, nil
		})
	}
	speak("help-request", "/workers/{id}/help", "Ask the player for help", e.HelpRequest)
	speak("embarrassment", "/workers/{id}/embarrassment", "React to a witnessed failure", e.Embarrassment)
}

func registerLearnings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-learnings",
		Method:      http.MethodGet,
		Path:        "/workers/{id}/learnings",
		Summary:     "Learning statements, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body learningList `json:"body"`
	}, error) {
		if _, err := e.Repo.GetWorker(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListLearnings(ctx, input.ID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		resp := learningList{Items: []LearningResponse{}}
		for _, l := range items {
			resp.Items = append(resp.Items, LearningResponse{ID: l.ID, FailureType: l.FailureType, Statement: l.Statement, CreatedAt: l.CreatedAt})
		}
		return &struct {
			Body learningList `json:"body"`
		}{Body: resp}, nil
	})
}

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "Loaded response templates",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Category string `query:"category"`
	}) (*struct {
		Body templateList `json:"body"`
	}, error) {
		lib := e.Generator.Library()
		categories := lib.Categories()
		if input.Category != "" {
			c := domain.Category(input.Category)
			if !c.Valid() {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown category", map[string]any{"category": input.Category})
			}
			categories = []domain.Category{c}
		}
		resp := templateList{Items: []TemplateResponse{}}
		for _, c := range categories {
			for _, t := range lib.Templates(c) {
				resp.Items = append(resp.Items, TemplateResponse{
					ID:        t.ID,
					Category:  string(t.Category),
					Archetype: t.ArchetypeTag,
					Text:      t.Text,
					Variables: nonNilSlice(library.Placeholders(t.Text)),
				})
			}
		}
		sort.SliceStable(resp.Items, func(i, j int) bool { return resp.Items[i].Category < resp.Items[j].Category })
		return &struct {
			Body templateList `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Event log, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type     string `query:"type"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{Type: input.Type, EntityID: input.EntityID, Cursor: cursorID, Limit: limit + 1})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-api-key",
		Method:      http.MethodPost,
		Path:        "/api-keys",
		Summary:     "Create API key",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		key, plain, err := e.CreateAPIKey(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Name: key.Name, Key: plain, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, devTokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
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
