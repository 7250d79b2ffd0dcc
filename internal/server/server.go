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

	"sitebrief/internal/domain"
	"sitebrief/internal/engine"
	"sitebrief/internal/engine/fault"
	"sitebrief/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Auth     AuthConfig
	// BaseContext bounds background work started by the server; the webhook
	// dispatcher stops when it is canceled. Nil means process lifetime.
	BaseContext context.Context
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"target_not_empty"`
	Message string         `json:"message" example:"target date 2025-06-24 already holds 3 activities"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"date\":\"2025-06-24\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Sitebrief API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
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
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Sitebrief API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerBriefings(group, cfg.Engine)
	registerActivities(group, cfg.Engine)
	registerCopyDay(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerContractors(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	startWebhookDispatcher(baseCtx, cfg.Engine)

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
	var ve fault.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	var de fault.DuplicateNameError
	if errors.As(err, &de) {
		return newAPIError(http.StatusConflict, "duplicate_name", err.Error(), map[string]any{"name": de.Name})
	}
	var nse fault.NoSourceDataError
	if errors.As(err, &nse) {
		return newAPIError(http.StatusNotFound, "no_source_data", err.Error(), map[string]any{"date": nse.Date})
	}
	var tne fault.TargetNotEmptyError
	if errors.As(err, &tne) {
		return newAPIError(http.StatusConflict, "target_not_empty", err.Error(), map[string]any{"date": tne.Date, "count": tne.Count})
	}
	var nce fault.NothingToCopyError
	if errors.As(err, &nce) {
		return newAPIError(http.StatusConflict, "nothing_to_copy", err.Error(), map[string]any{"date": nce.Date})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
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
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
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
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
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
    <title>Sitebrief API Docs</title>
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

func registerProjects(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.InitProject(ctx, input.Body.ID, stringOrEmpty(input.Body.Name), actorID); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.Body.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		p, err := e.Repo.GetProject(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-config",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/config",
		Summary:     "Get project config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectConfigResponse `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerBriefings(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-briefing",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/briefings/{date}",
		Summary:     "Get or create the briefing for a date",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Date      string `path:"date"`
	}) (*struct {
		Body BriefingResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		b, err := e.GetOrCreateBriefing(ctx, projectID, input.Date, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BriefingResponse `json:"body"`
		}{Body: briefingResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-briefing",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/briefings/{date}",
		Summary:     "Update briefing text",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Date      string                `path:"date"`
		Body      UpdateBriefingRequest `json:"body"`
	}) (*struct {
		Body BriefingResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		b, err := e.UpdateBriefing(ctx, engine.BriefingUpdateOptions{
			ProjectID:     projectID,
			Date:          input.Date,
			Status:        input.Body.Status,
			Overview:      input.Body.Overview,
			Notes:         input.Body.Notes,
			SafetyMessage: input.Body.SafetyMessage,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BriefingResponse `json:"body"`
		}{Body: briefingResponse(b)}, nil
	})
}

func registerActivities(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/briefings/{date}/activities",
		Summary:     "List a day's activities in briefing order",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Date      string `path:"date"`
	}) (*struct {
		Body []ActivityResponse `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		items, err := e.ListActivities(ctx, projectID, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		maps, err := e.BuildLookupMaps(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ActivityResponse `json:"body"`
		}{Body: mapActivities(items, maps)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/briefings/{date}/activities",
		Summary:       "Add an activity to a day's briefing",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Date      string                `path:"date"`
		Body      CreateActivityRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		a, err := e.AddActivity(ctx, engine.ActivityCreateOptions{
			ProjectID:     projectID,
			Date:          input.Date,
			TimeOfDay:     stringOrEmpty(input.Body.TimeOfDay),
			Title:         input.Body.Title,
			Description:   stringOrEmpty(input.Body.Description),
			Area:          stringOrEmpty(input.Body.Area),
			Priority:      stringOrEmpty(input.Body.Priority),
			LaborCount:    intOrZero(input.Body.LaborCount),
			ContractorIDs: input.Body.ContractorIDs,
			AssignedTo:    stringOrEmpty(input.Body.AssignedTo),
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		maps, err := e.BuildLookupMaps(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a, maps)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/activities/{activity_id}",
		Summary:     "Get activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		ActivityID string `path:"activity_id"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		a, err := e.Repo.GetActivity(ctx, projectID, input.ActivityID)
		if err != nil {
			return nil, handleError(err)
		}
		maps, err := e.BuildLookupMaps(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a, maps)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-activity",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/activities/{activity_id}",
		Summary:     "Replace activity fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID  string                `path:"project_id"`
		ActivityID string                `path:"activity_id"`
		Body       UpdateActivityRequest `json:"body"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		a, err := e.UpdateActivity(ctx, engine.ActivityUpdateOptions{
			ProjectID:     projectID,
			ID:            input.ActivityID,
			TimeOfDay:     stringOrEmpty(input.Body.TimeOfDay),
			Title:         input.Body.Title,
			Description:   stringOrEmpty(input.Body.Description),
			Area:          stringOrEmpty(input.Body.Area),
			Priority:      stringOrEmpty(input.Body.Priority),
			LaborCount:    intOrZero(input.Body.LaborCount),
			ContractorIDs: input.Body.ContractorIDs,
			AssignedTo:    stringOrEmpty(input.Body.AssignedTo),
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		maps, err := e.BuildLookupMaps(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a, maps)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-activity",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/activities/{activity_id}",
		Summary:     "Delete activity",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		ActivityID string `path:"activity_id"`
	}) (*struct {
		Body ActivityResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		a, err := e.DeleteActivity(ctx, projectID, input.ActivityID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		maps, err := e.BuildLookupMaps(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityResponse `json:"body"`
		}{Body: activityResponse(a, maps)}, nil
	})
}

func registerCopyDay(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "copy-day",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/briefings/copy",
		Summary:     "Copy a day's activities onto an empty day",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		Body      CopyDayRequest `json:"body"`
	}) (*struct {
		Body CopyDayResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.SourceDate == "" || input.Body.TargetDate == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "source_date and target_date are required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		copied, err := e.CopyDay(ctx, projectID, input.Body.SourceDate, input.Body.TargetDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CopyDayResponse `json:"body"`
		}{Body: CopyDayResponse{
			SourceDate:  input.Body.SourceDate,
			TargetDate:  input.Body.TargetDate,
			CopiedCount: copied,
		}}, nil
	})
}

func registerStats(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats-daily",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stats/daily",
		Summary:     "Daily labor and activity totals",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Date      string `query:"date"`
	}) (*struct {
		Body engine.DailyStats `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		stats, err := e.DailyTotals(ctx, projectID, input.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DailyStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-range",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stats/range",
		Summary:     "Range totals with a zero-filled daily series",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Start     string `query:"start"`
		End       string `query:"end"`
	}) (*struct {
		Body engine.RangeStats `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		stats, err := e.RangeTotals(ctx, projectID, input.Start, input.End)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RangeStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-rolling",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stats/rolling",
		Summary:     "Per-contractor labor over a rolling window",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		End       string `query:"end"`
		Window    int    `query:"window"`
	}) (*struct {
		Body map[string]map[string]int `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		stats, err := e.RollingContractorDaily(ctx, projectID, input.End, input.Window)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]map[string]int `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-areas",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stats/areas",
		Summary:     "Lifetime per-area usage",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []engine.AreaUsage `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		stats, err := e.AreaUsageStats(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.AreaUsage `json:"body"`
		}{Body: nonNilSlice(stats)}, nil
	})
}

func registerContractors(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-contractors",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/contractors",
		Summary:     "List contractors in roster order",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []ContractorResponse `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		items, err := e.Repo.ListContractors(ctx, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ContractorResponse `json:"body"`
		}{Body: mapContractors(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-contractor",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/contractors",
		Summary:       "Add contractor to the roster",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      CreateContractorRequest `json:"body"`
	}) (*struct {
		Body ContractorResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		c, err := e.AddContractor(ctx, engine.ContractorCreateOptions{
			ProjectID:   projectID,
			Name:        input.Body.Name,
			Trade:       input.Body.Trade,
			Status:      stringOrEmpty(input.Body.Status),
			ContactName: stringOrEmpty(input.Body.ContactName),
			Phone:       stringOrEmpty(input.Body.Phone),
			Email:       stringOrEmpty(input.Body.Email),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContractorResponse `json:"body"`
		}{Body: contractorResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-contractor",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/contractors/{contractor_id}",
		Summary:     "Update contractor",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID    string                  `path:"project_id"`
		ContractorID string                  `path:"contractor_id"`
		Body         UpdateContractorRequest `json:"body"`
	}) (*struct {
		Body ContractorResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		c, err := e.UpdateContractor(ctx, engine.ContractorUpdateOptions{
			ProjectID:   projectID,
			ID:          input.ContractorID,
			Name:        input.Body.Name,
			Trade:       input.Body.Trade,
			Status:      input.Body.Status,
			ContactName: input.Body.ContactName,
			Phone:       input.Body.Phone,
			Email:       input.Body.Email,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContractorResponse `json:"body"`
		}{Body: contractorResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-contractor",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/contractors/{contractor_id}",
		Summary:     "Remove contractor from the roster",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		ContractorID string `path:"contractor_id"`
	}) (*struct {
		Body ContractorResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		c, err := e.DeleteContractor(ctx, projectID, input.ContractorID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContractorResponse `json:"body"`
		}{Body: contractorResponse(c)}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent audit events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		projectID := projectFromPathOrHeader(ctx, input.ProjectID, e.Config.Project.ID)
		limit := normalizeLimit(input.Limit)
		var evts []EventResponse
		var next string
		if input.Cursor != "" {
			beforeID, err := parseEventCursor(input.Cursor)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			raw, err := e.Repo.LatestEventsFrom(ctx, projectID, beforeID, limit)
			if err != nil {
				return nil, handleError(err)
			}
			evts, next = mapEventsPage(raw, limit)
		} else {
			raw, err := e.Repo.LatestEvents(ctx, projectID, limit)
			if err != nil {
				return nil, handleError(err)
			}
			evts, next = mapEventsPage(raw, limit)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: paginatedEvents{Items: evts, NextCursor: next}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Source:  principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, time.Hour)
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
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
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

func parseEventCursor(cursor string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(cursor, "%d", &id); err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid cursor")
	}
	return id, nil
}

func mapEventsPage(raw []domain.Event, limit int) ([]EventResponse, string) {
	items := make([]EventResponse, 0, len(raw))
	for _, evt := range raw {
		items = append(items, eventResponse(evt))
	}
	next := ""
	if len(raw) == limit && len(raw) > 0 {
		next = strconv.FormatInt(raw[len(raw)-1].ID, 10)
	}
	return items, next
}

func projectFromPathOrHeader(ctx context.Context, pathProjectID, fallback string) string {
	if pathProjectID != "" {
		return pathProjectID
	}
	if req, ok := ctx.Value(requestKey{}).(*http.Request); ok && req != nil {
		if v := strings.TrimSpace(req.Header.Get("X-Project-Id")); v != "" {
			return v
		}
	}
	return fallback
}
