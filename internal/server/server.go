package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taxline/internal/app"
	"taxline/internal/config"
	"taxline/internal/domain"
	"taxline/internal/engine"
	"taxline/internal/migrate"
	"taxline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Service  app.Service
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_input"`
	Message string         `json:"message" example:"invalid taxpayer input: ssn is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"problems\":[\"ssn is required\"]}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Taxline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
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
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Taxline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Service)
	registerReturns(group, cfg.Service)
	registerYears(group, cfg.Service)
	registerPlan(group)
	registerOpenAPI(router, api, basePath, cfg.Auth.JWTSecret != "")

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
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusBadRequest, "invalid_input", err.Error(), map[string]any{"problems": verr.Problems})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, config.ErrUnknownYear):
		return newAPIError(http.StatusNotFound, "unknown_tax_year", err.Error(), map[string]any{"years": config.Years()})
	case errors.Is(err, context.Canceled):
		return newAPIError(http.StatusRequestTimeout, "canceled", err.Error(), nil)
	case errors.Is(err, app.ErrPriorMismatch):
		return newAPIError(http.StatusConflict, "prior_mismatch", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidPlan):
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
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
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string, secured bool) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			if secured {
				applyAuthSecurity(oas, basePath)
			}
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if route == healthPath {
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
    <title>Taxline API Docs</title>
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

func registerHealth(api huma.API, svc app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		resp := HealthResponse{Status: "ok"}
		if svc.DB != nil {
			st, err := migrate.Current(ctx, svc.DB)
			if err != nil {
				return nil, handleError(err)
			}
			resp.SchemaVersion = st.Version
			resp.SchemaMigration = st.Name
		}
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerReturns(api huma.API, svc app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "compute-return",
		Method:      http.MethodPost,
		Path:        "/returns",
		Summary:     "Compute a return",
		Description: "Runs the federal forms for one filer. With save=true the return is stored and can seed the next year's carryover.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		RawBody []byte
	}) (*struct {
		Body app.ComputeResult `json:"body"`
	}, error) {
		var req ComputeReturnRequest
		if err := config.DecodeYAML(input.RawBody, &req); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid request body", map[string]any{"error": err.Error()})
		}
		if req.TaxYear == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tax_year is required", nil)
		}
		res, err := svc.Compute(ctx, app.ComputeRequest{
			Year:    req.TaxYear,
			Input:   req.Input,
			PriorID: req.PriorID,
			Save:    req.Save,
			ActorID: actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body app.ComputeResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-returns",
		Method:      http.MethodGet,
		Path:        "/returns",
		Summary:     "List stored returns",
	}, func(ctx context.Context, input *struct {
		TaxYear int    `query:"tax_year"`
		SSN     string `query:"ssn"`
		Limit   int    `query:"limit" default:"50"`
	}) (*struct {
		Body ReturnListResponse `json:"body"`
	}, error) {
		items, err := svc.Repo.ListReturns(ctx, repo.ReturnFilters{TaxYear: input.TaxYear, SSN: input.SSN, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ReturnSummary{}
		}
		return &struct {
			Body ReturnListResponse `json:"body"`
		}{Body: ReturnListResponse{Items: items}}, nil
	})

	type returnPath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-return",
		Method:      http.MethodGet,
		Path:        "/returns/{id}",
		Summary:     "Get a stored return",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *returnPath) (*struct {
		Body domain.ReturnRecord `json:"body"`
	}, error) {
		rec, err := svc.Repo.GetReturn(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReturnRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-return",
		Method:        http.MethodDelete,
		Path:          "/returns/{id}",
		Summary:       "Delete a stored return",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *returnPath) (*struct{}, error) {
		if err := svc.DeleteReturn(ctx, input.ID, actorIDFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-return-events",
		Method:      http.MethodGet,
		Path:        "/returns/{id}/events",
		Summary:     "List events of a return",
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Type  string `query:"type"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		items, err := svc.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type, "return", input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: items}}, nil
	})
}

func registerYears(api huma.API, svc app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-years",
		Method:      http.MethodGet,
		Path:        "/years",
		Summary:     "List supported tax years",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body YearsResponse `json:"body"`
	}, error) {
		return &struct {
			Body YearsResponse `json:"body"`
		}{Body: YearsResponse{Years: config.Years()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-year-config",
		Method:      http.MethodGet,
		Path:        "/years/{year}/config",
		Summary:     "Show the constants of a tax year",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Year int `path:"year"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		cfg, err := app.ResolveConfig(input.Year, svc.ConfigFile)
		if err != nil {
			return nil, handleError(err)
		}
		body, err := configBody(cfg)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: body}, nil
	})
}

func registerPlan(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/plan",
		Summary:     "Show the form plan",
		Description: "Lists the builders in execution order with the condition under which each runs.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: PlanResponse{Steps: engine.DefaultPlan().DecisionTable()}}, nil
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
