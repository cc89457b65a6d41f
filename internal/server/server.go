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
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bookline/internal/domain"
	"bookline/internal/engine"
	"bookline/internal/engine/auth"
	"bookline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"already_responded"`
	Message string         `json:"message" example:"proposal already responded"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Bookline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Bookline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerArtists(group, cfg.Engine)
	registerClientServices(group, cfg.Engine)
	registerBatches(group, cfg.Engine)
	registerProposals(group, cfg.Engine)
	registerSweep(group, cfg.Engine)
	registerAudit(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
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
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": fe.Role})
	}
	switch {
	case errors.Is(err, engine.ErrAlreadyResponded):
		return newAPIError(http.StatusConflict, "already_responded", err.Error(), nil)
	case errors.Is(err, engine.ErrBatchNotOpen):
		return newAPIError(http.StatusConflict, "batch_not_open", err.Error(), nil)
	case errors.Is(err, engine.ErrOpenBatchExists):
		return newAPIError(http.StatusConflict, "open_batch_exists", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func admins(e engine.Engine) []string {
	if e.Config == nil {
		return nil
	}
	return e.Config.Admins
}

func requireAdmin(ctx context.Context, e engine.Engine) error {
	p, authErr := requirePrincipal(ctx)
	if authErr != nil {
		return authErr
	}
	return auth.RequireAdmin(p.Roles, admins(e), p.ActorID)
}

// requireSelfOrAdmin lets artists reach their own resources only.
func requireSelfOrAdmin(ctx context.Context, e engine.Engine, artistID string) (Principal, error) {
	p, authErr := requirePrincipal(ctx)
	if authErr != nil {
		return p, authErr
	}
	if p.ActorID == artistID {
		return p, nil
	}
	return p, auth.RequireAdmin(p.Roles, admins(e), p.ActorID)
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
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
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
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Bookline API Docs</title>
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

func registerArtists(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-artist",
		Method:        http.MethodPost,
		Path:          "/artists",
		Summary:       "Create artist",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateArtistRequest `json:"body"`
	}) (*struct {
		Body domain.Artist `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		p, _ := principalFromContext(ctx)
		a, err := e.CreateArtist(ctx, domain.Artist{
			Name:        input.Body.Name,
			Category:    input.Body.Category,
			Tier:        input.Body.Tier,
			BoardItemID: input.Body.BoardItemID,
		}, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artist `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-artists",
		Method:      http.MethodGet,
		Path:        "/artists",
		Summary:     "List artists",
	}, func(ctx context.Context, input *struct {
		Category string `query:"category" enum:"makeup,hair,"`
		Active   bool   `query:"active"`
	}) (*struct {
		Body []domain.Artist `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListArtists(ctx, repo.ArtistFilters{Category: input.Category, ActiveOnly: input.Active})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Artist{}
		}
		return &struct {
			Body []domain.Artist `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-artist",
		Method:      http.MethodPatch,
		Path:        "/artists/{artist_id}",
		Summary:     "Update artist",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ArtistID string              `path:"artist_id"`
		Body     UpdateArtistRequest `json:"body"`
	}) (*struct {
		Body domain.Artist `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if input.Body.Tier != nil && (*input.Body.Tier < 1 || *input.Body.Tier > 3) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid tier %d", *input.Body.Tier), nil)
		}
		update := repo.ArtistUpdate{Name: input.Body.Name, Tier: input.Body.Tier, Active: input.Body.Active}
		if err := e.Repo.UpdateArtist(ctx, input.ArtistID, update); err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetArtist(ctx, input.ArtistID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artist `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-artists",
		Method:      http.MethodPost,
		Path:        "/artists/sync",
		Summary:     "Sync artist directory from the board",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SyncArtistsRequest `json:"body"`
	}) (*struct {
		Body SyncArtistsResponse `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		p, _ := principalFromContext(ctx)
		boardID := input.Body.BoardID
		if boardID == "" && e.Config != nil {
			boardID = e.Config.Board.BoardID
		}
		if boardID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "board_id is required", nil)
		}
		n, err := e.SyncArtists(ctx, boardID, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SyncArtistsResponse `json:"body"`
		}{Body: SyncArtistsResponse{Synced: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "artist-proposals",
		Method:      http.MethodGet,
		Path:        "/artists/{artist_id}/proposals",
		Summary:     "Open proposals for an artist",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ArtistID string `path:"artist_id"`
	}) (*struct {
		Body []domain.OpenProposalView `json:"body"`
	}, error) {
		if _, err := requireSelfOrAdmin(ctx, e, input.ArtistID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.OpenProposalsForArtist(ctx, input.ArtistID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.OpenProposalView{}
		}
		return &struct {
			Body []domain.OpenProposalView `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "artist-stats",
		Method:      http.MethodGet,
		Path:        "/artists/{artist_id}/stats",
		Summary:     "Response stats for an artist",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ArtistID string `path:"artist_id"`
	}) (*struct {
		Body domain.ArtistStats `json:"body"`
	}, error) {
		if _, err := requireSelfOrAdmin(ctx, e, input.ArtistID); err != nil {
			return nil, handleError(err)
		}
		stats, err := e.Repo.ArtistStats(ctx, input.ArtistID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ArtistStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerClientServices(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-client-service",
		Method:      http.MethodPost,
		Path:        "/client-services/sync",
		Summary:     "Sync a client service record from the board",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SyncRecordRequest `json:"body"`
	}) (*struct {
		Body domain.ClientServiceRecord `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.BoardItemID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "board_item_id is required", nil)
		}
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		p, _ := principalFromContext(ctx)
		record, err := e.SyncClientService(ctx, input.Body.BoardItemID, input.Body.Category, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClientServiceRecord `json:"body"`
		}{Body: record}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-client-services",
		Method:      http.MethodGet,
		Path:        "/client-services",
		Summary:     "List client service records",
	}, func(ctx context.Context, input *struct {
		Category string `query:"category" enum:"makeup,hair,"`
	}) (*struct {
		Body []domain.ClientServiceRecord `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListClientServices(ctx, input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ClientServiceRecord{}
		}
		return &struct {
			Body []domain.ClientServiceRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "client-service-batches",
		Method:      http.MethodGet,
		Path:        "/client-services/{record_id}/batches",
		Summary:     "Batch history for a client service",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
	}) (*struct {
		Body []domain.BatchView `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetClientService(ctx, input.RecordID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.BatchesForClientService(ctx, input.RecordID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.BatchView{}
		}
		return &struct {
			Body []domain.BatchView `json:"body"`
		}{Body: items}, nil
	})
}

func registerBatches(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-batch",
		Method:        http.MethodPost,
		Path:          "/batches",
		Summary:       "Open a proposal batch",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateBatchRequest `json:"body"`
	}) (*struct {
		Body BatchCreatedResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ClientServiceID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "client_service_id is required", nil)
		}
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		p, _ := principalFromContext(ctx)
		batch, count, err := e.CreateBatch(ctx, engine.CreateBatchOptions{
			ClientServiceID: input.Body.ClientServiceID,
			Mode:            input.Body.Mode,
			StartReason:     input.Body.StartReason,
			TargetCount:     input.Body.TargetCount,
			ActorID:         p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BatchCreatedResponse `json:"body"`
		}{Body: BatchCreatedResponse{
			BatchID:       batch.ID,
			Mode:          batch.Mode,
			Deadline:      batch.Deadline,
			ProposalCount: count,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-batch",
		Method:      http.MethodGet,
		Path:        "/batches/{batch_id}",
		Summary:     "Get batch",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BatchID string `path:"batch_id"`
	}) (*struct {
		Body domain.BatchView `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		batch, err := e.Repo.GetBatch(ctx, input.BatchID)
		if err != nil {
			return nil, handleError(err)
		}
		views, err := e.Repo.BatchesForClientService(ctx, batch.ClientServiceID)
		if err != nil {
			return nil, handleError(err)
		}
		for _, v := range views {
			if v.ID == batch.ID {
				return &struct {
					Body domain.BatchView `json:"body"`
				}{Body: v}, nil
			}
		}
		return nil, newAPIError(http.StatusNotFound, "not_found", "batch not found", nil)
	})
}

func registerProposals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "respond-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{proposal_id}/respond",
		Summary:     "Record an artist response",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProposalID string         `path:"proposal_id"`
		Body       RespondRequest `json:"body"`
	}) (*struct {
		Body domain.Proposal `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		proposal, err := e.Repo.GetProposal(ctx, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		if proposal.ArtistID != p.ActorID {
			if err := auth.RequireAdmin(p.Roles, admins(e), p.ActorID); err != nil {
				return nil, handleError(err)
			}
		}
		if err := e.Respond(ctx, input.ProposalID, input.Body.Response, p.ActorID); err != nil {
			return nil, handleError(err)
		}
		proposal, err = e.Repo.GetProposal(ctx, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Proposal `json:"body"`
		}{Body: proposal}, nil
	})
}

func registerSweep(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "sweep",
		Method:      http.MethodPost,
		Path:        "/sweep",
		Summary:     "Expire batches past their deadline",
		Errors: []int{
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.SweepResult `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		p, _ := principalFromContext(ctx)
		res, err := e.Sweep(ctx, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SweepResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	type auditPage struct {
		Items      []domain.AuditEntry `json:"items"`
		NextCursor int64               `json:"next_cursor,omitempty"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit entries",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Action     string `query:"action"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body auditPage `json:"body"`
	}, error) {
		if err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		items, err := e.Repo.ListAudit(ctx, repo.AuditFilters{
			Action:     input.Action,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Cursor:     input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		page := auditPage{Items: []domain.AuditEntry{}}
		if len(items) > limit {
			page.NextCursor = items[limit].ID
			items = items[:limit]
		}
		page.Items = items
		return &struct {
			Body auditPage `json:"body"`
		}{Body: page}, nil
	})
}
