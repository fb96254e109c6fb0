package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/handler/dto"
	"github.com/mtlprog/commandcenter/internal/metrics"
	"github.com/mtlprog/commandcenter/internal/middleware"
	"github.com/mtlprog/commandcenter/internal/repository"
	"github.com/mtlprog/commandcenter/internal/service"
	"github.com/mtlprog/commandcenter/internal/static"
)

// maxBodyBytes caps request bodies, webhook payloads included.
const maxBodyBytes = 1 << 20

// SignatureHeader carries the shared secret of an inbound webhook call.
const SignatureHeader = "X-Command-Center-Signature"

// Options are the process-wide dependencies of the HTTP layer.
type Options struct {
	Scope                domain.Scope
	Runtime              service.Runtime
	Notifier             service.RunNotifier
	Metrics              *metrics.Metrics
	Gatherer             prometheus.Gatherer
	ReconcileConcurrency int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	pool            *pgxpool.Pool
	gatherer        prometheus.Gatherer
	runService      *service.RunService
	approvalService *service.ApprovalService
	agentService    *service.AgentService
	deployService   *service.DeploymentService
	catalogService  *service.CatalogService
	webhookService  *service.WebhookService
	scopeMiddleware *middleware.ScopeMiddleware
}

// New creates a new Handler instance with all dependencies.
func New(pool *pgxpool.Pool, opts Options) *Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}

	repos := repository.NewSet(pool)
	auditor := service.NewAuditor(repos.Audit)

	reconciler := service.NewReconciler(pool, repos, opts.Runtime, opts.Notifier, opts.Metrics, opts.ReconcileConcurrency)
	runService := service.NewRunService(pool, repos, opts.Runtime, reconciler, auditor, opts.Notifier, opts.Metrics)

	return &Handler{
		pool:            pool,
		gatherer:        opts.Gatherer,
		runService:      runService,
		approvalService: service.NewApprovalService(pool, repos, opts.Runtime, auditor, opts.Notifier, opts.Metrics),
		agentService:    service.NewAgentService(pool, repos, auditor),
		deployService:   service.NewDeploymentService(pool, repos, auditor),
		catalogService:  service.NewCatalogService(repos),
		webhookService:  service.NewWebhookService(pool, repos, runService, auditor),
		scopeMiddleware: middleware.NewScopeMiddleware(opts.Scope),
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api.md", h.handleAPIGuide)

	mux.Handle("GET /api/v1/stats", h.scoped(h.handleGetStats))

	mux.Handle("GET /api/v1/agents", h.scoped(h.handleListAgents))
	mux.Handle("POST /api/v1/agents", h.scoped(h.handleCreateAgent))
	mux.Handle("GET /api/v1/agents/{id}", h.scoped(h.handleGetAgent))
	mux.Handle("PUT /api/v1/agents/{id}", h.scoped(h.handleUpdateAgent))
	mux.Handle("POST /api/v1/agents/{id}/deploy", h.scoped(h.handleDeployAgent))
	mux.Handle("GET /api/v1/agents/{id}/metrics", h.scoped(h.handleAgentMetrics))
	mux.Handle("GET /api/v1/agents/{id}/webhooks", h.scoped(h.handleListWebhooks))
	mux.Handle("POST /api/v1/agents/{id}/webhooks", h.scoped(h.handleCreateWebhook))

	mux.Handle("GET /api/v1/policies", h.scoped(h.handleListPolicies))
	mux.Handle("GET /api/v1/templates", h.scoped(h.handleListTemplates))
	mux.Handle("GET /api/v1/deployments", h.scoped(h.handleListDeployments))

	mux.Handle("GET /api/v1/runs", h.scoped(h.handleListRuns))
	mux.Handle("POST /api/v1/runs", h.scoped(h.handleCreateRun))
	mux.Handle("GET /api/v1/runs/{id}", h.scoped(h.handleGetRun))
	mux.Handle("POST /api/v1/runs/{id}/cancel", h.scoped(h.handleCancelRun))
	mux.Handle("GET /api/v1/runs/{id}/stream", h.scoped(h.handleStreamRun))

	mux.Handle("GET /api/v1/approvals", h.scoped(h.handleListApprovals))
	mux.Handle("POST /api/v1/approvals/{id}/decision", h.scoped(h.handleDecideApproval))

	mux.Handle("POST /api/v1/webhooks/{id}", h.scoped(h.handleWebhook))
}

func (h *Handler) scoped(fn http.HandlerFunc) http.Handler {
	return h.scopeMiddleware.Attach(fn)
}

// handleHealthz returns 200 OK if the database is reachable.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.pool.Ping(ctx); err != nil {
		slog.Error("database health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleAPIGuide serves the embedded API guide.
func (h *Handler) handleAPIGuide(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(static.APIGuide))
}

// Ping checks if the database is reachable (used for testing).
func (h *Handler) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondOK writes data in the success envelope.
func respondOK(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, dto.NewResponse(data))
}

// respondError writes a standard error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, dto.NewErrorResponse(code, message))
}

// respondDomainError maps err through dto.MapDomainError.
func respondDomainError(w http.ResponseWriter, err error) {
	status, code, message := dto.MapDomainError(err)
	respondError(w, status, code, message)
}

// requestScope extracts the scope attached by the middleware.
func requestScope(w http.ResponseWriter, r *http.Request) (domain.Scope, bool) {
	scope, err := middleware.GetScopeFromContext(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return domain.Scope{}, false
	}
	return scope, true
}

// extractID extracts and validates the {id} path parameter.
// Returns ("", false) if invalid (error already sent to client).
func extractID(w http.ResponseWriter, r *http.Request, what string) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", what+" id is required")
		return "", false
	}

	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", what+" id must be a valid UUID")
		return "", false
	}

	return id, true
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}
