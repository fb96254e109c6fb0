package handler

import (
	"net/http"
	"strconv"

	"github.com/mtlprog/commandcenter/internal/handler/dto"
)

// handleGetStats returns the workspace dashboard counters.
func (h *Handler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	stats, err := h.catalogService.Stats(r.Context(), scope)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusOK, dto.ToStatsResponse(stats))
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	policies, err := h.catalogService.ListPolicies(r.Context(), scope)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]dto.PolicyResponse, len(policies))
	for i, p := range policies {
		resp[i] = dto.ToPolicyResponse(p)
	}
	respondOK(w, http.StatusOK, resp)
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	templates, err := h.catalogService.ListTemplates(r.Context(), scope)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]dto.TemplateResponse, len(templates))
	for i, t := range templates {
		resp[i] = dto.ToTemplateResponse(t)
	}
	respondOK(w, http.StatusOK, resp)
}

// handleListDeployments lists recent workspace deployments (?limit=, default 50).
func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	limit, ok := parseIntParam(w, r, "limit")
	if !ok {
		return
	}

	deps, err := h.deployService.List(r.Context(), scope, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]dto.DeploymentResponse, len(deps))
	for i, d := range deps {
		resp[i] = dto.ToDeploymentResponse(d)
	}
	respondOK(w, http.StatusOK, resp)
}

// parseIntParam reads an optional non-negative integer query parameter.
func parseIntParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}
