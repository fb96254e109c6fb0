package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/handler/dto"
	"github.com/mtlprog/commandcenter/internal/service"
)

// handleListRuns lists runs, most recent first.
// Query: agentId, status (comma separated), limit, offset.
func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var params service.RunListParams

	if agentID := query.Get("agentId"); agentID != "" {
		if _, err := uuid.Parse(agentID); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "agentId must be a valid UUID")
			return
		}
		params.AgentID = &agentID
	}

	if raw := query.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.RunStatus(strings.TrimSpace(s))
			if !status.IsValid() {
				respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("unknown run status %q", s))
				return
			}
			params.Statuses = append(params.Statuses, status)
		}
	}

	if params.Limit, ok = parseIntParam(w, r, "limit"); !ok {
		return
	}
	if params.Offset, ok = parseIntParam(w, r, "offset"); !ok {
		return
	}

	details, err := h.runService.ListRuns(r.Context(), scope, params)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]dto.RunDetailResponse, len(details))
	for i, d := range details {
		resp[i] = dto.ToRunDetailResponse(d)
	}
	respondOK(w, http.StatusOK, resp)
}

// handleCreateRun creates a run for an agent's active deployment.
func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req dto.CreateRunRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if _, err := uuid.Parse(req.AgentID); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "agentId must be a valid UUID")
		return
	}

	detail, err := h.runService.CreateRun(r.Context(), scope, service.CreateRunInput{
		AgentID:      req.AgentID,
		DeploymentID: req.DeploymentID,
		Input:        req.Input,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusCreated, dto.ToRunDetailResponse(detail))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	runID, ok := extractID(w, r, "run")
	if !ok {
		return
	}

	detail, err := h.runService.GetRun(r.Context(), scope, runID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusOK, dto.ToRunDetailResponse(detail))
}

func (h *Handler) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	runID, ok := extractID(w, r, "run")
	if !ok {
		return
	}

	detail, err := h.runService.CancelRun(r.Context(), scope, runID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusOK, dto.ToRunDetailResponse(detail))
}

// handleStreamRun writes a single server-sent "snapshot" event with the
// reconciled run, its tasks and approvals, then ends the stream.
func (h *Handler) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	runID, ok := extractID(w, r, "run")
	if !ok {
		return
	}

	detail, err := h.runService.GetRun(r.Context(), scope, runID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	payload, err := json.Marshal(dto.ToRunSnapshot(detail))
	if err != nil {
		slog.Error("failed to encode run snapshot", "run_id", runID, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
		slog.Warn("failed to write run snapshot", "run_id", runID, "error", err)
		return
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
