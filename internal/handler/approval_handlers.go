package handler

import (
	"net/http"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/handler/dto"
)

// handleListApprovals lists approval requests, optionally filtered by ?status=.
func (h *Handler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var status *domain.ApprovalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.ApprovalStatus(raw)
		status = &s
	}

	approvals, err := h.approvalService.List(r.Context(), scope, status)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]dto.ApprovalResponse, len(approvals))
	for i, a := range approvals {
		resp[i] = dto.ToApprovalResponse(a)
	}
	respondOK(w, http.StatusOK, resp)
}

// handleDecideApproval approves or rejects a pending approval request.
func (h *Handler) handleDecideApproval(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	approvalID, ok := extractID(w, r, "approval")
	if !ok {
		return
	}

	var req dto.DecisionRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	approval, err := h.approvalService.Decide(r.Context(), scope, approvalID, domain.ApprovalStatus(req.Decision), req.Note)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusOK, dto.ToApprovalResponse(approval))
}
