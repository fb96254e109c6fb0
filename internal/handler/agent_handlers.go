package handler

import (
	"net/http"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/handler/dto"
	"github.com/mtlprog/commandcenter/internal/service"
)

// handleListAgents lists workspace agents, most recently updated first.
func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	agents, err := h.agentService.List(r.Context(), scope)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]dto.AgentResponse, len(agents))
	for i, a := range agents {
		resp[i] = dto.ToAgentResponse(a)
	}
	respondOK(w, http.StatusOK, resp)
}

// handleCreateAgent creates an agent. Config defaults are applied.
func (h *Handler) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req dto.CreateAgentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	agent, err := h.agentService.Create(r.Context(), scope, service.CreateAgentInput{
		Name:       req.Name,
		Kind:       domain.AgentKind(req.Kind),
		PolicyID:   req.PolicyID,
		TemplateID: req.TemplateID,
		Config:     req.Config,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusCreated, dto.ToAgentResponse(agent))
}

// handleGetAgent returns an agent with its policy, deployments and recent runs.
func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	agentID, ok := extractID(w, r, "agent")
	if !ok {
		return
	}

	detail, err := h.agentService.Get(r.Context(), scope, agentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusOK, dto.ToAgentDetailResponse(detail))
}

// handleUpdateAgent applies a partial agent update.
func (h *Handler) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	agentID, ok := extractID(w, r, "agent")
	if !ok {
		return
	}

	var req dto.UpdateAgentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	in := service.UpdateAgentInput{
		Name:       req.Name,
		PolicyID:   req.PolicyID,
		TemplateID: req.TemplateID,
		Config:     req.Config,
	}
	if req.Kind != nil {
		kind := domain.AgentKind(*req.Kind)
		in.Kind = &kind
	}

	agent, err := h.agentService.Update(r.Context(), scope, agentID, in)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusOK, dto.ToAgentResponse(agent))
}

// handleDeployAgent promotes the agent's current state to a new active deployment.
func (h *Handler) handleDeployAgent(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	agentID, ok := extractID(w, r, "agent")
	if !ok {
		return
	}

	dep, err := h.deployService.Promote(r.Context(), scope, agentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusCreated, dto.ToDeploymentResponse(dep))
}

func (h *Handler) handleAgentMetrics(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	agentID, ok := extractID(w, r, "agent")
	if !ok {
		return
	}

	m, err := h.agentService.Metrics(r.Context(), scope, agentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusOK, dto.ToAgentMetricsResponse(m))
}

func (h *Handler) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	agentID, ok := extractID(w, r, "agent")
	if !ok {
		return
	}

	triggers, err := h.webhookService.ListByAgent(r.Context(), scope, agentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]dto.WebhookResponse, len(triggers))
	for i, t := range triggers {
		resp[i] = dto.ToWebhookResponse(t, false)
	}
	respondOK(w, http.StatusOK, resp)
}

// handleCreateWebhook creates a trigger. The secret is only ever returned here.
func (h *Handler) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	agentID, ok := extractID(w, r, "agent")
	if !ok {
		return
	}

	var req dto.CreateWebhookRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	trigger, err := h.webhookService.Create(r.Context(), scope, agentID, req.Name)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondOK(w, http.StatusCreated, dto.ToWebhookResponse(trigger, true))
}
