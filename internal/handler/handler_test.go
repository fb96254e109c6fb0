package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/commandcenter/internal/config"
	"github.com/mtlprog/commandcenter/internal/database"
	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/handler"
	"github.com/mtlprog/commandcenter/internal/handler/dto"
	"github.com/mtlprog/commandcenter/internal/metrics"
	"github.com/mtlprog/commandcenter/internal/notify"
	"github.com/mtlprog/commandcenter/internal/orchestrator"
	"github.com/mtlprog/commandcenter/internal/repository"
	"github.com/mtlprog/commandcenter/internal/service"
)

// envelope is the decoded response wrapper.
type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

// orchestratorStub serves the runtime API from memory.
type orchestratorStub struct {
	mu     sync.Mutex
	seq    int
	states map[string]string
}

func (o *orchestratorStub) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orchestrate", func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.seq++
		id := fmt.Sprintf("job-%d", o.seq)
		o.states[id] = "STARTED"
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": id, "state": "STARTED"})
	})
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		defer o.mu.Unlock()
		state, ok := o.states[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": r.PathValue("id"), "state": state})
	})
	mux.HandleFunc("POST /jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.states[r.PathValue("id")] = "REVOKED"
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": r.PathValue("id"), "revoked": true})
	})
	return mux
}

type HandlerTestSuite struct {
	suite.Suite
	pool    *pgxpool.Pool
	runtime *httptest.Server
	stub    *orchestratorStub
	mux     *http.ServeMux

	policyID string
}

func (s *HandlerTestSuite) SetupSuite() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		s.T().Skip("DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, databaseURL, database.PoolConfig{})
	s.Require().NoError(err)
	s.pool = db.Pool()

	err = database.RunMigrations(ctx, s.pool)
	s.Require().NoError(err)

	s.stub = &orchestratorStub{states: map[string]string{}}
	s.runtime = httptest.NewServer(s.stub.routes())
}

func (s *HandlerTestSuite) SetupTest() {
	ctx := context.Background()

	s.Require().NoError(database.Truncate(ctx, s.pool))

	seed := &config.Bootstrap{
		Workspace: config.WorkspaceSeed{ID: "default-workspace", Name: "Command Center"},
		Actor:     "owner@command.center",
		Policy: config.PolicySeed{
			Name:                "Balanced Autonomy",
			MaxActionsPerHour:   20,
			MaxLinkedinMessages: 25,
			RequireApprovalTier: 3,
		},
		Templates: config.DefaultTemplates(),
	}
	repos := repository.NewSet(s.pool)
	scope, err := service.NewBootstrapper(s.pool, repos, seed).Ensure(ctx)
	s.Require().NoError(err)

	policies, err := repos.Policies.List(ctx, scope.WorkspaceID)
	s.Require().NoError(err)
	s.Require().NotEmpty(policies)
	s.policyID = policies[0].ID

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := orchestrator.New(orchestrator.Config{BaseURL: s.runtime.URL}, m)

	h := handler.New(s.pool, handler.Options{
		Scope:    scope,
		Runtime:  client,
		Notifier: notify.Nop{},
		Metrics:  m,
		Gatherer: reg,
	})
	s.mux = http.NewServeMux()
	h.RegisterRoutes(s.mux)
}

func (s *HandlerTestSuite) TearDownSuite() {
	if s.runtime != nil {
		s.runtime.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

// Helper to make a request against the registered routes.
func (s *HandlerTestSuite) makeRequest(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var bodyReader *bytes.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		s.Require().NoError(err)
		bodyReader = bytes.NewReader(bodyBytes)
	} else {
		bodyReader = bytes.NewReader([]byte{})
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

// decode checks the envelope and unmarshals data into out.
func (s *HandlerTestSuite) decode(w *httptest.ResponseRecorder, status int, out any) envelope {
	s.Require().Equal(status, w.Code, w.Body.String())

	var env envelope
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&env))
	if out != nil {
		s.Require().True(env.OK)
		s.Require().NoError(json.Unmarshal(env.Data, out))
	}
	return env
}

func (s *HandlerTestSuite) createAgent(kind string) dto.AgentResponse {
	w := s.makeRequest(http.MethodPost, "/api/v1/agents", map[string]any{
		"name":     "Handler " + kind,
		"kind":     kind,
		"policyId": s.policyID,
		"config": map[string]any{
			"objective":         "Collect public company data for the weekly report.",
			"tools":             []string{"browser"},
			"maxActionsPerHour": 10,
		},
	}, nil)

	var agent dto.AgentResponse
	s.decode(w, http.StatusCreated, &agent)
	return agent
}

func (s *HandlerTestSuite) deploy(agentID string) dto.DeploymentResponse {
	var dep dto.DeploymentResponse
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/agents/"+agentID+"/deploy", nil, nil), http.StatusCreated, &dep)
	return dep
}

func (s *HandlerTestSuite) TestHealthz() {
	w := s.makeRequest(http.MethodGet, "/healthz", nil, nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerTestSuite) TestAPIGuide() {
	w := s.makeRequest(http.MethodGet, "/api.md", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "# Command Center API")
}

func (s *HandlerTestSuite) TestCreateAgent_ValidationError() {
	w := s.makeRequest(http.MethodPost, "/api/v1/agents", map[string]any{
		"name":     "ab",
		"kind":     "browser",
		"policyId": s.policyID,
		"config":   map[string]any{"objective": "short", "tools": []string{}},
	}, nil)

	env := s.decode(w, http.StatusBadRequest, nil)
	s.False(env.OK)
	s.Equal("VALIDATION_ERROR", env.Code)
}

func (s *HandlerTestSuite) TestCreateAgent_InvalidJSON() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)

	env := s.decode(w, http.StatusBadRequest, nil)
	s.Equal("INVALID_JSON", env.Code)
}

func (s *HandlerTestSuite) TestGetAgent_InvalidID() {
	w := s.makeRequest(http.MethodGet, "/api/v1/agents/not-a-uuid", nil, nil)
	env := s.decode(w, http.StatusBadRequest, nil)
	s.Equal("INVALID_REQUEST", env.Code)
}

func (s *HandlerTestSuite) TestGetAgent_NotFound() {
	w := s.makeRequest(http.MethodGet, "/api/v1/agents/00000000-0000-0000-0000-000000000099", nil, nil)
	env := s.decode(w, http.StatusNotFound, nil)
	s.Equal("AGENT_NOT_FOUND", env.Code)
}

func (s *HandlerTestSuite) TestAgentLifecycle() {
	agent := s.createAgent("browser")
	s.Equal(3, *agent.Config.MaxRetries)

	name := "Renamed agent"
	var updated dto.AgentResponse
	s.decode(s.makeRequest(http.MethodPut, "/api/v1/agents/"+agent.ID, map[string]any{"name": name}, nil),
		http.StatusOK, &updated)
	s.Equal(name, updated.Name)

	s.Equal(1, s.deploy(agent.ID).Version)
	s.Equal(2, s.deploy(agent.ID).Version)

	var detail dto.AgentDetailResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/agents/"+agent.ID, nil, nil), http.StatusOK, &detail)
	s.Require().Len(detail.Deployments, 2)
	s.Equal(2, detail.Deployments[0].Version)
	s.Equal("active", detail.Deployments[0].Status)
	s.Equal("archived", detail.Deployments[1].Status)

	var list []dto.AgentResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/agents", nil, nil), http.StatusOK, &list)
	s.Len(list, 1)

	var deployments []dto.DeploymentResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/deployments", nil, nil), http.StatusOK, &deployments)
	s.Len(deployments, 2)
}

func (s *HandlerTestSuite) TestCreateRun_NoActiveDeployment() {
	agent := s.createAgent("browser")

	w := s.makeRequest(http.MethodPost, "/api/v1/runs", map[string]any{"agentId": agent.ID}, nil)
	env := s.decode(w, http.StatusNotFound, nil)
	s.Equal("Active deployment not found", env.Error)
}

func (s *HandlerTestSuite) TestRunApprovalFlow() {
	agent := s.createAgent("linkedin")
	s.deploy(agent.ID)

	var run dto.RunDetailResponse
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/runs", map[string]any{
		"agentId": agent.ID,
		"input":   map[string]any{"lead": "acme"},
	}, nil), http.StatusCreated, &run)
	s.Equal(string(domain.RunStatusWaitingApproval), run.Status)
	s.Require().Len(run.Approvals, 1)

	var pending []dto.ApprovalResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/approvals?status=pending", nil, nil), http.StatusOK, &pending)
	s.Require().Len(pending, 1)
	approvalID := pending[0].ID

	var approval dto.ApprovalResponse
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/approvals/"+approvalID+"/decision",
		map[string]any{"decision": "approved", "note": "ship it"}, nil), http.StatusOK, &approval)
	s.Equal("approved", approval.Status)

	env := s.decode(s.makeRequest(http.MethodPost, "/api/v1/approvals/"+approvalID+"/decision",
		map[string]any{"decision": "rejected"}, nil), http.StatusConflict, nil)
	s.Equal("APPROVAL_RESOLVED", env.Code)

	var current dto.RunDetailResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/runs/"+run.ID, nil, nil), http.StatusOK, &current)
	s.Equal(string(domain.RunStatusRunning), current.Status)
	s.Require().NotNil(current.RuntimeJobID)

	var cancelled dto.RunDetailResponse
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/runs/"+run.ID+"/cancel", nil, nil), http.StatusOK, &cancelled)
	s.Equal(string(domain.RunStatusCancelled), cancelled.Status)

	env = s.decode(s.makeRequest(http.MethodPost, "/api/v1/runs/"+run.ID+"/cancel", nil, nil), http.StatusConflict, nil)
	s.Equal("RUN_TERMINAL", env.Code)
}

func (s *HandlerTestSuite) TestDecide_InvalidDecision() {
	agent := s.createAgent("linkedin")
	s.deploy(agent.ID)

	var run dto.RunDetailResponse
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/runs", map[string]any{"agentId": agent.ID}, nil),
		http.StatusCreated, &run)
	s.Require().Len(run.Approvals, 1)

	env := s.decode(s.makeRequest(http.MethodPost, "/api/v1/approvals/"+run.Approvals[0].ID+"/decision",
		map[string]any{"decision": "maybe"}, nil), http.StatusBadRequest, nil)
	s.Equal("VALIDATION_ERROR", env.Code)
}

func (s *HandlerTestSuite) TestStreamRun() {
	agent := s.createAgent("browser")
	s.deploy(agent.ID)

	var run dto.RunDetailResponse
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/runs", map[string]any{"agentId": agent.ID}, nil),
		http.StatusCreated, &run)
	s.Equal(string(domain.RunStatusRunning), run.Status)

	w := s.makeRequest(http.MethodGet, "/api/v1/runs/"+run.ID+"/stream", nil, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	s.Require().True(strings.HasPrefix(body, "event: snapshot\ndata: "), body)
	s.True(strings.HasSuffix(body, "\n\n"))

	var snap dto.RunSnapshot
	data := strings.TrimSuffix(strings.TrimPrefix(body, "event: snapshot\ndata: "), "\n\n")
	s.Require().NoError(json.Unmarshal([]byte(data), &snap))
	s.Equal(run.ID, snap.Run.ID)
	s.Len(snap.Tasks, 2)
}

func (s *HandlerTestSuite) TestListRuns_StatusFilter() {
	agent := s.createAgent("browser")
	s.deploy(agent.ID)
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/runs", map[string]any{"agentId": agent.ID}, nil),
		http.StatusCreated, &dto.RunDetailResponse{})

	var running []dto.RunDetailResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/runs?status=running&agentId="+agent.ID, nil, nil),
		http.StatusOK, &running)
	s.Len(running, 1)

	var failed []dto.RunDetailResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/runs?status=failed", nil, nil), http.StatusOK, &failed)
	s.Empty(failed)

	env := s.decode(s.makeRequest(http.MethodGet, "/api/v1/runs?status=sleeping", nil, nil), http.StatusBadRequest, nil)
	s.Equal("VALIDATION_ERROR", env.Code)
}

func (s *HandlerTestSuite) TestWebhook() {
	agent := s.createAgent("webhook")
	s.deploy(agent.ID)

	var trigger dto.WebhookResponse
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/agents/"+agent.ID+"/webhooks",
		map[string]any{"name": "inbound crm"}, nil), http.StatusCreated, &trigger)
	s.Require().NotEmpty(trigger.Secret)

	path := "/api/v1/webhooks/" + trigger.ID

	env := s.decode(s.makeRequest(http.MethodPost, path, map[string]any{"lead": "acme"}, nil), http.StatusUnauthorized, nil)
	s.Equal("INVALID_SIGNATURE", env.Code)

	var result dto.WebhookRunResponse
	s.decode(s.makeRequest(http.MethodPost, path, map[string]any{"lead": "acme"},
		map[string]string{handler.SignatureHeader: trigger.Secret}), http.StatusCreated, &result)
	s.NotEmpty(result.RunID)

	var run dto.RunDetailResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/runs/"+result.RunID, nil, nil), http.StatusOK, &run)
	s.Equal("acme", run.Input["lead"])

	var listed []dto.WebhookResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/agents/"+agent.ID+"/webhooks", nil, nil), http.StatusOK, &listed)
	s.Require().Len(listed, 1)
	s.Empty(listed[0].Secret)

	env = s.decode(s.makeRequest(http.MethodPost, "/api/v1/webhooks/00000000-0000-0000-0000-000000000099", nil,
		map[string]string{handler.SignatureHeader: trigger.Secret}), http.StatusNotFound, nil)
	s.Equal("WEBHOOK_NOT_FOUND", env.Code)
}

func (s *HandlerTestSuite) TestWebhook_NoActiveDeployment() {
	agent := s.createAgent("webhook")

	var trigger dto.WebhookResponse
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/agents/"+agent.ID+"/webhooks",
		map[string]any{"name": "inbound crm"}, nil), http.StatusCreated, &trigger)

	env := s.decode(s.makeRequest(http.MethodPost, "/api/v1/webhooks/"+trigger.ID, map[string]any{},
		map[string]string{handler.SignatureHeader: trigger.Secret}), http.StatusConflict, nil)
	s.Equal("No active deployment linked to trigger", env.Error)
}

func (s *HandlerTestSuite) TestCatalogAndStats() {
	var policies []dto.PolicyResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/policies", nil, nil), http.StatusOK, &policies)
	s.Require().Len(policies, 1)
	s.Equal(3, policies[0].RequireApprovalTier)

	var templates []dto.TemplateResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/templates", nil, nil), http.StatusOK, &templates)
	s.Len(templates, len(config.DefaultTemplates()))

	agent := s.createAgent("browser")
	s.deploy(agent.ID)

	var stats dto.StatsResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/stats", nil, nil), http.StatusOK, &stats)
	s.Equal(1, stats.TotalAgents)
	s.Equal(1, stats.ActiveDeployments)

	var m dto.AgentMetricsResponse
	s.decode(s.makeRequest(http.MethodGet, "/api/v1/agents/"+agent.ID+"/metrics", nil, nil), http.StatusOK, &m)
	s.Equal(0, m.TotalRuns)
}

func (s *HandlerTestSuite) TestMetricsEndpoint() {
	agent := s.createAgent("browser")
	s.deploy(agent.ID)
	s.decode(s.makeRequest(http.MethodPost, "/api/v1/runs", map[string]any{"agentId": agent.ID}, nil),
		http.StatusCreated, &dto.RunDetailResponse{})

	w := s.makeRequest(http.MethodGet, "/metrics", nil, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "commandcenter_runs_created_total")
}
