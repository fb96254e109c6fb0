package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/repository"
)

const agentRecentRuns = 20

// CreateAgentInput holds the fields of a new agent.
type CreateAgentInput struct {
	Name       string
	Kind       domain.AgentKind
	PolicyID   string
	TemplateID *string
	Config     domain.AgentConfig
}

// UpdateAgentInput is a partial agent update; nil fields are left unchanged.
type UpdateAgentInput struct {
	Name       *string
	Kind       *domain.AgentKind
	PolicyID   *string
	TemplateID *string
	Config     *domain.AgentConfig
}

// AgentDetail is an agent with its policy, deployments and recent runs.
type AgentDetail struct {
	Agent       *domain.Agent
	Policy      *domain.Policy
	Deployments []*domain.Deployment
	RecentRuns  []*domain.Run
}

// AgentMetrics summarizes an agent's run outcomes.
type AgentMetrics struct {
	TotalRuns       int
	Succeeded       int
	Failed          int
	WaitingApproval int
	SuccessRate     float64
}

// AgentService manages agents.
type AgentService struct {
	pool      *pgxpool.Pool
	repos     *repository.Set
	validator *Validator
	auditor   *Auditor
}

// NewAgentService creates a new AgentService.
func NewAgentService(pool *pgxpool.Pool, repos *repository.Set, auditor *Auditor) *AgentService {
	return &AgentService{
		pool:      pool,
		repos:     repos,
		validator: NewValidator(repos.Policies, repos.Templates),
		auditor:   auditor,
	}
}

// Create validates and stores a new agent with config defaults applied.
func (s *AgentService) Create(ctx context.Context, scope domain.Scope, in CreateAgentInput) (*domain.Agent, error) {
	if err := ValidateName(in.Name); err != nil {
		return nil, err
	}
	if err := ValidateKind(in.Kind); err != nil {
		return nil, err
	}
	if err := ValidateConfig(in.Config); err != nil {
		return nil, err
	}
	if err := s.validator.CheckReferences(ctx, scope.WorkspaceID, in.PolicyID, in.TemplateID); err != nil {
		return nil, err
	}

	agent := &domain.Agent{
		WorkspaceID: scope.WorkspaceID,
		Name:        in.Name,
		Kind:        in.Kind,
		PolicyID:    in.PolicyID,
		TemplateID:  in.TemplateID,
		Config:      in.Config.WithDefaults(),
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if err := s.repos.Agents.Create(ctx, tx, agent); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.auditor.Record(ctx, scope, domain.AuditAgentCreate, domain.TargetAgent, agent.ID, map[string]any{
		"kind": string(agent.Kind),
		"name": agent.Name,
	})

	slog.Info("agent created",
		"agent_id", agent.ID,
		"workspace_id", agent.WorkspaceID,
		"kind", agent.Kind,
	)

	return agent, nil
}

// Update applies a partial update. Provided fields get the same validation as on create.
func (s *AgentService) Update(ctx context.Context, scope domain.Scope, agentID string, in UpdateAgentInput) (*domain.Agent, error) {
	if in.Name != nil {
		if err := ValidateName(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.Kind != nil {
		if err := ValidateKind(*in.Kind); err != nil {
			return nil, err
		}
	}
	if in.Config != nil {
		if err := ValidateConfig(*in.Config); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	agent, err := s.repos.Agents.GetByIDForUpdate(ctx, tx, scope.WorkspaceID, agentID)
	if err != nil {
		return nil, err
	}

	detail := map[string]any{}
	if in.Name != nil {
		agent.Name = *in.Name
		detail["name"] = *in.Name
	}
	if in.Kind != nil {
		agent.Kind = *in.Kind
		detail["kind"] = string(*in.Kind)
	}
	if in.PolicyID != nil {
		agent.PolicyID = *in.PolicyID
		detail["policyId"] = *in.PolicyID
	}
	if in.TemplateID != nil {
		agent.TemplateID = in.TemplateID
		detail["templateId"] = *in.TemplateID
	}
	if in.Config != nil {
		agent.Config = in.Config.WithDefaults()
		detail["config"] = agent.Config
	}

	if in.PolicyID != nil || in.TemplateID != nil {
		if err := s.validator.CheckReferences(ctx, scope.WorkspaceID, agent.PolicyID, in.TemplateID); err != nil {
			return nil, err
		}
	}

	if err := s.repos.Agents.Update(ctx, tx, agent); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.auditor.Record(ctx, scope, domain.AuditAgentUpdate, domain.TargetAgent, agent.ID, detail)

	slog.Info("agent updated",
		"agent_id", agent.ID,
		"workspace_id", agent.WorkspaceID,
	)

	return agent, nil
}

// Get returns an agent with its policy, deployments (newest version first) and recent runs.
func (s *AgentService) Get(ctx context.Context, scope domain.Scope, agentID string) (*AgentDetail, error) {
	agent, err := s.repos.Agents.GetByID(ctx, scope.WorkspaceID, agentID)
	if err != nil {
		return nil, err
	}

	pol, err := s.repos.Policies.GetByID(ctx, scope.WorkspaceID, agent.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("agent %s policy: %w", agent.ID, err)
	}

	deployments, err := s.repos.Deployments.ListByAgent(ctx, scope.WorkspaceID, agent.ID)
	if err != nil {
		return nil, err
	}

	runs, err := s.repos.Runs.List(ctx, repository.RunListFilters{
		WorkspaceID: scope.WorkspaceID,
		AgentID:     &agent.ID,
		Limit:       agentRecentRuns,
	})
	if err != nil {
		return nil, err
	}

	return &AgentDetail{
		Agent:       agent,
		Policy:      pol,
		Deployments: deployments,
		RecentRuns:  runs,
	}, nil
}

// List returns the workspace agents.
func (s *AgentService) List(ctx context.Context, scope domain.Scope) ([]*domain.Agent, error) {
	return s.repos.Agents.List(ctx, scope.WorkspaceID)
}

// Metrics summarizes an agent's runs. SuccessRate is a percentage rounded to 2 decimals.
func (s *AgentService) Metrics(ctx context.Context, scope domain.Scope, agentID string) (*AgentMetrics, error) {
	if _, err := s.repos.Agents.GetByID(ctx, scope.WorkspaceID, agentID); err != nil {
		return nil, err
	}

	stats, err := s.repos.Runs.GetAgentStats(ctx, scope.WorkspaceID, agentID)
	if err != nil {
		return nil, err
	}

	return &AgentMetrics{
		TotalRuns:       stats.TotalRuns,
		Succeeded:       stats.Succeeded,
		Failed:          stats.Failed,
		WaitingApproval: stats.WaitingApproval,
		SuccessRate:     percent(stats.Succeeded, stats.TotalRuns, 2),
	}, nil
}

// percent returns part/total*100 rounded to the given decimals, 0 when total is 0.
func percent(part, total, decimals int) float64 {
	if total == 0 {
		return 0
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(float64(part)/float64(total)*100*scale) / scale
}
