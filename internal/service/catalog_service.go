package service

import (
	"context"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/repository"
)

const statsRecentRuns = 30

// WorkspaceStats are the dashboard counters. RunSuccessRate covers the most
// recent runs and is a percentage rounded to 1 decimal.
type WorkspaceStats struct {
	TotalAgents       int
	ActiveDeployments int
	QueuedApprovals   int
	RunSuccessRate    float64
}

// CatalogService serves read-only workspace configuration: policies,
// templates and dashboard stats.
type CatalogService struct {
	repos *repository.Set
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repos *repository.Set) *CatalogService {
	return &CatalogService{repos: repos}
}

func (s *CatalogService) ListPolicies(ctx context.Context, scope domain.Scope) ([]*domain.Policy, error) {
	return s.repos.Policies.List(ctx, scope.WorkspaceID)
}

func (s *CatalogService) GetPolicy(ctx context.Context, scope domain.Scope, policyID string) (*domain.Policy, error) {
	return s.repos.Policies.GetByID(ctx, scope.WorkspaceID, policyID)
}

func (s *CatalogService) ListTemplates(ctx context.Context, scope domain.Scope) ([]*domain.AgentTemplate, error) {
	return s.repos.Templates.List(ctx, scope.WorkspaceID)
}

// Stats computes the workspace dashboard counters.
func (s *CatalogService) Stats(ctx context.Context, scope domain.Scope) (*WorkspaceStats, error) {
	raw, err := s.repos.Runs.GetWorkspaceStats(ctx, scope.WorkspaceID, statsRecentRuns)
	if err != nil {
		return nil, err
	}

	return &WorkspaceStats{
		TotalAgents:       raw.TotalAgents,
		ActiveDeployments: raw.ActiveDeployments,
		QueuedApprovals:   raw.PendingApprovals,
		RunSuccessRate:    percent(raw.RecentSucceeded, raw.RecentRuns, 1),
	}, nil
}
