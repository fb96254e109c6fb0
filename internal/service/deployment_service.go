package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/repository"
)

const (
	defaultDeploymentListLimit = 50
	maxDeploymentListLimit     = 200
)

// DeploymentService promotes agents into versioned deployments.
type DeploymentService struct {
	pool    *pgxpool.Pool
	repos   *repository.Set
	auditor *Auditor
}

// NewDeploymentService creates a new DeploymentService.
func NewDeploymentService(pool *pgxpool.Pool, repos *repository.Set, auditor *Auditor) *DeploymentService {
	return &DeploymentService{pool: pool, repos: repos, auditor: auditor}
}

// Promote snapshots the agent's current state as the next version, archiving
// the previously active deployment. The agent row lock serializes concurrent
// promotions so versions stay contiguous.
func (s *DeploymentService) Promote(ctx context.Context, scope domain.Scope, agentID string) (*domain.Deployment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	agent, err := s.repos.Agents.GetByIDForUpdate(ctx, tx, scope.WorkspaceID, agentID)
	if err != nil {
		return nil, err
	}

	last, err := s.repos.Deployments.MaxVersion(ctx, tx, agent.ID)
	if err != nil {
		return nil, err
	}

	archived, err := s.repos.Deployments.ArchiveActive(ctx, tx, agent.ID)
	if err != nil {
		return nil, err
	}

	dep := &domain.Deployment{
		WorkspaceID: scope.WorkspaceID,
		AgentID:     agent.ID,
		Version:     last + 1,
		Status:      domain.DeploymentStatusActive,
		Snapshot: domain.DeploymentSnapshot{
			Config:     agent.Config.WithDefaults(),
			PolicyID:   agent.PolicyID,
			TemplateID: agent.TemplateID,
			Kind:       agent.Kind,
		},
		CreatedBy: scope.Actor,
	}

	if err := s.repos.Deployments.Create(ctx, tx, dep); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.auditor.Record(ctx, scope, domain.AuditDeploymentCreate, domain.TargetDeployment, dep.ID, map[string]any{
		"agentId": agent.ID,
		"version": dep.Version,
	})

	slog.Info("deployment promoted",
		"deployment_id", dep.ID,
		"agent_id", agent.ID,
		"version", dep.Version,
		"archived", archived,
		"actor", scope.Actor,
	)

	return dep, nil
}

// List returns the most recent workspace deployments.
func (s *DeploymentService) List(ctx context.Context, scope domain.Scope, limit int) ([]*domain.Deployment, error) {
	if limit <= 0 {
		limit = defaultDeploymentListLimit
	}
	if limit > maxDeploymentListLimit {
		limit = maxDeploymentListLimit
	}
	return s.repos.Deployments.List(ctx, scope.WorkspaceID, limit)
}

// ListByAgent returns an agent's deployments, newest version first.
func (s *DeploymentService) ListByAgent(ctx context.Context, scope domain.Scope, agentID string) ([]*domain.Deployment, error) {
	if _, err := s.repos.Agents.GetByID(ctx, scope.WorkspaceID, agentID); err != nil {
		return nil, err
	}
	return s.repos.Deployments.ListByAgent(ctx, scope.WorkspaceID, agentID)
}
