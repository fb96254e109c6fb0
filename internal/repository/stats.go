package repository

import (
	"context"
	"fmt"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// AgentRunStats holds run counts for a single agent.
type AgentRunStats struct {
	TotalRuns       int
	Succeeded       int
	Failed          int
	WaitingApproval int
}

// WorkspaceStats holds the dashboard counters of a workspace.
type WorkspaceStats struct {
	TotalAgents       int
	ActiveDeployments int
	PendingApprovals  int
	RecentRuns        int
	RecentSucceeded   int
}

// GetAgentStats counts an agent's runs by outcome.
func (r *RunRepository) GetAgentStats(ctx context.Context, workspaceID, agentID string) (*AgentRunStats, error) {
	var stats AgentRunStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = $3 THEN 1 END),
			COUNT(CASE WHEN status = $4 THEN 1 END),
			COUNT(CASE WHEN status = $5 THEN 1 END)
		FROM runs
		WHERE workspace_id = $1 AND agent_id = $2
	`, workspaceID, agentID,
		domain.RunStatusSucceeded,
		domain.RunStatusFailed,
		domain.RunStatusWaitingApproval,
	).Scan(&stats.TotalRuns, &stats.Succeeded, &stats.Failed, &stats.WaitingApproval)
	if err != nil {
		return nil, fmt.Errorf("query agent run stats: %w", err)
	}

	return &stats, nil
}

// GetWorkspaceStats computes dashboard counters. Success rate inputs cover the
// recentWindow most recent runs.
func (r *RunRepository) GetWorkspaceStats(ctx context.Context, workspaceID string, recentWindow int) (*WorkspaceStats, error) {
	var stats WorkspaceStats

	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM agents WHERE workspace_id = $1),
			(SELECT COUNT(*) FROM deployments WHERE workspace_id = $1 AND status = $2),
			(SELECT COUNT(*) FROM approval_requests a JOIN runs r ON r.id = a.run_id
				WHERE r.workspace_id = $1 AND a.status = $3)
	`, workspaceID,
		domain.DeploymentStatusActive,
		domain.ApprovalStatusPending,
	).Scan(&stats.TotalAgents, &stats.ActiveDeployments, &stats.PendingApprovals)
	if err != nil {
		return nil, fmt.Errorf("query workspace counters: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(CASE WHEN status = $2 THEN 1 END)
		FROM (
			SELECT status FROM runs
			WHERE workspace_id = $1
			ORDER BY created_at DESC
			LIMIT $3
		) recent
	`, workspaceID, domain.RunStatusSucceeded, recentWindow).Scan(&stats.RecentRuns, &stats.RecentSucceeded)
	if err != nil {
		return nil, fmt.Errorf("query recent run outcomes: %w", err)
	}

	return &stats, nil
}
