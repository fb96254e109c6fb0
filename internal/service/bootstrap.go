package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/config"
	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/repository"
)

// Bootstrapper seeds the fixed workspace, its default policy and the template
// catalogue. Running it repeatedly is safe.
type Bootstrapper struct {
	pool  *pgxpool.Pool
	repos *repository.Set
	seed  *config.Bootstrap
}

// NewBootstrapper creates a new Bootstrapper.
func NewBootstrapper(pool *pgxpool.Pool, repos *repository.Set, seed *config.Bootstrap) *Bootstrapper {
	return &Bootstrapper{pool: pool, repos: repos, seed: seed}
}

// Ensure applies the seed in one transaction and returns the resolved scope.
func (b *Bootstrapper) Ensure(ctx context.Context) (domain.Scope, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return domain.Scope{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	ws := &domain.Workspace{ID: b.seed.Workspace.ID, Name: b.seed.Workspace.Name}
	if err := b.repos.Workspaces.Ensure(ctx, tx, ws); err != nil {
		return domain.Scope{}, err
	}

	pol := &domain.Policy{
		WorkspaceID:  ws.ID,
		Name:         b.seed.Policy.Name,
		Description:  b.seed.Policy.Description,
		PolicyLimits: b.seed.Policy.Limits(),
	}
	if err := b.repos.Policies.Ensure(ctx, tx, pol); err != nil {
		return domain.Scope{}, err
	}

	for _, seed := range b.seed.Templates {
		t := &domain.AgentTemplate{
			WorkspaceID: ws.ID,
			Name:        seed.Name,
			Kind:        domain.AgentKind(seed.Kind),
			Description: seed.Description,
			Defaults:    seed.Defaults.AgentConfig(),
		}
		if err := b.repos.Templates.Upsert(ctx, tx, t); err != nil {
			return domain.Scope{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Scope{}, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("workspace bootstrapped",
		"workspace_id", ws.ID,
		"workspace_name", ws.Name,
		"policy_id", pol.ID,
		"templates", len(b.seed.Templates),
	)

	return domain.Scope{WorkspaceID: ws.ID, Actor: b.seed.Actor}, nil
}
