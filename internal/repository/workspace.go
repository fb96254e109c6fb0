package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// WorkspaceRepository handles database operations for workspaces.
type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

// NewWorkspaceRepository creates a new WorkspaceRepository.
func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool}
}

// GetByID retrieves a workspace by ID.
func (r *WorkspaceRepository) GetByID(ctx context.Context, workspaceID string) (*domain.Workspace, error) {
	query, args, err := psql.
		Select("id", "name", "created_at").
		From("workspaces").
		Where(sq.Eq{"id": workspaceID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for workspace %s: %w", workspaceID, err)
	}

	var ws domain.Workspace
	err = r.pool.QueryRow(ctx, query, args...).Scan(&ws.ID, &ws.Name, &ws.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("query workspace: %w", err)
	}

	return &ws, nil
}

// Ensure inserts the workspace if it does not exist. An existing row keeps its name.
func (r *WorkspaceRepository) Ensure(ctx context.Context, tx pgx.Tx, ws *domain.Workspace) error {
	query, args, err := psql.
		Insert("workspaces").
		Columns("id", "name").
		Values(ws.ID, ws.Name).
		Suffix("ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id RETURNING name, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Ensure query for workspace %s: %w", ws.ID, err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&ws.Name, &ws.CreatedAt); err != nil {
		return fmt.Errorf("ensure workspace: %w", err)
	}

	return nil
}
