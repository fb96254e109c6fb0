package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// AuditRepository handles database operations for audit events.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Create appends an audit event outside any business transaction.
func (r *AuditRepository) Create(ctx context.Context, event *domain.AuditEvent) error {
	if event.Detail == nil {
		event.Detail = map[string]any{}
	}
	detail, err := toJSONB(event.Detail)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("audit_events").
		Columns("workspace_id", "actor", "action", "target_type", "target_id", "detail").
		Values(event.WorkspaceID, event.Actor, event.Action, event.TargetType, event.TargetID, detail).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}

	return nil
}

// ListByTarget retrieves the events recorded for one entity, oldest first.
func (r *AuditRepository) ListByTarget(ctx context.Context, workspaceID, targetType, targetID string) ([]*domain.AuditEvent, error) {
	query, args, err := psql.
		Select("id", "workspace_id", "actor", "action", "target_type", "target_id", "detail", "created_at").
		From("audit_events").
		Where(sq.Eq{"workspace_id": workspaceID, "target_type": targetType, "target_id": targetID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []*domain.AuditEvent{}
	for rows.Next() {
		var (
			event  domain.AuditEvent
			detail []byte
		)
		err := rows.Scan(
			&event.ID,
			&event.WorkspaceID,
			&event.Actor,
			&event.Action,
			&event.TargetType,
			&event.TargetID,
			&detail,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if err := fromJSONB(detail, &event.Detail); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}
