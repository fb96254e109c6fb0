package service

import (
	"context"
	"log/slog"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/repository"
)

// Auditor records audit events after the business transaction committed.
// It is a side-effect sink: write failures are logged, never returned.
type Auditor struct {
	repo *repository.AuditRepository
}

// NewAuditor creates an Auditor. A nil repo discards events.
func NewAuditor(repo *repository.AuditRepository) *Auditor {
	return &Auditor{repo: repo}
}

// Record appends one audit event for the scope's actor.
func (a *Auditor) Record(ctx context.Context, scope domain.Scope, action, targetType, targetID string, detail map[string]any) {
	if a == nil || a.repo == nil {
		return
	}

	event := &domain.AuditEvent{
		WorkspaceID: scope.WorkspaceID,
		Actor:       scope.Actor,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Detail:      detail,
	}

	if err := a.repo.Create(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("failed to record audit event",
			"action", action,
			"target_type", targetType,
			"target_id", targetID,
			"error", err,
		)
	}
}
