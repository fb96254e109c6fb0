package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/repository"
)

const webhookSecretBytes = 24

// WebhookService manages webhook triggers and turns authenticated webhook
// calls into runs.
type WebhookService struct {
	pool    *pgxpool.Pool
	repos   *repository.Set
	runs    *RunService
	auditor *Auditor
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(pool *pgxpool.Pool, repos *repository.Set, runs *RunService, auditor *Auditor) *WebhookService {
	return &WebhookService{pool: pool, repos: repos, runs: runs, auditor: auditor}
}

// Create registers an enabled trigger for the agent with a freshly generated secret.
func (s *WebhookService) Create(ctx context.Context, scope domain.Scope, agentID, name string) (*domain.WebhookTrigger, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}

	if _, err := s.repos.Agents.GetByID(ctx, scope.WorkspaceID, agentID); err != nil {
		return nil, err
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	trigger := &domain.WebhookTrigger{
		WorkspaceID: scope.WorkspaceID,
		AgentID:     agentID,
		Name:        name,
		Secret:      secret,
		Enabled:     true,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if err := s.repos.Webhooks.Create(ctx, tx, trigger); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	s.auditor.Record(ctx, scope, domain.AuditWebhookCreate, domain.TargetWebhook, trigger.ID, map[string]any{
		"agentId": agentID,
		"name":    name,
	})

	slog.Info("webhook trigger created",
		"trigger_id", trigger.ID,
		"agent_id", agentID,
	)

	return trigger, nil
}

// ListByAgent returns the agent's triggers.
func (s *WebhookService) ListByAgent(ctx context.Context, scope domain.Scope, agentID string) ([]*domain.WebhookTrigger, error) {
	if _, err := s.repos.Agents.GetByID(ctx, scope.WorkspaceID, agentID); err != nil {
		return nil, err
	}
	return s.repos.Webhooks.ListByAgent(ctx, scope.WorkspaceID, agentID)
}

// Authenticate resolves an enabled trigger and checks the presented signature
// against its secret. Disabled triggers are reported as not found.
func (s *WebhookService) Authenticate(ctx context.Context, scope domain.Scope, triggerID, signature string) (*domain.WebhookTrigger, error) {
	trigger, err := s.repos.Webhooks.GetByID(ctx, scope.WorkspaceID, triggerID)
	if err != nil {
		return nil, err
	}
	if !trigger.Enabled {
		return nil, domain.ErrWebhookNotFound
	}

	if signature == "" || subtle.ConstantTimeCompare([]byte(signature), []byte(trigger.Secret)) != 1 {
		return nil, domain.ErrInvalidSignature
	}

	return trigger, nil
}

// Trigger creates a run for the trigger's agent with the webhook body as input.
func (s *WebhookService) Trigger(ctx context.Context, scope domain.Scope, trigger *domain.WebhookTrigger, body map[string]any) (*RunDetail, error) {
	if _, err := s.repos.Deployments.GetActiveByAgent(ctx, scope.WorkspaceID, trigger.AgentID); err != nil {
		if errors.Is(err, domain.ErrActiveDeploymentNotFound) {
			return nil, domain.ErrWebhookNoDeployment
		}
		return nil, err
	}

	scope.Actor = "webhook:" + trigger.ID

	detail, err := s.runs.CreateRun(ctx, scope, CreateRunInput{
		AgentID: trigger.AgentID,
		Input:   body,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("webhook triggered run",
		"trigger_id", trigger.ID,
		"run_id", detail.Run.ID,
		"status", detail.Run.Status,
	)

	return detail, nil
}

func newSecret() (string, error) {
	b := make([]byte, webhookSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
