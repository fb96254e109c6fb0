package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/repository"
)

// Validator checks agent input and its workspace references.
type Validator struct {
	policies  *repository.PolicyRepository
	templates *repository.TemplateRepository
}

// NewValidator creates a new Validator.
func NewValidator(policies *repository.PolicyRepository, templates *repository.TemplateRepository) *Validator {
	return &Validator{
		policies:  policies,
		templates: templates,
	}
}

// ValidateName checks the agent name length bounds.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < domain.MinAgentNameLength || n > domain.MaxAgentNameLength {
		return fmt.Errorf("%w: name must be %d-%d characters",
			domain.ErrValidation, domain.MinAgentNameLength, domain.MaxAgentNameLength)
	}
	return nil
}

// ValidateKind checks that kind is a known agent kind.
func ValidateKind(kind domain.AgentKind) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q (expected browser, linkedin or webhook)", domain.ErrInvalidKind, kind)
	}
	return nil
}

// ValidateConfig checks an agent configuration. All problems are reported together.
func ValidateConfig(cfg domain.AgentConfig) error {
	var issues []string

	if utf8.RuneCountInString(strings.TrimSpace(cfg.Objective)) < domain.MinObjectiveLength {
		issues = append(issues, fmt.Sprintf("objective must be at least %d characters", domain.MinObjectiveLength))
	}

	if len(cfg.Tools) == 0 {
		issues = append(issues, "tools must contain at least one tool")
	}
	for i, tool := range cfg.Tools {
		if strings.TrimSpace(tool) == "" {
			issues = append(issues, fmt.Sprintf("tools[%d] must not be empty", i))
		}
	}

	if cfg.MaxRetries != nil && (*cfg.MaxRetries < 0 || *cfg.MaxRetries > domain.MaxMaxRetries) {
		issues = append(issues, fmt.Sprintf("maxRetries must be between 0 and %d", domain.MaxMaxRetries))
	}

	if cfg.MaxActionsPerHour != nil &&
		(*cfg.MaxActionsPerHour < domain.MinMaxActionsPerHour || *cfg.MaxActionsPerHour > domain.MaxMaxActionsPerHour) {
		issues = append(issues, fmt.Sprintf("maxActionsPerHour must be between %d and %d",
			domain.MinMaxActionsPerHour, domain.MaxMaxActionsPerHour))
	}

	if len(issues) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(issues, "; "))
	}
	return nil
}

// CheckReferences verifies the policy and optional template exist in the workspace.
func (v *Validator) CheckReferences(ctx context.Context, workspaceID, policyID string, templateID *string) error {
	if strings.TrimSpace(policyID) == "" {
		return fmt.Errorf("%w: policyId is required", domain.ErrValidation)
	}
	if _, err := v.policies.GetByID(ctx, workspaceID, policyID); err != nil {
		return err
	}

	if templateID != nil {
		if _, err := v.templates.GetByID(ctx, workspaceID, *templateID); err != nil {
			return err
		}
	}

	return nil
}
