package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/commandcenter/internal/config"
	"github.com/mtlprog/commandcenter/internal/domain"
)

func TestLoadBootstrap_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.LoadBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, "default-workspace", cfg.Workspace.ID)
	assert.Equal(t, "Command Center", cfg.Workspace.Name)
	assert.Equal(t, "owner@command.center", cfg.Actor)
	assert.Equal(t, "Balanced Autonomy", cfg.Policy.Name)
	assert.Equal(t, domain.PolicyLimits{
		MaxActionsPerHour:   20,
		MaxLinkedinMessages: 25,
		RequireApprovalTier: domain.RiskTier3,
	}, cfg.Policy.Limits())

	require.Len(t, cfg.Templates, 3)
	assert.Equal(t, "LinkedIn Guarded Outreach", cfg.Templates[1].Name)
	assert.Equal(t, 15, cfg.Templates[1].Defaults.AgentConfig().ActionsPerHour())
}

func TestLoadBootstrap_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workspace:
  id: acme
  name: Acme Ops
policy:
  name: Strict
  max_actions_per_hour: 10
  max_linkedin_messages: 5
  require_approval_tier: 2
templates:
  - name: Only Browser
    kind: browser
    description: Single template
    defaults:
      objective: Extract pricing tables from vendor pages.
      tools: [browser]
      max_retries: 1
      max_actions_per_hour: 5
      linkedin_guarded_mode: false
`), 0o600))

	t.Setenv("CC_WORKSPACE_NAME", "Acme Override")

	cfg, err := config.LoadBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Workspace.ID)
	assert.Equal(t, "Acme Override", cfg.Workspace.Name)
	assert.Equal(t, domain.RiskTier2, cfg.Policy.Limits().RequireApprovalTier)
	require.Len(t, cfg.Templates, 1)

	ac := cfg.Templates[0].Defaults.AgentConfig()
	assert.Equal(t, []string{"browser"}, ac.Tools)
	assert.Equal(t, 1, ac.Retries())
	require.NotNil(t, ac.LinkedInGuardedMode)
	assert.False(t, *ac.LinkedInGuardedMode)
}

func TestLoadBootstrap_MissingExplicitFile(t *testing.T) {
	_, err := config.LoadBootstrap(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBootstrap_Validate(t *testing.T) {
	valid := func() *config.Bootstrap {
		return &config.Bootstrap{
			Workspace: config.WorkspaceSeed{ID: "ws", Name: "WS"},
			Actor:     "owner@example.com",
			Policy: config.PolicySeed{
				Name:                "P",
				MaxActionsPerHour:   10,
				MaxLinkedinMessages: 5,
				RequireApprovalTier: 3,
			},
			Templates: config.DefaultTemplates(),
		}
	}

	require.NoError(t, valid().Validate())

	b := valid()
	b.Policy.RequireApprovalTier = 4
	assert.ErrorIs(t, b.Validate(), domain.ErrValidation)

	b = valid()
	b.Templates = append(b.Templates, b.Templates[0])
	assert.ErrorIs(t, b.Validate(), domain.ErrValidation)

	b = valid()
	b.Templates[0].Kind = "email"
	assert.ErrorIs(t, b.Validate(), domain.ErrInvalidKind)

	b = valid()
	b.Workspace.ID = " "
	assert.ErrorIs(t, b.Validate(), domain.ErrValidation)
}
