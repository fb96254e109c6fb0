package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mtlprog/commandcenter/internal/domain"
)

// Bootstrap is the seed applied once at startup: the fixed workspace and actor,
// the default policy and the agent template catalogue.
type Bootstrap struct {
	Workspace WorkspaceSeed  `mapstructure:"workspace"`
	Actor     string         `mapstructure:"actor"`
	Policy    PolicySeed     `mapstructure:"policy"`
	Templates []TemplateSeed `mapstructure:"templates"`
}

type WorkspaceSeed struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

type PolicySeed struct {
	Name                string `mapstructure:"name"`
	Description         string `mapstructure:"description"`
	MaxActionsPerHour   int    `mapstructure:"max_actions_per_hour"`
	MaxLinkedinMessages int    `mapstructure:"max_linkedin_messages"`
	RequireApprovalTier int    `mapstructure:"require_approval_tier"`
}

type TemplateSeed struct {
	Name        string           `mapstructure:"name"`
	Kind        string           `mapstructure:"kind"`
	Description string           `mapstructure:"description"`
	Defaults    TemplateDefaults `mapstructure:"defaults"`
}

type TemplateDefaults struct {
	Objective           string   `mapstructure:"objective"`
	Tools               []string `mapstructure:"tools"`
	MaxRetries          int      `mapstructure:"max_retries"`
	MaxActionsPerHour   int      `mapstructure:"max_actions_per_hour"`
	LinkedInGuardedMode bool     `mapstructure:"linkedin_guarded_mode"`
}

// AgentConfig converts seed defaults to the config stored on a template.
func (d TemplateDefaults) AgentConfig() domain.AgentConfig {
	retries := d.MaxRetries
	perHour := d.MaxActionsPerHour
	guarded := d.LinkedInGuardedMode

	return domain.AgentConfig{
		Objective:           d.Objective,
		Tools:               append([]string(nil), d.Tools...),
		MaxRetries:          &retries,
		MaxActionsPerHour:   &perHour,
		LinkedInGuardedMode: &guarded,
	}
}

// Limits converts the seed to policy limits.
func (p PolicySeed) Limits() domain.PolicyLimits {
	return domain.PolicyLimits{
		MaxActionsPerHour:   p.MaxActionsPerHour,
		MaxLinkedinMessages: p.MaxLinkedinMessages,
		RequireApprovalTier: domain.RiskTier(p.RequireApprovalTier),
	}
}

// DefaultTemplates is the built-in template catalogue.
func DefaultTemplates() []TemplateSeed {
	return []TemplateSeed{
		{
			Name:        "Browser Prospect Miner",
			Kind:        string(domain.AgentKindBrowser),
			Description: "Extract lead data from public pages and normalize into structured records.",
			Defaults: TemplateDefaults{
				Objective:           "Mine prospect details from target websites and deliver CRM-ready rows.",
				Tools:               []string{"browser", "webhook"},
				MaxRetries:          3,
				MaxActionsPerHour:   20,
				LinkedInGuardedMode: true,
			},
		},
		{
			Name:        "LinkedIn Guarded Outreach",
			Kind:        string(domain.AgentKindLinkedIn),
			Description: "Run compliant outreach cadences with approval checkpoints.",
			Defaults: TemplateDefaults{
				Objective:           "Send personalized and compliant outreach with policy-gated approvals.",
				Tools:               []string{"linkedin", "message_lint", "webhook"},
				MaxRetries:          2,
				MaxActionsPerHour:   15,
				LinkedInGuardedMode: true,
			},
		},
		{
			Name:        "Webhook Triage Agent",
			Kind:        string(domain.AgentKindWebhook),
			Description: "Classify inbound webhook payloads and route by priority.",
			Defaults: TemplateDefaults{
				Objective:           "Classify incoming webhook payloads and route by priority.",
				Tools:               []string{"webhook", "llm", "router"},
				MaxRetries:          3,
				MaxActionsPerHour:   50,
				LinkedInGuardedMode: true,
			},
		},
	}
}

// LoadBootstrap reads the seed. With an empty path it looks for bootstrap.yaml in
// the working directory and ./configs, and falls back to built-in defaults when
// no file exists. Environment variables prefixed CC_ override file values,
// e.g. CC_WORKSPACE_NAME or CC_POLICY_MAX_ACTIONS_PER_HOUR.
func LoadBootstrap(path string) (*Bootstrap, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bootstrap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("CC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("workspace.name", "CC_WORKSPACE_NAME", "DEFAULT_WORKSPACE_NAME")

	setBootstrapDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read bootstrap config: %w", err)
		}
	}

	var cfg Bootstrap
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode bootstrap config: %w", err)
	}
	if len(cfg.Templates) == 0 {
		cfg.Templates = DefaultTemplates()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setBootstrapDefaults(v *viper.Viper) {
	v.SetDefault("workspace.id", "default-workspace")
	v.SetDefault("workspace.name", "Command Center")
	v.SetDefault("actor", "owner@command.center")
	v.SetDefault("policy.name", "Balanced Autonomy")
	v.SetDefault("policy.description", "Tier-1 and Tier-2 actions auto-run, Tier-3 requires approval.")
	v.SetDefault("policy.max_actions_per_hour", domain.DefaultMaxActionsPerHour)
	v.SetDefault("policy.max_linkedin_messages", 25)
	v.SetDefault("policy.require_approval_tier", int(domain.RiskTier3))
}

// Validate rejects seeds that would produce unusable rows.
func (b *Bootstrap) Validate() error {
	if strings.TrimSpace(b.Workspace.ID) == "" {
		return fmt.Errorf("%w: workspace.id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(b.Actor) == "" {
		return fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	if strings.TrimSpace(b.Policy.Name) == "" {
		return fmt.Errorf("%w: policy.name is required", domain.ErrValidation)
	}
	if b.Policy.MaxActionsPerHour < 1 || b.Policy.MaxLinkedinMessages < 0 {
		return fmt.Errorf("%w: policy limits must be positive", domain.ErrValidation)
	}
	if !domain.RiskTier(b.Policy.RequireApprovalTier).IsValid() {
		return fmt.Errorf("%w: policy.require_approval_tier must be 1-3", domain.ErrValidation)
	}

	seen := make(map[string]bool, len(b.Templates))
	for _, t := range b.Templates {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: template name is required", domain.ErrValidation)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate template %q", domain.ErrValidation, t.Name)
		}
		seen[t.Name] = true
		if !domain.AgentKind(t.Kind).IsValid() {
			return fmt.Errorf("%w: template %q has invalid kind %q", domain.ErrInvalidKind, t.Name, t.Kind)
		}
	}

	return nil
}
