package service_test

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/commandcenter/internal/config"
	"github.com/mtlprog/commandcenter/internal/database"
	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/metrics"
	"github.com/mtlprog/commandcenter/internal/notify"
	"github.com/mtlprog/commandcenter/internal/repository"
	"github.com/mtlprog/commandcenter/internal/service"
)

const testObjective = "Collect public company data for the weekly report."

// dbSuite wires every service against a real database and a fake runtime.
// The schema is truncated and re-seeded before each test.
type dbSuite struct {
	suite.Suite
	pool  *pgxpool.Pool
	repos *repository.Set

	runtime     *fakeRuntime
	metrics     *metrics.Metrics
	runs        *service.RunService
	approvals   *service.ApprovalService
	agents      *service.AgentService
	deployments *service.DeploymentService
	catalog     *service.CatalogService
	webhooks    *service.WebhookService
	reconciler  *service.Reconciler

	scope    domain.Scope
	policyID string
}

func (s *dbSuite) SetupSuite() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		s.T().Skip("DATABASE_URL is not set")
	}

	ctx := context.Background()

	db, err := database.New(ctx, databaseURL, database.PoolConfig{})
	s.Require().NoError(err, "failed to connect to database")
	s.pool = db.Pool()

	err = database.RunMigrations(ctx, s.pool)
	s.Require().NoError(err, "failed to run migrations")

	s.repos = repository.NewSet(s.pool)
}

func (s *dbSuite) SetupTest() {
	ctx := context.Background()

	s.Require().NoError(database.Truncate(ctx, s.pool), "failed to truncate tables")

	seed := &config.Bootstrap{
		Workspace: config.WorkspaceSeed{ID: "ws-test", Name: "Test Workspace"},
		Actor:     "operator@test",
		Policy: config.PolicySeed{
			Name:                "Balanced Autonomy",
			MaxActionsPerHour:   20,
			MaxLinkedinMessages: 25,
			RequireApprovalTier: 3,
		},
		Templates: config.DefaultTemplates(),
	}
	scope, err := service.NewBootstrapper(s.pool, s.repos, seed).Ensure(ctx)
	s.Require().NoError(err, "failed to bootstrap workspace")
	s.scope = scope

	policies, err := s.repos.Policies.List(ctx, scope.WorkspaceID)
	s.Require().NoError(err)
	s.Require().Len(policies, 1)
	s.policyID = policies[0].ID

	s.runtime = newFakeRuntime()
	s.metrics = metrics.New(nil)
	auditor := service.NewAuditor(s.repos.Audit)
	notifier := notify.Nop{}

	s.reconciler = service.NewReconciler(s.pool, s.repos, s.runtime, notifier, s.metrics, 4)
	s.runs = service.NewRunService(s.pool, s.repos, s.runtime, s.reconciler, auditor, notifier, s.metrics)
	s.approvals = service.NewApprovalService(s.pool, s.repos, s.runtime, auditor, notifier, s.metrics)
	s.agents = service.NewAgentService(s.pool, s.repos, auditor)
	s.deployments = service.NewDeploymentService(s.pool, s.repos, auditor)
	s.catalog = service.NewCatalogService(s.repos)
	s.webhooks = service.NewWebhookService(s.pool, s.repos, s.runs, auditor)
}

func (s *dbSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// createAgent creates an agent of the given kind and hourly volume.
func (s *dbSuite) createAgent(kind domain.AgentKind, actionsPerHour int) *domain.Agent {
	agent, err := s.agents.Create(context.Background(), s.scope, service.CreateAgentInput{
		Name:     "Agent " + string(kind),
		Kind:     kind,
		PolicyID: s.policyID,
		Config: domain.AgentConfig{
			Objective:         testObjective,
			Tools:             []string{"browser"},
			MaxActionsPerHour: &actionsPerHour,
		},
	})
	s.Require().NoError(err, "failed to create agent")
	return agent
}

// deployedAgent creates an agent and promotes it once.
func (s *dbSuite) deployedAgent(kind domain.AgentKind, actionsPerHour int) *domain.Agent {
	agent := s.createAgent(kind, actionsPerHour)
	_, err := s.deployments.Promote(context.Background(), s.scope, agent.ID)
	s.Require().NoError(err, "failed to promote agent")
	return agent
}

func (s *dbSuite) createRun(agent *domain.Agent) *service.RunDetail {
	detail, err := s.runs.CreateRun(context.Background(), s.scope, service.CreateRunInput{
		AgentID: agent.ID,
		Input:   map[string]any{"source": "test"},
	})
	s.Require().NoError(err, "failed to create run")
	return detail
}

func (s *dbSuite) reload(runID string) *domain.Run {
	run, err := s.repos.Runs.GetByID(context.Background(), s.scope.WorkspaceID, runID)
	s.Require().NoError(err)
	return run
}

// assertTasksClosed checks that a terminal run keeps no queued or running tasks.
func (s *dbSuite) assertTasksClosed(runID string) {
	tasks, err := s.repos.Tasks.ListByRun(context.Background(), runID)
	s.Require().NoError(err)
	s.Require().NotEmpty(tasks)
	for _, task := range tasks {
		s.True(task.Status.IsTerminal(), "task %s is %s", task.Name, task.Status)
		s.NotNil(task.FinishedAt, "task %s has no finish time", task.Name)
	}
}

func (s *dbSuite) taskByName(detail *service.RunDetail, name string) *domain.Task {
	for _, task := range detail.Tasks {
		if task.Name == name {
			return task
		}
	}
	s.FailNow("task not found", name)
	return nil
}
