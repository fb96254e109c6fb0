package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/orchestrator"
)

type ReconcilerTestSuite struct {
	dbSuite
}

func (s *ReconcilerTestSuite) TestReconcile_StartedIsIdempotent() {
	agent := s.deployedAgent(domain.AgentKindBrowser, 10)
	created := s.createRun(agent)
	ctx := context.Background()

	s.runtime.set("job-1", domain.RuntimeStateStarted, nil)

	summary, err := s.reconciler.ReconcileWorkspace(ctx, s.scope.WorkspaceID)
	s.Require().NoError(err)
	s.EqualValues(1, summary.Checked)
	s.EqualValues(1, summary.Changed)

	first := s.reload(created.Run.ID)
	s.Equal(domain.RunStatusRunning, first.Status)

	summary, err = s.reconciler.ReconcileWorkspace(ctx, s.scope.WorkspaceID)
	s.Require().NoError(err)
	s.EqualValues(1, summary.Checked)
	s.EqualValues(0, summary.Changed)

	second := s.reload(created.Run.ID)
	s.True(first.UpdatedAt.Equal(second.UpdatedAt))
}

func (s *ReconcilerTestSuite) TestReconcile_Success() {
	agent := s.deployedAgent(domain.AgentKindBrowser, 10)
	created := s.createRun(agent)
	ctx := context.Background()

	s.runtime.set("job-1", domain.RuntimeStateSuccess, nil)

	s.Require().NoError(s.reconciler.Reconcile(ctx, s.scope.WorkspaceID, created.Run.ID))

	run := s.reload(created.Run.ID)
	s.Equal(domain.RunStatusSucceeded, run.Status)
	s.Equal("Runtime job finished", run.Output["summary"])
	s.NotNil(run.FinishedAt)
	s.assertTasksClosed(run.ID)

	polls := s.runtime.pollCount()
	summary, err := s.reconciler.ReconcileWorkspace(ctx, s.scope.WorkspaceID)
	s.Require().NoError(err)
	s.EqualValues(0, summary.Checked)
	s.Equal(polls, s.runtime.pollCount())
}

func (s *ReconcilerTestSuite) TestReconcile_FailureUsesRuntimeError() {
	agent := s.deployedAgent(domain.AgentKindBrowser, 10)
	created := s.createRun(agent)

	s.runtime.set("job-1", domain.RuntimeStateFailure, nil)

	s.Require().NoError(s.reconciler.Reconcile(context.Background(), s.scope.WorkspaceID, created.Run.ID))

	run := s.reload(created.Run.ID)
	s.Equal(domain.RunStatusFailed, run.Status)
	s.Require().NotNil(run.FailureReason)
	s.Equal(domain.ReasonRuntimeFailed, *run.FailureReason)
	s.assertTasksClosed(run.ID)
}

func (s *ReconcilerTestSuite) TestReconcile_RevokedCancels() {
	s.runtime.submitState = domain.RuntimeStateStarted
	agent := s.deployedAgent(domain.AgentKindBrowser, 10)
	created := s.createRun(agent)

	s.runtime.set("job-1", domain.RuntimeStateRevoked, nil)

	s.Require().NoError(s.reconciler.Reconcile(context.Background(), s.scope.WorkspaceID, created.Run.ID))

	run := s.reload(created.Run.ID)
	s.Equal(domain.RunStatusCancelled, run.Status)
	s.Require().NotNil(run.RuntimeState)
	s.Equal(domain.RuntimeStateRevoked, *run.RuntimeState)

	tasks, err := s.repos.Tasks.ListByRun(context.Background(), run.ID)
	s.Require().NoError(err)
	for _, task := range tasks {
		if task.Name == domain.TaskExecutePrimaryAction {
			s.Equal(domain.TaskStatusSkipped, task.Status)
			s.Require().NotNil(task.Error)
			s.Equal(domain.TaskErrorCancelledByRuntime, *task.Error)
		}
	}
	s.assertTasksClosed(run.ID)
}

func (s *ReconcilerTestSuite) TestReconcile_PollFailureKeepsState() {
	agent := s.deployedAgent(domain.AgentKindBrowser, 10)
	created := s.createRun(agent)
	s.runtime.pollErr = orchestrator.ErrPollFailed

	summary, err := s.reconciler.ReconcileWorkspace(context.Background(), s.scope.WorkspaceID)
	s.Require().NoError(err)
	s.EqualValues(1, summary.Checked)
	s.EqualValues(0, summary.Changed)
	s.EqualValues(0, summary.Failed)

	run := s.reload(created.Run.ID)
	s.Equal(domain.RunStatusQueued, run.Status)
	s.Require().NotNil(run.RuntimeState)
	s.Equal(domain.RuntimeStatePending, *run.RuntimeState)
}

func (s *ReconcilerTestSuite) TestReconcile_SkipsRunsWithoutJob() {
	agent := s.deployedAgent(domain.AgentKindLinkedIn, 10)
	created := s.createRun(agent)

	s.Require().NoError(s.reconciler.Reconcile(context.Background(), s.scope.WorkspaceID, created.Run.ID))

	s.Zero(s.runtime.pollCount())
	s.Equal(domain.RunStatusWaitingApproval, s.reload(created.Run.ID).Status)
}

func (s *ReconcilerTestSuite) TestReconcile_UnknownStateIsQueued() {
	s.runtime.submitState = domain.RuntimeStateStarted
	agent := s.deployedAgent(domain.AgentKindBrowser, 10)
	created := s.createRun(agent)

	s.runtime.set("job-1", "SCHEDULED", nil)

	s.Require().NoError(s.reconciler.Reconcile(context.Background(), s.scope.WorkspaceID, created.Run.ID))

	run := s.reload(created.Run.ID)
	s.Equal(domain.RunStatusQueued, run.Status)
	s.Require().NotNil(run.RuntimeState)
	s.Equal(domain.RuntimeState("SCHEDULED"), *run.RuntimeState)
}

func (s *ReconcilerTestSuite) TestReconcileWorkspace_ManyRuns() {
	agent := s.deployedAgent(domain.AgentKindBrowser, 10)
	const runs = 10
	for range runs {
		s.createRun(agent)
	}
	for i := 1; i <= runs; i++ {
		s.runtime.set(jobID(i), domain.RuntimeStateSuccess, nil)
	}

	summary, err := s.reconciler.ReconcileWorkspace(context.Background(), s.scope.WorkspaceID)
	s.Require().NoError(err)
	s.EqualValues(runs, summary.Checked)
	s.EqualValues(runs, summary.Changed)
	s.EqualValues(0, summary.Failed)

	stats, err := s.catalog.Stats(context.Background(), s.scope)
	s.Require().NoError(err)
	s.Equal(100.0, stats.RunSuccessRate)
}

func (s *ReconcilerTestSuite) TestReconcileRecent_OnlyNewestRuns() {
	agent := s.deployedAgent(domain.AgentKindBrowser, 10)
	oldest := s.createRun(agent)
	middle := s.createRun(agent)
	newest := s.createRun(agent)
	for i := 1; i <= 3; i++ {
		s.runtime.set(jobID(i), domain.RuntimeStateSuccess, nil)
	}

	summary, err := s.reconciler.ReconcileRecent(context.Background(), s.scope.WorkspaceID, 2)
	s.Require().NoError(err)
	s.EqualValues(2, summary.Checked)
	s.EqualValues(2, summary.Changed)
	s.Equal(2, s.runtime.pollCount())

	s.Equal(domain.RunStatusQueued, s.reload(oldest.Run.ID).Status)
	s.Equal(domain.RunStatusSucceeded, s.reload(middle.Run.ID).Status)
	s.Equal(domain.RunStatusSucceeded, s.reload(newest.Run.ID).Status)

	summary, err = s.reconciler.ReconcileWorkspace(context.Background(), s.scope.WorkspaceID)
	s.Require().NoError(err)
	s.EqualValues(1, summary.Checked)
	s.Equal(domain.RunStatusSucceeded, s.reload(oldest.Run.ID).Status)
}

func TestReconcilerTestSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerTestSuite))
}
