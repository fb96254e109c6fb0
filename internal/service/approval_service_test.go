package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/orchestrator"
)

type ApprovalServiceTestSuite struct {
	dbSuite
}

// pendingApproval creates a linkedin run, which policy gates behind approval.
func (s *ApprovalServiceTestSuite) pendingApproval() (runID, approvalID string) {
	agent := s.deployedAgent(domain.AgentKindLinkedIn, 10)
	detail := s.createRun(agent)

	s.Require().Equal(domain.RunStatusWaitingApproval, detail.Run.Status)
	s.Require().Len(detail.Approvals, 1)
	return detail.Run.ID, detail.Approvals[0].ID
}

func (s *ApprovalServiceTestSuite) TestCreateRun_LinkedInWaitsForApproval() {
	agent := s.deployedAgent(domain.AgentKindLinkedIn, 10)
	detail := s.createRun(agent)

	s.Equal(domain.RunStatusWaitingApproval, detail.Run.Status)
	s.Nil(detail.Run.RuntimeJobID)
	s.Zero(s.runtime.submitCount())

	s.Require().Len(detail.Approvals, 1)
	approval := detail.Approvals[0]
	s.Equal(domain.ApprovalStatusPending, approval.Status)
	s.Equal("linkedin.send_message", approval.Action)
	s.Equal(domain.ReasonApprovalRequired, approval.Reason)
	s.EqualValues(3, approval.Payload["riskTier"])
	s.EqualValues(10, approval.Payload["proposedActionCount"])
	s.Equal(s.policyID, approval.Payload["policyId"])
}

func (s *ApprovalServiceTestSuite) TestDecide_ApprovedDispatches() {
	s.runtime.submitState = domain.RuntimeStateStarted
	runID, approvalID := s.pendingApproval()
	note := "looks fine"

	approval, err := s.approvals.Decide(context.Background(), s.scope, approvalID, domain.ApprovalStatusApproved, &note)
	s.Require().NoError(err)

	s.Equal(domain.ApprovalStatusApproved, approval.Status)
	s.Require().NotNil(approval.DecidedBy)
	s.Equal(s.scope.Actor, *approval.DecidedBy)
	s.NotNil(approval.DecidedAt)
	s.Equal(note, approval.Payload["note"])

	detail, err := s.runs.GetRun(context.Background(), s.scope, runID)
	s.Require().NoError(err)
	s.Equal(domain.RunStatusRunning, detail.Run.Status)
	s.Require().NotNil(detail.Run.RuntimeJobID)
	s.Equal(domain.TaskStatusRunning, s.taskByName(detail, domain.TaskExecutePrimaryAction).Status)
	s.Equal(1, s.runtime.submitCount())

	s.Equal(1.0, testutil.ToFloat64(s.metrics.ApprovalsDecided.WithLabelValues("approved")))

	events, err := s.repos.Audit.ListByTarget(context.Background(), s.scope.WorkspaceID, domain.TargetApproval, approvalID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("approval.approved", events[0].Action)
	s.Equal(runID, events[0].Detail["runId"])
	s.Equal(note, events[0].Detail["note"])
}

func (s *ApprovalServiceTestSuite) TestDecide_ApprovedButRuntimeDown() {
	runID, approvalID := s.pendingApproval()
	s.runtime.submitErr = orchestrator.ErrDispatchFailed

	_, err := s.approvals.Decide(context.Background(), s.scope, approvalID, domain.ApprovalStatusApproved, nil)
	s.Require().NoError(err)

	run := s.reload(runID)
	s.Equal(domain.RunStatusFailed, run.Status)
	s.Require().NotNil(run.FailureReason)
	s.Equal(domain.ReasonRuntimeUnavailableApprove, *run.FailureReason)
	s.Require().NotNil(run.RuntimeState)
	s.Equal(domain.RuntimeStateDispatchFailed, *run.RuntimeState)
	s.assertTasksClosed(runID)
}

func (s *ApprovalServiceTestSuite) TestDecide_Rejected() {
	runID, approvalID := s.pendingApproval()

	_, err := s.approvals.Decide(context.Background(), s.scope, approvalID, domain.ApprovalStatusRejected, nil)
	s.Require().NoError(err)

	run := s.reload(runID)
	s.Equal(domain.RunStatusFailed, run.Status)
	s.Require().NotNil(run.FailureReason)
	s.Equal(domain.ReasonApprovalRejected, *run.FailureReason)
	s.Require().NotNil(run.RuntimeState)
	s.Equal(domain.RuntimeStateRejected, *run.RuntimeState)
	s.Zero(s.runtime.submitCount())
	s.assertTasksClosed(runID)
}

func (s *ApprovalServiceTestSuite) TestDecide_Twice() {
	_, approvalID := s.pendingApproval()
	ctx := context.Background()

	_, err := s.approvals.Decide(ctx, s.scope, approvalID, domain.ApprovalStatusApproved, nil)
	s.Require().NoError(err)

	_, err = s.approvals.Decide(ctx, s.scope, approvalID, domain.ApprovalStatusRejected, nil)
	s.ErrorIs(err, domain.ErrApprovalResolved)
	s.Equal(1, s.runtime.submitCount())
}

func (s *ApprovalServiceTestSuite) TestDecide_Concurrent() {
	_, approvalID := s.pendingApproval()
	ctx := context.Background()

	const deciders = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for range deciders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.approvals.Decide(ctx, s.scope, approvalID, domain.ApprovalStatusApproved, nil)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrApprovalResolved):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(deciders-1, conflicts)
	s.Equal(1, s.runtime.submitCount())
}

func (s *ApprovalServiceTestSuite) TestDecide_InvalidDecision() {
	_, approvalID := s.pendingApproval()

	_, err := s.approvals.Decide(context.Background(), s.scope, approvalID, domain.ApprovalStatusPending, nil)
	s.ErrorIs(err, domain.ErrInvalidDecision)
}

func (s *ApprovalServiceTestSuite) TestDecide_NotFound() {
	_, err := s.approvals.Decide(context.Background(), s.scope,
		"00000000-0000-0000-0000-000000000099", domain.ApprovalStatusApproved, nil)
	s.ErrorIs(err, domain.ErrApprovalNotFound)
}

func (s *ApprovalServiceTestSuite) TestList_ByStatus() {
	s.pendingApproval()
	_, second := s.pendingApproval()
	ctx := context.Background()

	_, err := s.approvals.Decide(ctx, s.scope, second, domain.ApprovalStatusRejected, nil)
	s.Require().NoError(err)

	pending := domain.ApprovalStatusPending
	list, err := s.approvals.List(ctx, s.scope, &pending)
	s.Require().NoError(err)
	s.Len(list, 1)

	all, err := s.approvals.List(ctx, s.scope, nil)
	s.Require().NoError(err)
	s.Len(all, 2)

	bogus := domain.ApprovalStatus("maybe")
	_, err = s.approvals.List(ctx, s.scope, &bogus)
	s.ErrorIs(err, domain.ErrValidation)
}

func TestApprovalServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ApprovalServiceTestSuite))
}
