package service_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/orchestrator"
)

// fakeRuntime is an in-memory orchestrator. Jobs start in the configured
// submit state and report whatever state was last set for them.
type fakeRuntime struct {
	mu sync.Mutex

	submitErr   error
	submitState domain.RuntimeState
	pollErr     error
	cancelErr   error

	seq       int
	states    map[string]domain.RuntimeState
	results   map[string]map[string]any
	submitted []orchestrator.SubmitRequest
	polls     int
	cancelled []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		submitState: domain.RuntimeStatePending,
		states:      map[string]domain.RuntimeState{},
		results:     map[string]map[string]any{},
	}
}

func (f *fakeRuntime) Submit(_ context.Context, req orchestrator.SubmitRequest) (*orchestrator.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.seq++
	id := jobID(f.seq)
	f.states[id] = f.submitState
	f.submitted = append(f.submitted, req)
	return &orchestrator.Job{JobID: id, State: f.submitState}, nil
}

func (f *fakeRuntime) Poll(_ context.Context, jobID string) (*orchestrator.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	state, ok := f.states[jobID]
	if !ok {
		return nil, orchestrator.ErrPollFailed
	}
	return &orchestrator.JobStatus{JobID: jobID, State: state, Result: f.results[jobID]}, nil
}

func (f *fakeRuntime) Cancel(_ context.Context, jobID string) (*orchestrator.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, jobID)
	f.states[jobID] = domain.RuntimeStateRevoked
	return &orchestrator.CancelResult{JobID: jobID, Revoked: true}, nil
}

func (f *fakeRuntime) set(jobID string, state domain.RuntimeState, result map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[jobID] = state
	if result != nil {
		f.results[jobID] = result
	}
}

func (f *fakeRuntime) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeRuntime) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func jobID(n int) string {
	return fmt.Sprintf("job-%d", n)
}
