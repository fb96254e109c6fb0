// Package orchestrator is the HTTP client for the external runtime that executes agent jobs.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/mtlprog/commandcenter/internal/domain"
	"github.com/mtlprog/commandcenter/internal/metrics"
)

// Operation names used for metrics and logs.
const (
	OpSubmit = "submit"
	OpPoll   = "poll"
	OpCancel = "cancel"
)

var (
	// ErrDispatchFailed is returned when a job could not be submitted.
	ErrDispatchFailed = errors.New("runtime dispatch failed")

	// ErrPollFailed is returned when job status could not be read.
	// Callers treat it as "state unknown", never as a job failure.
	ErrPollFailed = errors.New("runtime poll failed")

	// ErrCancelFailed is returned when the orchestrator did not acknowledge a cancel.
	ErrCancelFailed = errors.New("runtime cancel failed")
)

// StatusError is a non-2xx response from the orchestrator.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("runtime %s %s: status %d", e.Method, e.Path, e.Code)
}

// SubmitRequest is the body of POST /orchestrate.
type SubmitRequest struct {
	RunID      string         `json:"run_id"`
	AgentKind  string         `json:"agent_kind"`
	Objective  string         `json:"objective"`
	Tools      []string       `json:"tools"`
	Input      map[string]any `json:"input"`
	MaxRetries int            `json:"max_retries"`
}

// Job is the handle returned by a successful submit.
type Job struct {
	JobID string              `json:"job_id"`
	State domain.RuntimeState `json:"state"`
}

// JobStatus is the body of GET /jobs/{id}.
type JobStatus struct {
	JobID      string              `json:"job_id"`
	State      domain.RuntimeState `json:"state"`
	Ready      bool                `json:"ready"`
	Successful bool                `json:"successful"`
	Failed     bool                `json:"failed"`
	Result     map[string]any      `json:"result,omitempty"`
	Error      *string             `json:"error,omitempty"`
}

// CancelResult is the body of POST /jobs/{id}/cancel.
type CancelResult struct {
	JobID   string `json:"job_id"`
	Revoked bool   `json:"revoked"`
}

// Config holds client settings.
type Config struct {
	BaseURL string

	// Timeout bounds every operation end to end, retries included.
	Timeout time.Duration

	// RateLimit is the sustained outbound request rate per second.
	RateLimit float64
	RateBurst int

	// BreakerFailures consecutive failed operations open the circuit for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// RetryAttempts applies to poll and cancel. Submit is attempted once.
	RetryAttempts uint
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://127.0.0.1:8010",
		Timeout:         2 * time.Second,
		RateLimit:       50,
		RateBurst:       10,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		RetryAttempts:   3,
	}
}

// Client talks to the runtime orchestrator. It is safe for concurrent use.
type Client struct {
	baseURL  string
	timeout  time.Duration
	attempts uint
	http     *http.Client
	limiter  *rate.Limiter
	metrics  *metrics.Metrics

	// submitCB gates dispatch; statusCB gates poll and cancel. A run of failed
	// status reads must never make submits fail.
	submitCB *gobreaker.CircuitBreaker
	statusCB *gobreaker.CircuitBreaker
}

// New creates a client. Zero config fields fall back to DefaultConfig.
// A nil m records into a private registry.
func New(cfg Config, m *metrics.Metrics) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if m == nil {
		m = metrics.New(nil)
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		timeout:  cfg.Timeout,
		attempts: cfg.RetryAttempts,
		http:     &http.Client{},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		metrics:  m,
	}

	c.submitCB = newBreaker("runtime-submit", cfg, m)
	c.statusCB = newBreaker("runtime-status", cfg, m)

	return c
}

func newBreaker(name string, cfg Config, m *metrics.Metrics) *gobreaker.CircuitBreaker {
	failures := cfg.BreakerFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !isInfraFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("runtime circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			m.CircuitState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// isInfraFailure reports whether err says the orchestrator is unhealthy.
// A 4xx answer comes from a healthy orchestrator rejecting one request, so it
// is neither retried nor counted against the breaker.
func isInfraFailure(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

// Submit dispatches a job. Any failure, including a timeout, is ErrDispatchFailed.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if req.Tools == nil {
		req.Tools = []string{}
	}
	if req.Input == nil {
		req.Input = map[string]any{}
	}

	var job Job
	if err := c.call(ctx, OpSubmit, 1, http.MethodPost, "/orchestrate", req, &job); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	if job.JobID == "" {
		return nil, fmt.Errorf("%w: empty job id in response", ErrDispatchFailed)
	}
	job.State = domain.ParseRuntimeState(string(job.State))

	return &job, nil
}

// Poll reads the current job status.
func (c *Client) Poll(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	path := "/jobs/" + url.PathEscape(jobID)
	if err := c.call(ctx, OpPoll, c.attempts, http.MethodGet, path, nil, &status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPollFailed, err)
	}
	status.State = domain.ParseRuntimeState(string(status.State))
	if status.JobID == "" {
		status.JobID = jobID
	}

	return &status, nil
}

// Cancel asks the orchestrator to revoke a job.
func (c *Client) Cancel(ctx context.Context, jobID string) (*CancelResult, error) {
	var res CancelResult
	path := "/jobs/" + url.PathEscape(jobID) + "/cancel"
	if err := c.call(ctx, OpCancel, c.attempts, http.MethodPost, path, nil, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelFailed, err)
	}
	if res.JobID == "" {
		res.JobID = jobID
	}

	return &res, nil
}

// call runs one operation under a single deadline: rate limiter, breaker, then retries.
func (c *Client) call(ctx context.Context, op string, attempts uint, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cb := c.statusCB
	if op == OpSubmit {
		cb = c.submitCB
	}

	start := time.Now()
	err := c.execute(ctx, cb, attempts, method, path, body, out)
	c.metrics.RuntimeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = metrics.OutcomeCircuitOpen
	case err != nil:
		outcome = metrics.OutcomeError
	}
	c.metrics.RuntimeRequests.WithLabelValues(op, outcome).Inc()

	return err
}

func (c *Client) execute(ctx context.Context, cb *gobreaker.CircuitBreaker, attempts uint, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err := cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.RetryIf(isInfraFailure),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				return retry.BackOffDelay(n, err, config)
			}),
		)
		return nil, r.Do(func() error {
			return c.doJSON(ctx, method, path, body, out)
		})
	})

	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
