package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	glog "github.com/goliatone/go-logger/glog"
)

// LimitedEffortChecker classifies delivery destinations for the retry policy.
type LimitedEffortChecker interface {
	IsLimitedEffort(ctx context.Context, rawURL string) bool
}

// Engine runs single delivery attempts. Mutual exclusion between workers is
// the caller's lease; the engine holds no locks.
type Engine struct {
	jobs     core.DeliveryJobStore
	webhooks core.WebhookStore
	client   core.DeliveryClient
	checker  LimitedEffortChecker
	policy   RetryPolicy
	config   core.Config
	logger   glog.Logger
	metrics  core.MetricsRecorder
	now      func() time.Time
}

type EngineOption func(*Engine)

func WithLimitedEffortChecker(checker LimitedEffortChecker) EngineOption {
	return func(e *Engine) {
		e.checker = checker
	}
}

func WithRetryPolicy(policy RetryPolicy) EngineOption {
	return func(e *Engine) {
		if policy != nil {
			e.policy = policy
		}
	}
}

func WithConfig(cfg core.Config) EngineOption {
	return func(e *Engine) {
		e.config = cfg
	}
}

func WithLogger(logger glog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(
	jobs core.DeliveryJobStore,
	webhooks core.WebhookStore,
	client core.DeliveryClient,
	opts ...EngineOption,
) (*Engine, error) {
	if jobs == nil || webhooks == nil {
		return nil, fmt.Errorf("webhooks: job and webhook stores are required")
	}
	if client == nil {
		return nil, fmt.Errorf("webhooks: delivery client is required")
	}
	engine := &Engine{
		jobs:     jobs,
		webhooks: webhooks,
		client:   client,
		policy:   TieredRetryPolicy{},
		config:   core.DefaultConfig(),
		logger:   glog.Nop(),
		metrics:  core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// Run performs one delivery attempt for job. It returns nil on success,
// *RetryableError when the job should run again later and *TerminalError
// when it has failed for good. The result is committed before either signal
// is returned. Any other error means the attempt could not be recorded.
func (e *Engine) Run(ctx context.Context, job core.DeliveryJob) error {
	if e == nil {
		return fmt.Errorf("webhooks: engine is not configured")
	}
	webhook, err := e.webhooks.Get(ctx, job.WebhookID)
	if err != nil {
		return err
	}
	tags := map[string]string{"event_type": job.EventType}
	e.metrics.IncCounter(ctx, core.MetricDeliveryAttempts, 1, core.CloneTags(tags))

	if !webhook.Active {
		job.Result = core.DeactivatedResult()
		if err := e.jobs.SaveResult(ctx, job); err != nil {
			return err
		}
		e.recordOutcome(ctx, tags, "deactivated")
		return &TerminalError{JobID: job.ID, Message: job.Result.ErrorMessage()}
	}

	startedAt := time.Now()
	response := e.attempt(ctx, webhook, job)
	e.metrics.ObserveHistogram(ctx, core.MetricDeliveryDuration, float64(time.Since(startedAt).Milliseconds()), core.CloneTags(tags))

	sentAt := e.now()
	job.DateSent = &sentAt
	if job.DateFirstSent == nil {
		job.DateFirstSent = &sentAt
	}
	if response.ConnectionError != "" {
		job.Result = core.ConnectionErrorResult(response.ConnectionError)
	} else {
		job.Result = core.ResponseResult(response.StatusCode)
	}

	core.LogWithLevel(ctx, e.logger, "info", "webhook delivery attempted", map[string]any{
		"job_id":           job.ID,
		"webhook_id":       webhook.ID,
		"event_type":       job.EventType,
		"delivery_url":     webhook.DeliveryURL,
		"payload":          core.RedactPayload(job.EventType, job.Payload),
		"connection_error": response.ConnectionError,
		"status_code":      response.StatusCode,
		"headers":          core.RedactHeaders(response.Headers),
	})

	if err := e.jobs.SaveResult(ctx, job); err != nil {
		return err
	}

	if job.Result.Successful() {
		e.recordOutcome(ctx, tags, "success")
		return nil
	}

	message := job.Result.ErrorMessage()
	limited := e.checker != nil && e.checker.IsLimitedEffort(ctx, webhook.DeliveryURL)
	now := e.now()
	if e.policy.ShouldRetryAutomatically(job, limited, now) {
		e.recordOutcome(ctx, tags, "retry")
		return &RetryableError{JobID: job.ID, Delay: e.policy.RetryDelay(job, now), Message: message}
	}
	e.recordOutcome(ctx, tags, "failed")
	return &TerminalError{JobID: job.ID, Message: message}
}

func (e *Engine) attempt(ctx context.Context, webhook core.Webhook, job core.DeliveryJob) core.DeliveryResponse {
	soft := e.config.Delivery.SoftTimeLimit
	if soft <= 0 {
		soft = core.DefaultSoftTimeLimit
	}
	attemptCtx, cancel := context.WithTimeout(ctx, soft)
	defer cancel()

	timeout := e.config.Delivery.RequestTimeout
	if timeout <= 0 {
		timeout = core.DefaultRequestTimeout
	}
	response, err := e.client.Deliver(attemptCtx, core.DeliveryRequest{
		URL:       webhook.DeliveryURL,
		Proxy:     strings.TrimSpace(e.config.Delivery.HTTPProxy),
		UserAgent: e.config.UserAgent.String(),
		Timeout:   timeout,
		Secret:    webhook.SecretValue(),
		JobID:     job.ID,
		EventType: job.EventType,
		Payload:   job.Payload,
	})
	if err != nil && response.ConnectionError == "" && response.StatusCode == 0 {
		response.ConnectionError = err.Error()
	}
	if response.ConnectionError == "" && response.StatusCode == 0 {
		response.ConnectionError = "no response received"
	}
	return response
}

func (e *Engine) recordOutcome(ctx context.Context, tags map[string]string, outcome string) {
	outcomeTags := core.CloneTags(tags)
	outcomeTags["outcome"] = outcome
	e.metrics.IncCounter(ctx, core.MetricDeliveryOutcome, 1, outcomeTags)
}
