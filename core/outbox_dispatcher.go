package core

import (
	"context"
	"fmt"
	"strings"
)

const (
	DeliveryExecutionJobID  = "hooks.webhook.delivery"
	DeliveryParamJobID      = "delivery_job_id"
	DeliveryParamWebhookID  = "webhook_id"
	DeliveryParamEventType  = "event_type"
	deliveryDedupPolicyDrop = "drop"
	defaultOutboxBatchSize  = 50
)

type OutboxDispatcherConfig struct {
	BatchSize int
}

func DefaultOutboxDispatcherConfig() OutboxDispatcherConfig {
	return OutboxDispatcherConfig{BatchSize: defaultOutboxBatchSize}
}

// OutboxDispatcher hands committed delivery jobs to the execution substrate.
// Jobs written inside a rolled back transaction never become visible here.
type OutboxDispatcher struct {
	store    DeliveryJobStore
	enqueuer JobEnqueuer
	config   OutboxDispatcherConfig
	logger   Logger
}

func NewOutboxDispatcher(
	store DeliveryJobStore,
	enqueuer JobEnqueuer,
	config OutboxDispatcherConfig,
	logger Logger,
) (*OutboxDispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("core: delivery job store is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("core: job enqueuer is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultOutboxDispatcherConfig().BatchSize
	}
	return &OutboxDispatcher{
		store:    store,
		enqueuer: enqueuer,
		config:   config,
		logger:   logger,
	}, nil
}

func (d *OutboxDispatcher) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.store == nil || d.enqueuer == nil {
		return DispatchStats{}, fmt.Errorf("core: outbox dispatcher is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = d.config.BatchSize
	}
	jobs, err := d.store.ClaimUndispatched(ctx, limit)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(jobs)}
	var dispatchErr error
	for _, job := range jobs {
		if err := d.enqueuer.Enqueue(ctx, DeliveryExecutionMessage(job)); err != nil {
			stats.Failed++
			dispatchErr = joinErrors(dispatchErr, fmt.Errorf("core: enqueue delivery %q failed: %w", job.ID, err))
			if releaseErr := d.store.ReleaseDispatch(ctx, job.ID); releaseErr != nil {
				dispatchErr = joinErrors(dispatchErr, releaseErr)
			}
			continue
		}
		stats.Dispatched++
	}
	if stats.Claimed > 0 {
		LogWithLevel(ctx, d.logger, "debug", "delivery jobs dispatched", map[string]any{
			"claimed":    stats.Claimed,
			"dispatched": stats.Dispatched,
			"failed":     stats.Failed,
		})
	}
	return stats, dispatchErr
}

// DeliveryExecutionMessage builds the queue message for a delivery job. The
// job id doubles as the idempotency key so duplicate publishes collapse.
func DeliveryExecutionMessage(job DeliveryJob) *JobExecutionMessage {
	return &JobExecutionMessage{
		JobID:      DeliveryExecutionJobID,
		ScriptPath: DeliveryExecutionJobID,
		Parameters: map[string]any{
			DeliveryParamJobID:     job.ID,
			DeliveryParamWebhookID: job.WebhookID,
			DeliveryParamEventType: job.EventType,
		},
		IdempotencyKey: job.ID,
		DedupPolicy:    deliveryDedupPolicyDrop,
	}
}

// DeliveryJobIDFromMessage extracts the delivery job id from a queue message.
func DeliveryJobIDFromMessage(msg *JobExecutionMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("core: execution message is required")
	}
	if raw, ok := msg.Parameters[DeliveryParamJobID]; ok {
		if id := strings.TrimSpace(fmt.Sprint(raw)); id != "" && id != "<nil>" {
			return id, nil
		}
	}
	if id := strings.TrimSpace(msg.IdempotencyKey); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("core: delivery job id is required")
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

var _ DeliveryDispatcher = (*OutboxDispatcher)(nil)
