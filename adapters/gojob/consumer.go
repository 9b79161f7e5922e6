package gojob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-hooks/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultConsumerErrorDelay   = 30 * time.Second
	defaultConsumerPollInterval = time.Second
)

type ConsumerOption func(*DeliveryConsumer)

// WithConsumerHook observes every processed message.
func WithConsumerHook(hook core.JobWorkerHook) ConsumerOption {
	return func(c *DeliveryConsumer) {
		if hook != nil {
			c.hook = hook
		}
	}
}

func WithConsumerLogger(logger glog.Logger) ConsumerOption {
	return func(c *DeliveryConsumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithErrorDelay sets how long a message waits before redelivery when
// processing failed without recording an attempt.
func WithErrorDelay(delay time.Duration) ConsumerOption {
	return func(c *DeliveryConsumer) {
		if delay > 0 {
			c.errorDelay = delay
		}
	}
}

func WithPollInterval(interval time.Duration) ConsumerOption {
	return func(c *DeliveryConsumer) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// DeliveryConsumer drains delivery messages published by the outbox
// dispatcher and runs each job through a DeliveryProcessor. Retryable
// outcomes are nacked back onto the queue with the engine's delay.
type DeliveryConsumer struct {
	dequeuer     core.JobDequeuer
	processor    core.DeliveryProcessor
	hook         core.JobWorkerHook
	logger       glog.Logger
	errorDelay   time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

func NewDeliveryConsumer(dequeuer core.JobDequeuer, processor core.DeliveryProcessor, opts ...ConsumerOption) (*DeliveryConsumer, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("gojob: delivery processor is required")
	}
	consumer := &DeliveryConsumer{
		dequeuer:     dequeuer,
		processor:    processor,
		hook:         nopHook{},
		logger:       glog.Nop(),
		errorDelay:   defaultConsumerErrorDelay,
		pollInterval: defaultConsumerPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer, nil
}

// Run consumes messages until ctx is cancelled.
func (c *DeliveryConsumer) Run(ctx context.Context) error {
	for {
		handled, err := c.ConsumeOne(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Error("webhook delivery message failed", "error", err)
		}
		if handled && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.pollInterval):
		}
	}
}

// ConsumeOne handles at most one message. handled is false when the queue
// had nothing to hand out.
func (c *DeliveryConsumer) ConsumeOne(ctx context.Context) (handled bool, err error) {
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}

	msg := delivery.Message()
	if msg == nil || msg.JobID != core.DeliveryExecutionJobID {
		reason := "unsupported job message"
		if msg != nil {
			reason = fmt.Sprintf("unsupported job %q", msg.JobID)
		}
		return true, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: reason})
	}
	jobID, err := core.DeliveryJobIDFromMessage(msg)
	if err != nil {
		return true, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}

	startedAt := c.now()
	event := core.JobWorkerEvent{Message: msg, StartedAt: startedAt}
	c.hook.OnStart(ctx, event)

	outcome, procErr := c.processor.ProcessDelivery(ctx, jobID)
	event.Duration = c.now().Sub(startedAt)
	if procErr != nil {
		event.Err = procErr
		event.Delay = c.errorDelay
		c.hook.OnRetry(ctx, event)
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Delay:   c.errorDelay,
			Requeue: true,
			Reason:  procErr.Error(),
		}); nackErr != nil {
			return true, fmt.Errorf("gojob: nack delivery %s: %w", jobID, nackErr)
		}
		return true, procErr
	}

	switch {
	case !outcome.Claimed:
		// Leased elsewhere, finished, or not yet due. The lease holder or
		// the polling sweep owns the job now.
		c.logger.Debug("webhook delivery not claimed", "job_id", jobID, "status", string(outcome.Status))
	case outcome.Status == core.DeliveryJobStatusPending:
		event.Delay = outcome.RetryDelay
		event.Err = errors.New(outcome.Message)
		c.hook.OnRetry(ctx, event)
		return true, delivery.Nack(ctx, core.JobNackOptions{
			Delay:   outcome.RetryDelay,
			Requeue: true,
			Reason:  outcome.Message,
		})
	case outcome.Status == core.DeliveryJobStatusFailed:
		event.Err = errors.New(outcome.Message)
		c.hook.OnFailure(ctx, event)
	default:
		c.hook.OnSuccess(ctx, event)
	}
	return true, delivery.Ack(ctx)
}

type nopHook struct{}

func (nopHook) OnStart(context.Context, core.JobWorkerEvent)   {}
func (nopHook) OnSuccess(context.Context, core.JobWorkerEvent) {}
func (nopHook) OnFailure(context.Context, core.JobWorkerEvent) {}
func (nopHook) OnRetry(context.Context, core.JobWorkerEvent)   {}
