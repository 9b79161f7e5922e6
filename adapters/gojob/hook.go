package gojob

import (
	"context"

	"github.com/goliatone/go-hooks/core"
	glog "github.com/goliatone/go-logger/glog"
)

// ObservingHook logs consumer lifecycle events and records them as queue
// metrics tagged with the result.
type ObservingHook struct {
	logger  glog.Logger
	metrics core.MetricsRecorder
}

func NewObservingHook(logger glog.Logger, metrics core.MetricsRecorder) *ObservingHook {
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &ObservingHook{logger: glog.Ensure(logger), metrics: metrics}
}

func (h *ObservingHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	h.logger.Debug("webhook delivery started", "job_id", eventJobID(event))
}

func (h *ObservingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.Debug("webhook delivery settled",
		"job_id", eventJobID(event),
		"duration", event.Duration.String(),
	)
	h.record(ctx, "success", event)
}

func (h *ObservingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.Warn("webhook delivery failed",
		"job_id", eventJobID(event),
		"duration", event.Duration.String(),
		"error", event.Err,
	)
	h.record(ctx, "failure", event)
}

func (h *ObservingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.logger.Info("webhook delivery rescheduled",
		"job_id", eventJobID(event),
		"delay", event.Delay.String(),
		"error", event.Err,
	)
	h.record(ctx, "retry", event)
}

func (h *ObservingHook) record(ctx context.Context, result string, event core.JobWorkerEvent) {
	tags := map[string]string{"result": result}
	h.metrics.IncCounter(ctx, core.MetricQueueMessages, 1, tags)
	h.metrics.ObserveHistogram(ctx, core.MetricQueueDuration, float64(event.Duration.Milliseconds()), tags)
}

func eventJobID(event core.JobWorkerEvent) string {
	if event.Message == nil {
		return ""
	}
	id, err := core.DeliveryJobIDFromMessage(event.Message)
	if err != nil {
		return ""
	}
	return id
}

var _ core.JobWorkerHook = (*ObservingHook)(nil)
