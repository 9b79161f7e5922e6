package core

import "context"

const (
	MetricDeliveryAttempts  = "hooks.delivery.attempts"
	MetricDeliveryOutcome   = "hooks.delivery.outcome"
	MetricDeliveryDuration  = "hooks.delivery.duration_ms"
	MetricTriggerJobs       = "hooks.trigger.jobs"
	MetricTriggerSuppressed = "hooks.trigger.suppressed"
	MetricQueueMessages     = "hooks.queue.messages"
	MetricQueueDuration     = "hooks.queue.duration_ms"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func CloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
