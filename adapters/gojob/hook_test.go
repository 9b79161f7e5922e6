package gojob

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-hooks/core"
	glog "github.com/goliatone/go-logger/glog"
)

type taggedMetrics struct {
	counters   map[string]int64
	histograms map[string][]float64
}

func newTaggedMetrics() *taggedMetrics {
	return &taggedMetrics{counters: map[string]int64{}, histograms: map[string][]float64{}}
}

func (m *taggedMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.counters[name+"|"+tags["result"]] += value
}

func (m *taggedMetrics) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	key := name + "|" + tags["result"]
	m.histograms[key] = append(m.histograms[key], value)
}

func TestObservingHook_LogsAndRecordsConsumerOutcomes(t *testing.T) {
	var buf bytes.Buffer
	logger := glog.NewLogger(glog.WithWriter(&buf), glog.WithLevel("debug"), glog.WithLoggerTypeJSON())
	metrics := newTaggedMetrics()

	processor := &scriptedProcessor{outcomes: map[string]core.DeliveryOutcome{
		"job-ok":    {JobID: "job-ok", Claimed: true, Status: core.DeliveryJobStatusCompleted},
		"job-off":   {JobID: "job-off", Claimed: true, Status: core.DeliveryJobStatusFailed, Message: "Webhook deactivated"},
		"job-retry": {JobID: "job-retry", Claimed: true, Status: core.DeliveryJobStatusPending, RetryDelay: time.Minute, Message: "Bad HTTP response: 502"},
	}}
	consumer := newTestConsumer(t, processor, NewObservingHook(logger, metrics),
		deliveryFor("job-ok"), deliveryFor("job-off"), deliveryFor("job-retry"))

	for i := 0; i < 3; i++ {
		if handled, err := consumer.ConsumeOne(context.Background()); err != nil || !handled {
			t.Fatalf("consume %d: handled=%v err=%v", i, handled, err)
		}
	}

	for _, result := range []string{"success", "failure", "retry"} {
		if got := metrics.counters[core.MetricQueueMessages+"|"+result]; got != 1 {
			t.Fatalf("expected one %s message, got %d", result, got)
		}
		if got := len(metrics.histograms[core.MetricQueueDuration+"|"+result]); got != 1 {
			t.Fatalf("expected one %s duration sample, got %d", result, got)
		}
	}

	logs := buf.String()
	for _, want := range []string{
		`"msg":"webhook delivery started"`,
		`"msg":"webhook delivery failed"`,
		`"job_id":"job-off"`,
		`"msg":"webhook delivery rescheduled"`,
		`"delay":"1m0s"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("expected log output to contain %s, got %s", want, logs)
		}
	}
}

func TestObservingHook_NilDependencies(t *testing.T) {
	hook := NewObservingHook(nil, nil)
	hook.OnStart(context.Background(), core.JobWorkerEvent{})
	hook.OnSuccess(context.Background(), core.JobWorkerEvent{Message: &core.JobExecutionMessage{}})
	hook.OnFailure(context.Background(), core.JobWorkerEvent{})
	hook.OnRetry(context.Background(), core.JobWorkerEvent{})
}
