package otelmetrics

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-hooks/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type capturingMeter struct {
	noop.Meter
	counters   map[string]*capturingCounter
	histograms map[string]*capturingHistogram
	units      map[string]string
	created    int
	failName   string
}

func newCapturingMeter() *capturingMeter {
	return &capturingMeter{
		counters:   map[string]*capturingCounter{},
		histograms: map[string]*capturingHistogram{},
		units:      map[string]string{},
	}
}

func (m *capturingMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	if name == m.failName {
		return nil, errors.New("instrument rejected")
	}
	m.created++
	counter := &capturingCounter{}
	m.counters[name] = counter
	return counter, nil
}

func (m *capturingMeter) Float64Histogram(name string, opts ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	m.created++
	m.units[name] = metric.NewFloat64HistogramConfig(opts...).Unit()
	histogram := &capturingHistogram{}
	m.histograms[name] = histogram
	return histogram, nil
}

type capturingCounter struct {
	noop.Int64Counter
	total int64
	last  attribute.Set
}

func (c *capturingCounter) Add(_ context.Context, incr int64, opts ...metric.AddOption) {
	c.total += incr
	c.last = metric.NewAddConfig(opts).Attributes()
}

type capturingHistogram struct {
	noop.Float64Histogram
	values []float64
}

func (h *capturingHistogram) Record(_ context.Context, value float64, _ ...metric.RecordOption) {
	h.values = append(h.values, value)
}

func TestRecorder_ReusesInstrumentsAndMapsTags(t *testing.T) {
	ctx := context.Background()
	meter := newCapturingMeter()
	recorder := NewRecorder(meter)

	recorder.IncCounter(ctx, core.MetricDeliveryOutcome, 1, map[string]string{"outcome": "delivered", "event_type": "bug:0.1"})
	recorder.IncCounter(ctx, " "+core.MetricDeliveryOutcome+" ", 2, map[string]string{"outcome": "retry"})
	recorder.ObserveHistogram(ctx, core.MetricDeliveryDuration, 42, nil)
	recorder.ObserveHistogram(ctx, core.MetricDeliveryDuration, 7, nil)

	if meter.created != 2 {
		t.Fatalf("expected one instrument per metric name, got %d", meter.created)
	}
	counter := meter.counters[core.MetricDeliveryOutcome]
	if counter == nil || counter.total != 3 {
		t.Fatalf("expected counter total 3, got %+v", counter)
	}
	if value, ok := counter.last.Value("outcome"); !ok || value.AsString() != "retry" {
		t.Fatalf("expected outcome attribute, got %v", counter.last)
	}
	histogram := meter.histograms[core.MetricDeliveryDuration]
	if histogram == nil || len(histogram.values) != 2 || histogram.values[0] != 42 {
		t.Fatalf("unexpected histogram samples %+v", histogram)
	}
	if meter.units[core.MetricDeliveryDuration] != "ms" {
		t.Fatalf("expected millisecond unit, got %q", meter.units[core.MetricDeliveryDuration])
	}
}

func TestRecorder_DropsMetricsWhenInstrumentFails(t *testing.T) {
	meter := newCapturingMeter()
	meter.failName = "hooks.bad"
	var failed []string
	recorder := NewRecorder(meter, WithErrorHandler(func(name string, err error) {
		failed = append(failed, name)
	}))

	recorder.IncCounter(context.Background(), "hooks.bad", 1, nil)
	recorder.IncCounter(context.Background(), "", 1, nil)

	if len(failed) != 1 || failed[0] != "hooks.bad" {
		t.Fatalf("expected one reported failure, got %v", failed)
	}
	if len(meter.counters) != 0 {
		t.Fatalf("expected no counters to be registered")
	}
}

func TestRecorder_DefaultsToGlobalMeter(t *testing.T) {
	recorder := NewRecorder(nil)
	recorder.IncCounter(context.Background(), core.MetricTriggerJobs, 1, map[string]string{"target_kind": "project"})
	recorder.ObserveHistogram(context.Background(), core.MetricDeliveryDuration, 1, nil)
	if len(recorder.counters) != 1 || len(recorder.histograms) != 1 {
		t.Fatalf("expected instruments from the global meter")
	}
}
