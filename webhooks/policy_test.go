package webhooks

import (
	"testing"
	"time"

	"github.com/goliatone/go-hooks/core"
)

func jobWithResult(result *core.DeliveryResult, firstSent time.Time) core.DeliveryJob {
	return core.DeliveryJob{ID: "job_1", Result: result, DateFirstSent: &firstSent}
}

func TestShouldRetryAutomatically_WindowsPerResultClass(t *testing.T) {
	policy := TieredRetryPolicy{}
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		result  *core.DeliveryResult
		limited bool
		window  time.Duration
	}{
		{"limited effort connection", core.ConnectionErrorResult("refused"), true, LimitedEffortWindow},
		{"limited effort 503", core.ResponseResult(503), true, LimitedEffortWindow},
		{"connection error", core.ConnectionErrorResult("timed out"), false, ConnectionErrorWindow},
		{"server error", core.ResponseResult(503), false, ServerErrorWindow},
		{"client error", core.ResponseResult(404), false, ClientErrorWindow},
		{"redirect", core.ResponseResult(302), false, ClientErrorWindow},
	}
	for _, tc := range cases {
		job := jobWithResult(tc.result, first)
		for _, elapsed := range []time.Duration{0, time.Second, tc.window / 2, tc.window - time.Nanosecond} {
			if !policy.ShouldRetryAutomatically(job, tc.limited, first.Add(elapsed)) {
				t.Fatalf("%s: expected retry at elapsed %s", tc.name, elapsed)
			}
		}
		for _, elapsed := range []time.Duration{tc.window, tc.window + time.Second, 48 * time.Hour} {
			if policy.ShouldRetryAutomatically(job, tc.limited, first.Add(elapsed)) {
				t.Fatalf("%s: expected no retry at elapsed %s", tc.name, elapsed)
			}
		}
	}
}

func TestShouldRetryAutomatically_NoResultOrDeactivated(t *testing.T) {
	policy := TieredRetryPolicy{}
	now := time.Now().UTC()
	if policy.ShouldRetryAutomatically(core.DeliveryJob{}, false, now) {
		t.Fatalf("expected no retry without a result")
	}
	if policy.ShouldRetryAutomatically(jobWithResult(core.DeactivatedResult(), now), false, now) {
		t.Fatalf("expected no retry for deactivated webhooks")
	}
}

func TestRetryDelay_StepFunction(t *testing.T) {
	policy := TieredRetryPolicy{}
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job := jobWithResult(core.ResponseResult(500), first)

	cases := []struct {
		elapsed time.Duration
		delay   time.Duration
	}{
		{0, time.Minute},
		{9*time.Minute + 59*time.Second, time.Minute},
		{10 * time.Minute, 5 * time.Minute},
		{59 * time.Minute, 5 * time.Minute},
		{time.Hour, time.Hour},
		{20 * time.Hour, time.Hour},
	}
	previous := time.Duration(0)
	for _, tc := range cases {
		got := policy.RetryDelay(job, first.Add(tc.elapsed))
		if got != tc.delay {
			t.Fatalf("elapsed %s: expected delay %s, got %s", tc.elapsed, tc.delay, got)
		}
		if got < previous {
			t.Fatalf("expected non-decreasing delay, %s after %s", got, previous)
		}
		previous = got
	}
}

func TestRetryDelay_IgnoresAttemptCount(t *testing.T) {
	policy := TieredRetryPolicy{}
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job := jobWithResult(core.ResponseResult(500), first)
	job.AttemptCount = 1
	early := policy.RetryDelay(job, first.Add(time.Minute))
	job.AttemptCount = 500
	if policy.RetryDelay(job, first.Add(time.Minute)) != early {
		t.Fatalf("expected attempt count to have no effect on the delay")
	}
}
