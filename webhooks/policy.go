package webhooks

import (
	"net/http"
	"time"

	"github.com/goliatone/go-hooks/core"
)

const (
	LimitedEffortWindow   = 5 * time.Minute
	ConnectionErrorWindow = 24 * time.Hour
	ServerErrorWindow     = 24 * time.Hour
	ClientErrorWindow     = time.Hour
)

// RetryPolicy decides whether a failed delivery is retried and when.
type RetryPolicy interface {
	ShouldRetryAutomatically(job core.DeliveryJob, limitedEffort bool, now time.Time) bool
	RetryDelay(job core.DeliveryJob, now time.Time) time.Duration
}

// TieredRetryPolicy gives each failure class a retry window measured from
// the first attempt. The attempt count is never consulted.
type TieredRetryPolicy struct{}

func (TieredRetryPolicy) ShouldRetryAutomatically(job core.DeliveryJob, limitedEffort bool, now time.Time) bool {
	window, ok := RetryWindow(job.Result, limitedEffort)
	if !ok {
		return false
	}
	return elapsedSinceFirstAttempt(job, now) < window
}

// RetryDelay is a step function of the time since the first attempt.
func (TieredRetryPolicy) RetryDelay(job core.DeliveryJob, now time.Time) time.Duration {
	elapsed := elapsedSinceFirstAttempt(job, now)
	switch {
	case elapsed < 10*time.Minute:
		return time.Minute
	case elapsed < time.Hour:
		return 5 * time.Minute
	default:
		return time.Hour
	}
}

// RetryWindow returns the retry window for a recorded result. A missing or
// deactivated result has none.
func RetryWindow(result *core.DeliveryResult, limitedEffort bool) (time.Duration, bool) {
	if result == nil || result.WebhookDeactivated {
		return 0, false
	}
	switch {
	case limitedEffort:
		return LimitedEffortWindow, true
	case result.ConnectionError != nil:
		return ConnectionErrorWindow, true
	case result.StatusCode != nil && *result.StatusCode >= http.StatusInternalServerError && *result.StatusCode < 600:
		return ServerErrorWindow, true
	case result.StatusCode != nil:
		return ClientErrorWindow, true
	default:
		return 0, false
	}
}

func elapsedSinceFirstAttempt(job core.DeliveryJob, now time.Time) time.Duration {
	if job.DateFirstSent == nil {
		return 0
	}
	elapsed := now.Sub(*job.DateFirstSent)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

var _ RetryPolicy = TieredRetryPolicy{}
