package webhooks

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
)

// RetryableError asks the job runner to run the job again after Delay.
type RetryableError struct {
	JobID   string
	Delay   time.Duration
	Message string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("webhooks: delivery %s will be retried in %s: %s", e.JobID, e.Delay, e.Message)
}

func (e *RetryableError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Message, goerrors.CategoryExternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(core.WebhookErrorDeliveryRetryable).
		WithMetadata(map[string]any{
			"job_id":      e.JobID,
			"retry_delay": e.Delay.String(),
		})
}

// TerminalError tells the job runner the job has failed for good.
type TerminalError struct {
	JobID   string
	Message string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("webhooks: delivery %s failed: %s", e.JobID, e.Message)
}

func (e *TerminalError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(core.WebhookErrorDeliveryFailed).
		WithMetadata(map[string]any{"job_id": e.JobID})
}

func AsRetryable(err error) (*RetryableError, bool) {
	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return retryable, true
	}
	return nil, false
}

func AsTerminal(err error) (*TerminalError, bool) {
	var terminal *TerminalError
	if errors.As(err, &terminal) {
		return terminal, true
	}
	return nil, false
}
