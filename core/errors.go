package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WebhookErrorBadInput          = "WEBHOOK_BAD_INPUT"
	WebhookErrorNotFound          = "WEBHOOK_NOT_FOUND"
	WebhookErrorDeliveryRetryable = "WEBHOOK_DELIVERY_RETRYABLE"
	WebhookErrorDeliveryFailed    = "WEBHOOK_DELIVERY_FAILED"
	WebhookErrorLeaseConflict     = "WEBHOOK_LEASE_CONFLICT"
	WebhookErrorInternal          = "WEBHOOK_INTERNAL_ERROR"
)

func webhookErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureWebhookErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return NewWebhookError(err.Error(), goerrors.CategoryNotFound, WebhookErrorNotFound)
	case strings.Contains(msg, "lease"), strings.Contains(msg, "already claimed"):
		return NewWebhookError(err.Error(), goerrors.CategoryConflict, WebhookErrorLeaseConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "not supported"):
		return NewWebhookError(err.Error(), goerrors.CategoryBadInput, WebhookErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureWebhookErrorEnvelope(mapped)
}

func NewWebhookError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureWebhookErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureWebhookErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = webhookHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultWebhookTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultWebhookTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return WebhookErrorBadInput
	case goerrors.CategoryNotFound:
		return WebhookErrorNotFound
	case goerrors.CategoryConflict:
		return WebhookErrorLeaseConflict
	case goerrors.CategoryExternal:
		return WebhookErrorDeliveryFailed
	default:
		return WebhookErrorInternal
	}
}

func webhookHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError converts any error into the webhook error envelope.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return webhookErrorMapper(err)
}

func notFoundError(kind string, id string) *goerrors.Error {
	return NewWebhookError(kind+" not found", goerrors.CategoryNotFound, WebhookErrorNotFound).
		WithMetadata(map[string]any{"id": id})
}

func badInputError(field string, message string) *goerrors.Error {
	return ensureWebhookErrorEnvelope(
		goerrors.NewValidation(message, goerrors.FieldError{Field: field, Message: message}).
			WithTextCode(WebhookErrorBadInput),
	)
}

// NewLeaseConflictError reports a settle attempt from a worker whose claim
// on the job has been superseded.
func NewLeaseConflictError(lease DeliveryLease) *goerrors.Error {
	return NewWebhookError("delivery job lease lost", goerrors.CategoryConflict, WebhookErrorLeaseConflict).
		WithMetadata(map[string]any{"job_id": lease.JobID, "claim": lease.Claim})
}

func IsLeaseConflict(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == WebhookErrorLeaseConflict
}
