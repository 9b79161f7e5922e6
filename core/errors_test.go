package core

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestWebhookErrorMapper_AssignsStableCodes(t *testing.T) {
	mapped := webhookErrorMapper(stderrors.New("sqlstore: delivery job not found"))
	if mapped.TextCode != WebhookErrorNotFound || mapped.Code != http.StatusNotFound {
		t.Fatalf("expected not found envelope, got %q/%d", mapped.TextCode, mapped.Code)
	}

	mapped = webhookErrorMapper(stderrors.New("sqlstore: lease already held"))
	if mapped.TextCode != WebhookErrorLeaseConflict || mapped.Category != goerrors.CategoryConflict {
		t.Fatalf("expected lease conflict envelope, got %q/%q", mapped.TextCode, mapped.Category)
	}

	mapped = webhookErrorMapper(stderrors.New("core: event type is required"))
	if mapped.TextCode != WebhookErrorBadInput || mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected bad input envelope, got %q/%d", mapped.TextCode, mapped.Code)
	}
}

func TestWebhookErrorMapper_PreservesRichErrors(t *testing.T) {
	original := goerrors.New("delivery failed", goerrors.CategoryExternal).WithTextCode(WebhookErrorDeliveryFailed)
	mapped := webhookErrorMapper(original)
	if mapped != original {
		t.Fatalf("expected rich error to be returned as-is")
	}
	if mapped.TextCode != WebhookErrorDeliveryFailed {
		t.Fatalf("expected text code to be preserved, got %q", mapped.TextCode)
	}
	if webhookHTTPStatus(goerrors.CategoryExternal) != http.StatusBadGateway {
		t.Fatalf("expected external category to map to 502")
	}
}

func TestMapError_NilPassthrough(t *testing.T) {
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestLeaseConflictError_SurvivesWrapping(t *testing.T) {
	err := NewLeaseConflictError(DeliveryLease{JobID: "job-1", Claim: 3})
	if err.Category != goerrors.CategoryConflict || err.Metadata["claim"] != 3 {
		t.Fatalf("unexpected lease conflict error %+v", err)
	}
	if !IsLeaseConflict(fmt.Errorf("complete: %w", err)) {
		t.Fatalf("expected wrapped lease conflict to be detected")
	}
	if IsLeaseConflict(nil) || IsLeaseConflict(stderrors.New("delivery job lease lost")) {
		t.Fatalf("expected only rich lease conflict errors to match")
	}
	if IsLeaseConflict(notFoundError("delivery job", "job-1")) {
		t.Fatalf("expected not found to be distinct from a lease conflict")
	}
}
