package command

import (
	"context"
	"net/http"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
)

type stubMutatingService struct {
	created   core.CreateWebhookInput
	updatedID string
	deleted   string
	trigger   core.TriggerRequest
	pinged    string
	retried   string
	reset     bool
	pruned    time.Duration
	err       error
}

func (s *stubMutatingService) CreateWebhook(_ context.Context, in core.CreateWebhookInput) (core.Webhook, error) {
	s.created = in
	return core.Webhook{ID: "hook-1", Target: in.Target, DeliveryURL: in.DeliveryURL}, s.err
}

func (s *stubMutatingService) UpdateWebhook(_ context.Context, id string, _ core.UpdateWebhookInput) (core.Webhook, error) {
	s.updatedID = id
	return core.Webhook{ID: id}, s.err
}

func (s *stubMutatingService) DeleteWebhook(_ context.Context, id string) error {
	s.deleted = id
	return s.err
}

func (s *stubMutatingService) Trigger(_ context.Context, req core.TriggerRequest) (int, error) {
	s.trigger = req
	return 2, s.err
}

func (s *stubMutatingService) Ping(_ context.Context, webhookID string) (core.DeliveryJob, error) {
	s.pinged = webhookID
	return core.DeliveryJob{ID: "job-ping", WebhookID: webhookID, EventType: core.EventTypePing}, s.err
}

func (s *stubMutatingService) RetryDelivery(_ context.Context, jobID string, reset bool) (core.DeliveryJob, error) {
	s.retried = jobID
	s.reset = reset
	return core.DeliveryJob{ID: jobID, Status: core.DeliveryJobStatusPending}, s.err
}

func (s *stubMutatingService) PruneDeliveries(_ context.Context, olderThan time.Duration) (int, error) {
	s.pruned = olderThan
	return 7, s.err
}

func TestCreateWebhookCommand_StoresResult(t *testing.T) {
	svc := &stubMutatingService{}
	collector := gocmd.NewResult[core.Webhook]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	msg := CreateWebhookMessage{Input: core.CreateWebhookInput{
		Target:       core.TargetRef{Kind: core.TargetKindProject, ID: "launchpad"},
		RegistrantID: "person-1",
		DeliveryURL:  "http://example.com/hook",
		Active:       true,
	}}
	if err := msg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := NewCreateWebhookCommand(svc).Execute(ctx, msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out, ok := collector.Load()
	if !ok || out.ID != "hook-1" {
		t.Fatalf("expected stored webhook, got %+v", out)
	}
	if svc.created.DeliveryURL != "http://example.com/hook" {
		t.Fatalf("expected input to reach service")
	}
}

func TestTriggerCommand_StoresCreatedCount(t *testing.T) {
	svc := &stubMutatingService{}
	collector := gocmd.NewResult[int]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	msg := TriggerMessage{Request: core.TriggerRequest{
		Target:    core.TargetRef{Kind: core.TargetKindProject, ID: "launchpad"},
		EventType: "bug:0.1",
		Payload:   map[string]any{"bug": "/bugs/1"},
	}}
	if err := NewTriggerCommand(svc).Execute(ctx, msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	created, ok := collector.Load()
	if !ok || created != 2 {
		t.Fatalf("expected 2 created jobs, got %d", created)
	}
	if svc.trigger.EventType != "bug:0.1" {
		t.Fatalf("expected request to reach service")
	}
}

func TestDeliveryCommands_ForwardArguments(t *testing.T) {
	svc := &stubMutatingService{}
	ctx := context.Background()

	if err := NewPingCommand(svc).Execute(ctx, PingMessage{WebhookID: "hook-1"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := NewRetryDeliveryCommand(svc).Execute(ctx, RetryDeliveryMessage{JobID: "job-1", Reset: true}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := NewPruneDeliveriesCommand(svc).Execute(ctx, PruneDeliveriesMessage{OlderThan: time.Hour}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if err := NewDeleteWebhookCommand(svc).Execute(ctx, DeleteWebhookMessage{WebhookID: "hook-2"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := NewUpdateWebhookCommand(svc).Execute(ctx, UpdateWebhookMessage{WebhookID: "hook-3"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if svc.pinged != "hook-1" || svc.retried != "job-1" || !svc.reset {
		t.Fatalf("unexpected ping/retry forwarding %+v", svc)
	}
	if svc.pruned != time.Hour || svc.deleted != "hook-2" || svc.updatedID != "hook-3" {
		t.Fatalf("unexpected forwarding %+v", svc)
	}
}

func TestCommand_PropagatesServiceError(t *testing.T) {
	failure := core.NewWebhookError("webhook not found", goerrors.CategoryNotFound, core.WebhookErrorNotFound)
	svc := &stubMutatingService{err: failure}
	collector := gocmd.NewResult[core.DeliveryJob]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := NewPingCommand(svc).Execute(ctx, PingMessage{WebhookID: "missing"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.WebhookErrorNotFound {
		t.Fatalf("expected not found envelope, got %v", err)
	}
	if _, ok := collector.Load(); ok {
		t.Fatalf("expected no result on failure")
	}
}

func TestTriggerMessage_ValidateReturnsRichError(t *testing.T) {
	err := (TriggerMessage{Request: core.TriggerRequest{
		Target: core.TargetRef{Kind: core.TargetKindProject, ID: "launchpad"},
	}}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.WebhookErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.WebhookErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "event_type" {
		t.Fatalf("expected event_type validation field, got %+v", validation)
	}
}

func TestMessages_Validate(t *testing.T) {
	if err := (CreateWebhookMessage{}).Validate(); err == nil {
		t.Fatalf("expected missing target to fail")
	}
	if err := (CreateWebhookMessage{Input: core.CreateWebhookInput{
		Target:       core.TargetRef{Kind: core.TargetKindProject, ID: "launchpad"},
		RegistrantID: "person-1",
	}}).Validate(); err == nil {
		t.Fatalf("expected missing delivery url to fail")
	}
	if err := (RetryDeliveryMessage{}).Validate(); err == nil {
		t.Fatalf("expected missing job id to fail")
	}
	if err := (PruneDeliveriesMessage{OlderThan: -time.Second}).Validate(); err == nil {
		t.Fatalf("expected negative retention to fail")
	}
	if err := (PruneDeliveriesMessage{}).Validate(); err != nil {
		t.Fatalf("expected zero retention to use the default, got %v", err)
	}
}

func TestCreateWebhookCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CreateWebhookCommand
	err := cmd.Execute(context.Background(), CreateWebhookMessage{})
	if err == nil {
		t.Fatalf("expected dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.WebhookErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.WebhookErrorInternal, rich.TextCode)
	}
}
