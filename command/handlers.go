package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/core"
)

type MutatingService interface {
	CreateWebhook(ctx context.Context, in core.CreateWebhookInput) (core.Webhook, error)
	UpdateWebhook(ctx context.Context, id string, in core.UpdateWebhookInput) (core.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
	Trigger(ctx context.Context, req core.TriggerRequest) (int, error)
	Ping(ctx context.Context, webhookID string) (core.DeliveryJob, error)
	RetryDelivery(ctx context.Context, jobID string, reset bool) (core.DeliveryJob, error)
	PruneDeliveries(ctx context.Context, olderThan time.Duration) (int, error)
}

type CreateWebhookCommand struct {
	service MutatingService
}

func NewCreateWebhookCommand(service MutatingService) *CreateWebhookCommand {
	return &CreateWebhookCommand{service: service}
}

func (c *CreateWebhookCommand) Execute(ctx context.Context, msg CreateWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.CreateWebhook(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateWebhookCommand struct {
	service MutatingService
}

func NewUpdateWebhookCommand(service MutatingService) *UpdateWebhookCommand {
	return &UpdateWebhookCommand{service: service}
}

func (c *UpdateWebhookCommand) Execute(ctx context.Context, msg UpdateWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.UpdateWebhook(ctx, msg.WebhookID, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteWebhookCommand struct {
	service MutatingService
}

func NewDeleteWebhookCommand(service MutatingService) *DeleteWebhookCommand {
	return &DeleteWebhookCommand{service: service}
}

func (c *DeleteWebhookCommand) Execute(ctx context.Context, msg DeleteWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	return c.service.DeleteWebhook(ctx, msg.WebhookID)
}

// TriggerCommand fans an event out to matching webhooks. The number of jobs
// created is stored as the command result.
type TriggerCommand struct {
	service MutatingService
}

func NewTriggerCommand(service MutatingService) *TriggerCommand {
	return &TriggerCommand{service: service}
}

func (c *TriggerCommand) Execute(ctx context.Context, msg TriggerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: trigger service is required")
	}
	created, err := c.service.Trigger(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, created)
	return nil
}

type PingCommand struct {
	service MutatingService
}

func NewPingCommand(service MutatingService) *PingCommand {
	return &PingCommand{service: service}
}

func (c *PingCommand) Execute(ctx context.Context, msg PingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ping service is required")
	}
	out, err := c.service.Ping(ctx, msg.WebhookID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryDeliveryCommand struct {
	service MutatingService
}

func NewRetryDeliveryCommand(service MutatingService) *RetryDeliveryCommand {
	return &RetryDeliveryCommand{service: service}
}

func (c *RetryDeliveryCommand) Execute(ctx context.Context, msg RetryDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.RetryDelivery(ctx, msg.JobID, msg.Reset)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PruneDeliveriesCommand struct {
	service MutatingService
}

func NewPruneDeliveriesCommand(service MutatingService) *PruneDeliveriesCommand {
	return &PruneDeliveriesCommand{service: service}
}

func (c *PruneDeliveriesCommand) Execute(ctx context.Context, msg PruneDeliveriesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	deleted, err := c.service.PruneDeliveries(ctx, msg.OlderThan)
	if err != nil {
		return err
	}
	storeResult(ctx, deleted)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
