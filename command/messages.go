package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
)

const (
	TypeCreateWebhook   = "hooks.command.webhook.create"
	TypeUpdateWebhook   = "hooks.command.webhook.update"
	TypeDeleteWebhook   = "hooks.command.webhook.delete"
	TypeTrigger         = "hooks.command.trigger"
	TypePing            = "hooks.command.webhook.ping"
	TypeRetryDelivery   = "hooks.command.delivery.retry"
	TypePruneDeliveries = "hooks.command.delivery.prune"
)

type CreateWebhookMessage struct {
	Input core.CreateWebhookInput
}

func (CreateWebhookMessage) Type() string { return TypeCreateWebhook }

func (m CreateWebhookMessage) Validate() error {
	if err := validateTarget(m.Input.Target); err != nil {
		return err
	}
	if strings.TrimSpace(m.Input.DeliveryURL) == "" {
		return commandValidationError("delivery_url", "delivery url is required")
	}
	if strings.TrimSpace(m.Input.RegistrantID) == "" {
		return commandValidationError("registrant_id", "registrant is required")
	}
	return nil
}

type UpdateWebhookMessage struct {
	WebhookID string
	Input     core.UpdateWebhookInput
}

func (UpdateWebhookMessage) Type() string { return TypeUpdateWebhook }

func (m UpdateWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return commandValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type DeleteWebhookMessage struct {
	WebhookID string
}

func (DeleteWebhookMessage) Type() string { return TypeDeleteWebhook }

func (m DeleteWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return commandValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type TriggerMessage struct {
	Request core.TriggerRequest
}

func (TriggerMessage) Type() string { return TypeTrigger }

func (m TriggerMessage) Validate() error {
	if err := validateTarget(m.Request.Target); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.EventType) == "" {
		return commandValidationError("event_type", "event type is required")
	}
	return nil
}

type PingMessage struct {
	WebhookID string
}

func (PingMessage) Type() string { return TypePing }

func (m PingMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return commandValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type RetryDeliveryMessage struct {
	JobID string
	Reset bool
}

func (RetryDeliveryMessage) Type() string { return TypeRetryDelivery }

func (m RetryDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return commandValidationError("job_id", "job id is required")
	}
	return nil
}

// PruneDeliveriesMessage removes finished deliveries older than OlderThan.
// Zero uses the configured retention.
type PruneDeliveriesMessage struct {
	OlderThan time.Duration
}

func (PruneDeliveriesMessage) Type() string { return TypePruneDeliveries }

func (m PruneDeliveriesMessage) Validate() error {
	if m.OlderThan < 0 {
		return commandValidationError("older_than", "retention must not be negative")
	}
	return nil
}

func validateTarget(target core.TargetRef) error {
	if strings.TrimSpace(string(target.Kind)) == "" {
		return commandValidationError("target.kind", "target kind is required")
	}
	if strings.TrimSpace(target.ID) == "" {
		return commandValidationError("target.id", "target id is required")
	}
	return nil
}
