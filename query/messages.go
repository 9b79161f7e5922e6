package query

import (
	"strings"

	"github.com/goliatone/go-hooks/core"
)

const (
	TypeGetWebhook           = "hooks.query.webhook.get"
	TypeFindWebhooksByTarget = "hooks.query.webhook.find_by_target"
	TypeGetDelivery          = "hooks.query.delivery.get"
	TypeListDeliveries       = "hooks.query.delivery.list"
)

type GetWebhookMessage struct {
	WebhookID string
}

func (GetWebhookMessage) Type() string { return TypeGetWebhook }

func (m GetWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return queryValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type FindWebhooksByTargetMessage struct {
	Target core.TargetRef
}

func (FindWebhooksByTargetMessage) Type() string { return TypeFindWebhooksByTarget }

func (m FindWebhooksByTargetMessage) Validate() error {
	if strings.TrimSpace(string(m.Target.Kind)) == "" {
		return queryValidationError("target.kind", "target kind is required")
	}
	if strings.TrimSpace(m.Target.ID) == "" {
		return queryValidationError("target.id", "target id is required")
	}
	return nil
}

type GetDeliveryMessage struct {
	JobID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return queryValidationError("job_id", "job id is required")
	}
	return nil
}

type ListDeliveriesMessage struct {
	Filter core.ListDeliveriesFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if strings.TrimSpace(m.Filter.WebhookID) == "" {
		return queryValidationError("webhook_id", "webhook id is required")
	}
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	return nil
}
