package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/core"
)

var (
	_ gocmd.Querier[GetWebhookMessage, core.Webhook]             = (*GetWebhookQuery)(nil)
	_ gocmd.Querier[FindWebhooksByTargetMessage, []core.Webhook] = (*FindWebhooksByTargetQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.DeliveryJob]        = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, core.DeliveryPage]    = (*ListDeliveriesQuery)(nil)

	_ WebhookReader  = (*core.Service)(nil)
	_ DeliveryReader = (*core.Service)(nil)
)
