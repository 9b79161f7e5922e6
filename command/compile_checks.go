package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/core"
)

var (
	_ gocmd.Commander[CreateWebhookMessage]   = (*CreateWebhookCommand)(nil)
	_ gocmd.Commander[UpdateWebhookMessage]   = (*UpdateWebhookCommand)(nil)
	_ gocmd.Commander[DeleteWebhookMessage]   = (*DeleteWebhookCommand)(nil)
	_ gocmd.Commander[TriggerMessage]         = (*TriggerCommand)(nil)
	_ gocmd.Commander[PingMessage]            = (*PingCommand)(nil)
	_ gocmd.Commander[RetryDeliveryMessage]   = (*RetryDeliveryCommand)(nil)
	_ gocmd.Commander[PruneDeliveriesMessage] = (*PruneDeliveriesCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
