package sqlstore

import "github.com/goliatone/go-hooks/core"

var (
	_ core.WebhookStore     = (*WebhookStore)(nil)
	_ core.WebhookStore     = (*CachedWebhookStore)(nil)
	_ core.DeliveryJobStore = (*DeliveryJobStore)(nil)
	_ core.TxRunner         = (*TxRunner)(nil)
)
