package query

import (
	"context"

	"github.com/goliatone/go-hooks/core"
)

type WebhookReader interface {
	GetWebhook(ctx context.Context, id string) (core.Webhook, error)
	FindWebhooksByTarget(ctx context.Context, target core.TargetRef) ([]core.Webhook, error)
}

type DeliveryReader interface {
	GetDelivery(ctx context.Context, jobID string) (core.DeliveryJob, error)
	ListDeliveries(ctx context.Context, filter core.ListDeliveriesFilter) (core.DeliveryPage, error)
}

type GetWebhookQuery struct {
	reader WebhookReader
}

func NewGetWebhookQuery(reader WebhookReader) *GetWebhookQuery {
	return &GetWebhookQuery{reader: reader}
}

func (q *GetWebhookQuery) Query(ctx context.Context, msg GetWebhookMessage) (core.Webhook, error) {
	if q == nil || q.reader == nil {
		return core.Webhook{}, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.GetWebhook(ctx, msg.WebhookID)
}

type FindWebhooksByTargetQuery struct {
	reader WebhookReader
}

func NewFindWebhooksByTargetQuery(reader WebhookReader) *FindWebhooksByTargetQuery {
	return &FindWebhooksByTargetQuery{reader: reader}
}

func (q *FindWebhooksByTargetQuery) Query(
	ctx context.Context,
	msg FindWebhooksByTargetMessage,
) ([]core.Webhook, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.FindWebhooksByTarget(ctx, msg.Target)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.DeliveryJob, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryJob{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDelivery(ctx, msg.JobID)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(
	ctx context.Context,
	msg ListDeliveriesMessage,
) (core.DeliveryPage, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryPage{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListDeliveries(ctx, msg.Filter)
}
