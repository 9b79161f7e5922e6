package hooks

import (
	"fmt"

	hookcommand "github.com/goliatone/go-hooks/command"
	hookquery "github.com/goliatone/go-hooks/query"
)

type CommandQueryService interface {
	hookcommand.MutatingService
	hookquery.WebhookReader
	hookquery.DeliveryReader
}

type Commands struct {
	CreateWebhook   *hookcommand.CreateWebhookCommand
	UpdateWebhook   *hookcommand.UpdateWebhookCommand
	DeleteWebhook   *hookcommand.DeleteWebhookCommand
	Trigger         *hookcommand.TriggerCommand
	Ping            *hookcommand.PingCommand
	RetryDelivery   *hookcommand.RetryDeliveryCommand
	PruneDeliveries *hookcommand.PruneDeliveriesCommand
}

type Queries struct {
	GetWebhook           *hookquery.GetWebhookQuery
	FindWebhooksByTarget *hookquery.FindWebhooksByTargetQuery
	GetDelivery          *hookquery.GetDeliveryQuery
	ListDeliveries       *hookquery.ListDeliveriesQuery
}

// Facade bundles the command and query handlers bound to one service.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	deliveryReader hookquery.DeliveryReader
}

// WithDeliveryReader serves delivery queries from a separate reader, such as
// a read replica, instead of the service.
func WithDeliveryReader(reader hookquery.DeliveryReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveryReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("hooks: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	var deliveries hookquery.DeliveryReader = service
	if cfg.deliveryReader != nil {
		deliveries = cfg.deliveryReader
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateWebhook:   hookcommand.NewCreateWebhookCommand(service),
		UpdateWebhook:   hookcommand.NewUpdateWebhookCommand(service),
		DeleteWebhook:   hookcommand.NewDeleteWebhookCommand(service),
		Trigger:         hookcommand.NewTriggerCommand(service),
		Ping:            hookcommand.NewPingCommand(service),
		RetryDelivery:   hookcommand.NewRetryDeliveryCommand(service),
		PruneDeliveries: hookcommand.NewPruneDeliveriesCommand(service),
	}
	facade.queries = Queries{
		GetWebhook:           hookquery.NewGetWebhookQuery(service),
		FindWebhooksByTarget: hookquery.NewFindWebhooksByTargetQuery(service),
		GetDelivery:          hookquery.NewGetDeliveryQuery(deliveries),
		ListDeliveries:       hookquery.NewListDeliveriesQuery(deliveries),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
