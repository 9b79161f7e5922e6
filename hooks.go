// Package hooks exposes the webhook delivery service and its command/query
// facade at the module root.
package hooks

import "github.com/goliatone/go-hooks/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Webhook = core.Webhook
type CreateWebhookInput = core.CreateWebhookInput
type UpdateWebhookInput = core.UpdateWebhookInput
type DeliveryJob = core.DeliveryJob
type DeliveryResult = core.DeliveryResult
type TriggerRequest = core.TriggerRequest
type TargetRef = core.TargetRef
type ListDeliveriesFilter = core.ListDeliveriesFilter
type DeliveryPage = core.DeliveryPage

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithWebhookStore     = core.WithWebhookStore
	WithDeliveryJobStore = core.WithDeliveryJobStore
	WithTargetResolver   = core.WithTargetResolver
	WithVisibilityPolicy = core.WithVisibilityPolicy
	WithTxRunner         = core.WithTxRunner
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
