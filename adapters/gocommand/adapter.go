package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	hookcommand "github.com/goliatone/go-hooks/command"
	hookquery "github.com/goliatone/go-hooks/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract checks that msg has a non-empty Type() and passes
// its own Validate(), if any.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// WebhookService is the surface the webhook commands and queries run on.
// *core.Service satisfies it.
type WebhookService interface {
	hookcommand.MutatingService
	hookquery.WebhookReader
	hookquery.DeliveryReader
}

type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterWebhookHandlers registers and subscribes every webhook command and
// query against svc. On error, subscriptions made so far are released.
func RegisterWebhookHandlers(
	adapter *RegistryAdapter,
	svc WebhookService,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if svc == nil {
		return nil, fmt.Errorf("gocommand: webhook service is required")
	}
	var (
		subs Subscriptions
		err  error
	)
	add := func(sub commanddispatcher.Subscription, regErr error) {
		if err != nil {
			if sub != nil {
				sub.Unsubscribe()
			}
			return
		}
		if regErr != nil {
			err = regErr
			return
		}
		subs = append(subs, sub)
	}

	add(RegisterAndSubscribe(adapter, hookcommand.NewCreateWebhookCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, hookcommand.NewUpdateWebhookCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, hookcommand.NewDeleteWebhookCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, hookcommand.NewTriggerCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, hookcommand.NewPingCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, hookcommand.NewRetryDeliveryCommand(svc), runnerOpts...))
	add(RegisterAndSubscribe(adapter, hookcommand.NewPruneDeliveriesCommand(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, hookquery.NewGetWebhookQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, hookquery.NewFindWebhooksByTargetQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, hookquery.NewGetDeliveryQuery(svc), runnerOpts...))
	add(RegisterAndSubscribeQuery(adapter, hookquery.NewListDeliveriesQuery(svc), runnerOpts...))

	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	return subs, nil
}
