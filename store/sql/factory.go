package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-hooks/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	secrets core.SecretCodec
	cache   repositorycache.CacheService

	webhookStore     core.WebhookStore
	deliveryJobStore *DeliveryJobStore
	txRunner         *TxRunner
}

type FactoryOption func(*RepositoryFactory)

func WithFactorySecretCodec(codec core.SecretCodec) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = codec
	}
}

// WithWebhookCache fronts the webhook store with a read cache.
func WithWebhookCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.webhookStore != nil && f.deliveryJobStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) WebhookStore() core.WebhookStore {
	if f == nil {
		return nil
	}
	return f.webhookStore
}

func (f *RepositoryFactory) DeliveryJobStore() *DeliveryJobStore {
	if f == nil {
		return nil
	}
	return f.deliveryJobStore
}

func (f *RepositoryFactory) TxRunner() *TxRunner {
	if f == nil {
		return nil
	}
	return f.txRunner
}

// ServiceOptions wires the factory's stores into core.NewService.
func (f *RepositoryFactory) ServiceOptions() []core.Option {
	if f == nil {
		return nil
	}
	return []core.Option{
		core.WithWebhookStore(f.webhookStore),
		core.WithDeliveryJobStore(f.deliveryJobStore),
		core.WithTxRunner(f.txRunner),
	}
}

func (f *RepositoryFactory) initStores() error {
	var webhookOpts []WebhookStoreOption
	if f.secrets != nil {
		webhookOpts = append(webhookOpts, WithSecretCodec(f.secrets))
	}
	webhookStore, err := NewWebhookStore(f.db, webhookOpts...)
	if err != nil {
		return err
	}
	f.webhookStore = webhookStore
	if f.cache != nil {
		cached, err := NewCachedWebhookStore(webhookStore, f.cache)
		if err != nil {
			return err
		}
		f.webhookStore = cached
	}

	deliveryJobStore, err := NewDeliveryJobStore(f.db)
	if err != nil {
		return err
	}
	f.deliveryJobStore = deliveryJobStore

	txRunner, err := NewTxRunner(f.db)
	if err != nil {
		return err
	}
	f.txRunner = txRunner
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
