package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-hooks/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const (
	webhookCacheKeyPrefix       = "go-hooks::webhook::v1"
	webhookTargetCacheKeyPrefix = "go-hooks::webhook_target::v1"
)

// CachedWebhookStore caches webhook reads on the fan-out and delivery paths.
// Writes go to the base store first and then drop the affected keys. Inside a
// TxRunner transaction the keys are dropped again after commit, since a
// concurrent reader may refill them from the pre-commit state.
type CachedWebhookStore struct {
	base  core.WebhookStore
	cache repositorycache.CacheService
}

func NewCachedWebhookStore(base core.WebhookStore, cacheService repositorycache.CacheService) (*CachedWebhookStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base webhook store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: webhook cache service is required")
	}
	return &CachedWebhookStore{base: base, cache: cacheService}, nil
}

// WebhookCacheKey returns go-hooks::webhook::v1::<id>.
func WebhookCacheKey(id string) string {
	return webhookCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(id))
}

// WebhookTargetCacheKey returns go-hooks::webhook_target::v1::<kind>::<id>.
func WebhookTargetCacheKey(target core.TargetRef) string {
	return strings.Join([]string{
		webhookTargetCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(string(target.Kind))),
		url.PathEscape(strings.TrimSpace(target.ID)),
	}, "::")
}

func (s *CachedWebhookStore) Create(ctx context.Context, webhook core.Webhook) (core.Webhook, error) {
	if err := s.ready(); err != nil {
		return core.Webhook{}, err
	}
	created, err := s.base.Create(ctx, webhook)
	if err != nil {
		return core.Webhook{}, err
	}
	if err := s.drop(ctx, WebhookTargetCacheKey(created.Target)); err != nil {
		return core.Webhook{}, err
	}
	return created, nil
}

// Get bypasses the cache inside a caller transaction so uncommitted rows are
// never cached.
func (s *CachedWebhookStore) Get(ctx context.Context, id string) (core.Webhook, error) {
	if err := s.ready(); err != nil {
		return core.Webhook{}, err
	}
	if _, ok := TxFromContext(ctx); ok {
		return s.base.Get(ctx, id)
	}
	webhook, err := repositorycache.GetOrFetch(ctx, s.cache, WebhookCacheKey(id), func(ctx context.Context) (core.Webhook, error) {
		return s.base.Get(ctx, id)
	})
	if err != nil {
		return core.Webhook{}, err
	}
	return cloneWebhook(webhook), nil
}

func (s *CachedWebhookStore) FindByTarget(ctx context.Context, target core.TargetRef) ([]core.Webhook, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, ok := TxFromContext(ctx); ok {
		return s.base.FindByTarget(ctx, target)
	}
	webhooks, err := repositorycache.GetOrFetch(ctx, s.cache, WebhookTargetCacheKey(target), func(ctx context.Context) ([]core.Webhook, error) {
		return s.base.FindByTarget(ctx, target)
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.Webhook, 0, len(webhooks))
	for _, webhook := range webhooks {
		out = append(out, cloneWebhook(webhook))
	}
	return out, nil
}

func (s *CachedWebhookStore) Update(ctx context.Context, webhook core.Webhook) (core.Webhook, error) {
	if err := s.ready(); err != nil {
		return core.Webhook{}, err
	}
	updated, err := s.base.Update(ctx, webhook)
	if err != nil {
		return core.Webhook{}, err
	}
	if err := s.invalidate(ctx, updated); err != nil {
		return core.Webhook{}, err
	}
	return updated, nil
}

func (s *CachedWebhookStore) Delete(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	existing, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.Delete(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, existing)
}

func (s *CachedWebhookStore) invalidate(ctx context.Context, webhook core.Webhook) error {
	return s.drop(ctx, WebhookCacheKey(webhook.ID), WebhookTargetCacheKey(webhook.Target))
}

func (s *CachedWebhookStore) drop(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	if _, ok := TxFromContext(ctx); ok {
		AfterCommit(ctx, func(ctx context.Context) {
			// The TTL bounds staleness if this second pass fails.
			for _, key := range keys {
				_ = s.cache.Delete(ctx, key)
			}
		})
	}
	return nil
}

func (s *CachedWebhookStore) ready() error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	return nil
}

func cloneWebhook(webhook core.Webhook) core.Webhook {
	cloned := webhook
	cloned.Secret = cloneString(webhook.Secret)
	cloned.GitRefPattern = cloneString(webhook.GitRefPattern)
	cloned.EventTypes = append([]string(nil), webhook.EventTypes...)
	return cloned
}
