package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type WebhookStore struct {
	db      *bun.DB
	repo    repository.Repository[*webhookRecord]
	secrets core.SecretCodec
}

type WebhookStoreOption func(*WebhookStore)

// WithSecretCodec seals webhook secrets before they are written and opens
// them after every read.
func WithSecretCodec(codec core.SecretCodec) WebhookStoreOption {
	return func(s *WebhookStore) {
		s.secrets = codec
	}
}

func NewWebhookStore(db *bun.DB, opts ...WebhookStoreOption) (*WebhookStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookRecord](db, webhookHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook repository wiring: %w", err)
		}
	}
	store := &WebhookStore{db: db, repo: repo}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *WebhookStore) Create(ctx context.Context, webhook core.Webhook) (core.Webhook, error) {
	if s == nil || s.repo == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	if webhook.Target.IsZero() {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook target is required")
	}
	if strings.TrimSpace(webhook.DeliveryURL) == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook delivery url is required")
	}
	if strings.TrimSpace(webhook.ID) == "" {
		webhook.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if webhook.DateCreated.IsZero() {
		webhook.DateCreated = now
	}
	if webhook.DateLastModified.IsZero() {
		webhook.DateLastModified = webhook.DateCreated
	}

	record, err := s.toRecord(ctx, webhook)
	if err != nil {
		return core.Webhook{}, err
	}
	if tx, ok := TxFromContext(ctx); ok {
		_, err = s.repo.CreateTx(ctx, tx, record)
	} else {
		_, err = s.repo.Create(ctx, record)
	}
	if err != nil {
		return core.Webhook{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *WebhookStore) Get(ctx context.Context, id string) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	record, err := s.find(ctx, conn(ctx, s.db), id)
	if err != nil {
		return core.Webhook{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *WebhookStore) FindByTarget(ctx context.Context, target core.TargetRef) ([]core.Webhook, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	var records []webhookRecord
	err := conn(ctx, s.db).NewSelect().
		Model(&records).
		Where("?TableAlias.target_kind = ?", strings.TrimSpace(string(target.Kind))).
		Where("?TableAlias.target_id = ?", strings.TrimSpace(target.ID)).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Webhook, 0, len(records))
	for i := range records {
		webhook, err := s.toDomain(ctx, &records[i])
		if err != nil {
			return nil, err
		}
		out = append(out, webhook)
	}
	return out, nil
}

func (s *WebhookStore) Update(ctx context.Context, webhook core.Webhook) (core.Webhook, error) {
	if s == nil || s.repo == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	id := strings.TrimSpace(webhook.ID)
	if id == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook id is required")
	}
	db := conn(ctx, s.db)
	current, err := s.find(ctx, db, id)
	if err != nil {
		return core.Webhook{}, err
	}
	if webhook.DateLastModified.IsZero() {
		webhook.DateLastModified = time.Now().UTC()
	}
	webhook.DateCreated = current.CreatedAt
	webhook.Target = core.TargetRef{Kind: core.TargetKind(current.TargetKind), ID: current.TargetID}

	record, err := s.toRecord(ctx, webhook)
	if err != nil {
		return core.Webhook{}, err
	}
	// Every column is written so false and NULL values are not skipped.
	if _, err = db.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
		return core.Webhook{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: webhook id is required")
	}
	res, err := conn(ctx, s.db).NewDelete().
		Model((*webhookRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return webhookNotFound(id)
	}
	return nil
}

func (s *WebhookStore) find(ctx context.Context, db bun.IDB, id string) (*webhookRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: webhook id is required")
	}
	record := &webhookRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webhookNotFound(id)
		}
		return nil, err
	}
	return record, nil
}

func (s *WebhookStore) toRecord(ctx context.Context, webhook core.Webhook) (*webhookRecord, error) {
	secret, err := s.sealSecret(ctx, webhook.Secret)
	if err != nil {
		return nil, err
	}
	eventTypes := append([]string(nil), webhook.EventTypes...)
	if eventTypes == nil {
		eventTypes = []string{}
	}
	return &webhookRecord{
		ID:            strings.TrimSpace(webhook.ID),
		TargetKind:    strings.TrimSpace(string(webhook.Target.Kind)),
		TargetID:      strings.TrimSpace(webhook.Target.ID),
		RegistrantID:  strings.TrimSpace(webhook.RegistrantID),
		DeliveryURL:   strings.TrimSpace(webhook.DeliveryURL),
		Active:        webhook.Active,
		Secret:        secret,
		EventTypes:    eventTypes,
		GitRefPattern: cloneString(webhook.GitRefPattern),
		CreatedAt:     webhook.DateCreated.UTC(),
		UpdatedAt:     webhook.DateLastModified.UTC(),
	}, nil
}

func (s *WebhookStore) toDomain(ctx context.Context, record *webhookRecord) (core.Webhook, error) {
	secret, err := s.openSecret(ctx, record.Secret)
	if err != nil {
		return core.Webhook{}, err
	}
	return core.Webhook{
		ID:               record.ID,
		Target:           core.TargetRef{Kind: core.TargetKind(record.TargetKind), ID: record.TargetID},
		RegistrantID:     record.RegistrantID,
		DeliveryURL:      record.DeliveryURL,
		Active:           record.Active,
		Secret:           secret,
		EventTypes:       append([]string(nil), record.EventTypes...),
		GitRefPattern:    cloneString(record.GitRefPattern),
		DateCreated:      record.CreatedAt.UTC(),
		DateLastModified: record.UpdatedAt.UTC(),
	}, nil
}

func (s *WebhookStore) sealSecret(ctx context.Context, secret *string) (*string, error) {
	if secret == nil || *secret == "" {
		return nil, nil
	}
	if s.secrets == nil {
		return cloneString(secret), nil
	}
	sealed, err := s.secrets.Seal(ctx, *secret)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: seal webhook secret: %w", err)
	}
	return &sealed, nil
}

func (s *WebhookStore) openSecret(ctx context.Context, secret *string) (*string, error) {
	if secret == nil || *secret == "" {
		return nil, nil
	}
	if s.secrets == nil {
		return cloneString(secret), nil
	}
	opened, err := s.secrets.Open(ctx, *secret)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open webhook secret: %w", err)
	}
	return &opened, nil
}

func webhookNotFound(id string) error {
	return core.NewWebhookError("webhook not found", goerrors.CategoryNotFound, core.WebhookErrorNotFound).
		WithMetadata(map[string]any{"webhook_id": id})
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
