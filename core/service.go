package core

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	webhookStore    WebhookStore
	jobStore        DeliveryJobStore
	targets         TargetResolver
	visibility      VisibilityPolicy
	txRunner        TxRunner
	now             func() time.Time
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorFactory     ErrorFactory
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	WebhookStore     WebhookStore
	DeliveryJobStore DeliveryJobStore
	TargetResolver   TargetResolver
	VisibilityPolicy VisibilityPolicy
	TxRunner         TxRunner
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("hooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("hooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.targets == nil {
		builder.targets = NewTargetRegistry()
	}
	if builder.visibility == nil {
		builder.visibility = AllowAllVisibility{}
	}
	if builder.txRunner == nil {
		builder.txRunner = inlineTxRunner{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		webhookStore:    builder.webhookStore,
		jobStore:        builder.jobStore,
		targets:         builder.targets,
		visibility:      builder.visibility,
		txRunner:        builder.txRunner,
		now:             builder.clock,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorFactory:     s.errorFactory,
		ErrorMapper:      s.errorMapper,
		ConfigProvider:   s.configProvider,
		OptionsResolver:  s.optionsResolver,
		WebhookStore:     s.webhookStore,
		DeliveryJobStore: s.jobStore,
		TargetResolver:   s.targets,
		VisibilityPolicy: s.visibility,
		TxRunner:         s.txRunner,
	}
}

func (s *Service) CreateWebhook(ctx context.Context, in CreateWebhookInput) (webhook Webhook, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"target_kind": string(in.Target.Kind),
		"target_id":   in.Target.ID,
	}
	defer func() {
		if err == nil {
			fields["webhook_id"] = webhook.ID
		}
		s.observeOperation(ctx, startedAt, "create_webhook", err, fields)
	}()

	if err := s.requireWebhookStore(); err != nil {
		return Webhook{}, err
	}
	target := in.Target.normalized()
	if !target.Kind.Valid() {
		return Webhook{}, badInputError("target.kind", fmt.Sprintf("target kind %q is not supported", target.Kind))
	}
	if target.ID == "" {
		return Webhook{}, badInputError("target.id", "target id is required")
	}
	registrant := strings.TrimSpace(in.RegistrantID)
	if registrant == "" {
		return Webhook{}, badInputError("registrant_id", "registrant is required")
	}
	handle, err := s.targets.Resolve(ctx, target)
	if err != nil {
		return Webhook{}, s.mapError(err)
	}
	deliveryURL, err := validateDeliveryURL(in.DeliveryURL)
	if err != nil {
		return Webhook{}, err
	}
	eventTypes, err := validateEventTypes(in.EventTypes, handle.ValidEventTypes())
	if err != nil {
		return Webhook{}, err
	}
	pattern, err := validateGitRefPattern(in.GitRefPattern, handle)
	if err != nil {
		return Webhook{}, err
	}

	now := s.now()
	created, err := s.webhookStore.Create(ctx, Webhook{
		Target:           target,
		RegistrantID:     registrant,
		DeliveryURL:      deliveryURL,
		Active:           in.Active,
		Secret:           optionalString(in.Secret),
		EventTypes:       eventTypes,
		GitRefPattern:    pattern,
		DateCreated:      now,
		DateLastModified: now,
	})
	if err != nil {
		return Webhook{}, s.mapError(err)
	}
	return created, nil
}

func (s *Service) UpdateWebhook(ctx context.Context, id string, in UpdateWebhookInput) (webhook Webhook, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"webhook_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_webhook", err, fields)
	}()

	existing, err := s.GetWebhook(ctx, id)
	if err != nil {
		return Webhook{}, err
	}
	fields["target_kind"] = string(existing.Target.Kind)

	if in.DeliveryURL != nil {
		deliveryURL, err := validateDeliveryURL(*in.DeliveryURL)
		if err != nil {
			return Webhook{}, err
		}
		existing.DeliveryURL = deliveryURL
	}
	if in.Active != nil {
		existing.Active = *in.Active
	}
	if in.Secret != nil {
		existing.Secret = optionalString(*in.Secret)
	}
	if in.EventTypes != nil || in.GitRefPattern != nil {
		handle, err := s.targets.Resolve(ctx, existing.Target)
		if err != nil {
			return Webhook{}, s.mapError(err)
		}
		if in.EventTypes != nil {
			eventTypes, err := validateEventTypes(in.EventTypes, handle.ValidEventTypes())
			if err != nil {
				return Webhook{}, err
			}
			existing.EventTypes = eventTypes
		}
		if in.GitRefPattern != nil {
			pattern, err := validateGitRefPattern(*in.GitRefPattern, handle)
			if err != nil {
				return Webhook{}, err
			}
			existing.GitRefPattern = pattern
		}
	}
	existing.DateLastModified = s.now()

	updated, err := s.webhookStore.Update(ctx, existing)
	if err != nil {
		return Webhook{}, s.mapError(err)
	}
	return updated, nil
}

// DeleteWebhook removes the webhook together with its whole delivery
// history in one transaction.
func (s *Service) DeleteWebhook(ctx context.Context, id string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"webhook_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_webhook", err, fields)
	}()

	if err := s.requireWebhookStore(); err != nil {
		return err
	}
	if err := s.requireJobStore(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return badInputError("webhook_id", "webhook id is required")
	}
	err = s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		deleted, err := s.jobStore.DeleteByWebhook(txCtx, id)
		if err != nil {
			return err
		}
		fields["deleted_jobs"] = deleted
		return s.webhookStore.Delete(txCtx, id)
	})
	return s.mapError(err)
}

func (s *Service) GetWebhook(ctx context.Context, id string) (Webhook, error) {
	if err := s.requireWebhookStore(); err != nil {
		return Webhook{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Webhook{}, badInputError("webhook_id", "webhook id is required")
	}
	webhook, err := s.webhookStore.Get(ctx, id)
	if err != nil {
		return Webhook{}, s.mapError(err)
	}
	return webhook, nil
}

func (s *Service) FindWebhooksByTarget(ctx context.Context, target TargetRef) ([]Webhook, error) {
	if err := s.requireWebhookStore(); err != nil {
		return nil, err
	}
	target = target.normalized()
	if !target.Kind.Valid() || target.ID == "" {
		return nil, badInputError("target", "valid target is required")
	}
	hooks, err := s.webhookStore.FindByTarget(ctx, target)
	if err != nil {
		return nil, s.mapError(err)
	}
	return hooks, nil
}

func (s *Service) requireWebhookStore() error {
	if s == nil || s.webhookStore == nil {
		return NewWebhookError("core: webhook store is not configured", goerrors.CategoryInternal, WebhookErrorInternal)
	}
	return nil
}

func (s *Service) requireJobStore() error {
	if s == nil || s.jobStore == nil {
		return NewWebhookError("core: delivery job store is not configured", goerrors.CategoryInternal, WebhookErrorInternal)
	}
	return nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func validateDeliveryURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", badInputError("delivery_url", "delivery url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return "", badInputError("delivery_url", "delivery url must be an absolute URL")
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return raw, nil
	default:
		return "", badInputError("delivery_url", fmt.Sprintf("delivery url scheme %q is not supported", parsed.Scheme))
	}
}

func validateEventTypes(requested []string, valid []string) ([]string, error) {
	allowed := make(map[string]struct{}, len(valid))
	for _, eventType := range valid {
		allowed[strings.TrimSpace(eventType)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, eventType := range requested {
		eventType = strings.TrimSpace(eventType)
		if eventType == "" {
			continue
		}
		if _, ok := allowed[eventType]; !ok {
			return nil, badInputError("event_types", fmt.Sprintf("event type %q is invalid for this target", eventType))
		}
		if _, dup := seen[eventType]; dup {
			continue
		}
		seen[eventType] = struct{}{}
		out = append(out, eventType)
	}
	sort.Strings(out)
	return out, nil
}

func validateGitRefPattern(pattern string, handle TargetHandle) (*string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	if handle == nil || !handle.SupportsGitRefPattern() {
		return nil, badInputError("git_ref_pattern", "git ref pattern is not supported for this target")
	}
	if !ValidGlob(pattern) {
		return nil, badInputError("git_ref_pattern", "git ref pattern is invalid")
	}
	return &pattern, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
