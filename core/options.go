package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
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
	clock           func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithWebhookStore(store WebhookStore) Option {
	return func(b *serviceBuilder) {
		b.webhookStore = store
	}
}

func WithDeliveryJobStore(store DeliveryJobStore) Option {
	return func(b *serviceBuilder) {
		b.jobStore = store
	}
}

func WithTargetResolver(resolver TargetResolver) Option {
	return func(b *serviceBuilder) {
		b.targets = resolver
	}
}

func WithVisibilityPolicy(policy VisibilityPolicy) Option {
	return func(b *serviceBuilder) {
		b.visibility = policy
	}
}

func WithTxRunner(runner TxRunner) Option {
	return func(b *serviceBuilder) {
		b.txRunner = runner
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("hooks", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		targets:         NewTargetRegistry(),
		visibility:      AllowAllVisibility{},
		txRunner:        inlineTxRunner{},
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return webhookErrorMapper(err)
}

type inlineTxRunner struct{}

func (inlineTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded < runtime. Zero values in the
// upper layers never override a lower layer.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	userAgent := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.UserAgent.Name) != "" {
		userAgent["name"] = cfg.UserAgent.Name
	}
	if includeZero || strings.TrimSpace(cfg.UserAgent.Version) != "" {
		userAgent["version"] = cfg.UserAgent.Version
	}
	if len(userAgent) > 0 {
		layer["user_agent"] = userAgent
	}

	delivery := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Delivery.HTTPProxy) != "" {
		delivery["http_proxy"] = cfg.Delivery.HTTPProxy
	}
	if includeZero || cfg.Delivery.RequestTimeout > 0 {
		delivery["request_timeout"] = cfg.Delivery.RequestTimeout
	}
	if includeZero || cfg.Delivery.SoftTimeLimit > 0 {
		delivery["soft_time_limit"] = cfg.Delivery.SoftTimeLimit
	}
	if includeZero || cfg.Delivery.LeaseDuration > 0 {
		delivery["lease_duration"] = cfg.Delivery.LeaseDuration
	}
	if includeZero || len(cfg.Delivery.LimitedEffortHostPatterns) > 0 {
		delivery["limited_effort_host_patterns"] = append([]string(nil), cfg.Delivery.LimitedEffortHostPatterns...)
	}
	if includeZero || len(cfg.Delivery.BroadcastAddresses) > 0 {
		delivery["broadcast_addresses"] = append([]string(nil), cfg.Delivery.BroadcastAddresses...)
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}

	worker := map[string]any{}
	if includeZero || cfg.Worker.Concurrency > 0 {
		worker["concurrency"] = cfg.Worker.Concurrency
	}
	if includeZero || cfg.Worker.BatchSize > 0 {
		worker["batch_size"] = cfg.Worker.BatchSize
	}
	if includeZero || cfg.Worker.PollInterval > 0 {
		worker["poll_interval"] = cfg.Worker.PollInterval
	}
	if len(worker) > 0 {
		layer["worker"] = worker
	}

	if includeZero || cfg.Retention.Deliveries > 0 {
		layer["retention"] = map[string]any{"deliveries": cfg.Retention.Deliveries}
	}
	return layer
}
