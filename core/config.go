package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultRequestTimeout     = 30 * time.Second
	DefaultSoftTimeLimit      = 45 * time.Second
	DefaultLeaseDuration      = 60 * time.Second
	DefaultDeliveryRetention  = 30 * 24 * time.Hour
	DefaultWorkerConcurrency  = 4
	DefaultWorkerBatchSize    = 20
	DefaultWorkerPollInterval = 5 * time.Second
)

type UserAgentConfig struct {
	Name    string `koanf:"name" mapstructure:"name"`
	Version string `koanf:"version" mapstructure:"version"`
}

// String renders the header value sent with every delivery.
func (c UserAgentConfig) String() string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "go-hooks"
	}
	version := strings.TrimSpace(c.Version)
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("%s-Webhooks/%s", name, version)
}

type DeliveryConfig struct {
	HTTPProxy                 string        `koanf:"http_proxy" mapstructure:"http_proxy"`
	RequestTimeout            time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	SoftTimeLimit             time.Duration `koanf:"soft_time_limit" mapstructure:"soft_time_limit"`
	LeaseDuration             time.Duration `koanf:"lease_duration" mapstructure:"lease_duration"`
	LimitedEffortHostPatterns []string      `koanf:"limited_effort_host_patterns" mapstructure:"limited_effort_host_patterns"`
	BroadcastAddresses        []string      `koanf:"broadcast_addresses" mapstructure:"broadcast_addresses"`
}

type WorkerConfig struct {
	Concurrency  int           `koanf:"concurrency" mapstructure:"concurrency"`
	BatchSize    int           `koanf:"batch_size" mapstructure:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
}

type RetentionConfig struct {
	Deliveries time.Duration `koanf:"deliveries" mapstructure:"deliveries"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	UserAgent   UserAgentConfig `koanf:"user_agent" mapstructure:"user_agent"`
	Delivery    DeliveryConfig  `koanf:"delivery" mapstructure:"delivery"`
	Worker      WorkerConfig    `koanf:"worker" mapstructure:"worker"`
	Retention   RetentionConfig `koanf:"retention" mapstructure:"retention"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "hooks",
		UserAgent: UserAgentConfig{
			Name:    "go-hooks",
			Version: "dev",
		},
		Delivery: DeliveryConfig{
			RequestTimeout:            DefaultRequestTimeout,
			SoftTimeLimit:             DefaultSoftTimeLimit,
			LeaseDuration:             DefaultLeaseDuration,
			LimitedEffortHostPatterns: []string{"*.lxd"},
		},
		Worker: WorkerConfig{
			Concurrency:  DefaultWorkerConcurrency,
			BatchSize:    DefaultWorkerBatchSize,
			PollInterval: DefaultWorkerPollInterval,
		},
		Retention: RetentionConfig{
			Deliveries: DefaultDeliveryRetention,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	d := c.Delivery
	if d.RequestTimeout <= 0 {
		return fmt.Errorf("core: delivery.request_timeout must be positive")
	}
	if d.SoftTimeLimit <= d.RequestTimeout {
		return fmt.Errorf("core: delivery.soft_time_limit must exceed delivery.request_timeout")
	}
	if d.LeaseDuration <= d.SoftTimeLimit {
		return fmt.Errorf("core: delivery.lease_duration must exceed delivery.soft_time_limit")
	}
	if c.Worker.Concurrency < 0 || c.Worker.BatchSize < 0 {
		return fmt.Errorf("core: worker settings must not be negative")
	}
	if c.Retention.Deliveries < 0 {
		return fmt.Errorf("core: retention.deliveries must not be negative")
	}
	return nil
}
