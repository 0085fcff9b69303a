package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	EnvironmentDevelopment = "development"

	// DevelopmentSigningSecret is only ever used when no secret is configured
	// and the environment permits it. Receivers must never trust it.
	DevelopmentSigningSecret = "dev-only-insecure-syndication-secret"

	DefaultSignatureHeader = "X-Syndication-Signature"
	DefaultEventHeader     = "X-Syndication-Event"
	DefaultDeliveryHeader  = "X-Syndication-Delivery"
	DefaultUserAgent       = "go-syndication-webhook/1.0"
)

type SigningConfig struct {
	Secret                 string            `koanf:"secret" mapstructure:"secret" yaml:"secret"`
	SiteSecrets            map[string]string `koanf:"site_secrets" mapstructure:"site_secrets" yaml:"site_secrets"`
	AllowDevelopmentSecret bool              `koanf:"allow_development_secret" mapstructure:"allow_development_secret" yaml:"allow_development_secret"`
}

type DeliveryConfig struct {
	Timeout           time.Duration `koanf:"timeout" mapstructure:"timeout" yaml:"timeout"`
	ResponseBodyLimit int           `koanf:"response_body_limit" mapstructure:"response_body_limit" yaml:"response_body_limit"`
	UserAgent         string        `koanf:"user_agent" mapstructure:"user_agent" yaml:"user_agent"`
	SignatureHeader   string        `koanf:"signature_header" mapstructure:"signature_header" yaml:"signature_header"`
	EventHeader       string        `koanf:"event_header" mapstructure:"event_header" yaml:"event_header"`
	DeliveryHeader    string        `koanf:"delivery_header" mapstructure:"delivery_header" yaml:"delivery_header"`
}

type VerificationConfig struct {
	Delay             time.Duration `koanf:"delay" mapstructure:"delay" yaml:"delay"`
	ProbeTimeout      time.Duration `koanf:"probe_timeout" mapstructure:"probe_timeout" yaml:"probe_timeout"`
	Deadline          time.Duration `koanf:"deadline" mapstructure:"deadline" yaml:"deadline"`
	RecheckAtDeadline bool          `koanf:"recheck_at_deadline" mapstructure:"recheck_at_deadline" yaml:"recheck_at_deadline"`
}

type RetryConfig struct {
	MaxRetries int           `koanf:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`
	BatchSize  int           `koanf:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`
	BaseDelay  time.Duration `koanf:"base_delay" mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay   time.Duration `koanf:"max_delay" mapstructure:"max_delay" yaml:"max_delay"`
	ClaimLease time.Duration `koanf:"claim_lease" mapstructure:"claim_lease" yaml:"claim_lease"`
	Schedule   string        `koanf:"schedule" mapstructure:"schedule" yaml:"schedule"`
}

type JobsConfig struct {
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxAttempts  int           `koanf:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`
	MaxDelay     time.Duration `koanf:"max_delay" mapstructure:"max_delay" yaml:"max_delay"`
	Lease        time.Duration `koanf:"lease" mapstructure:"lease" yaml:"lease"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	Environment  string             `koanf:"environment" mapstructure:"environment" yaml:"environment"`
	Signing      SigningConfig      `koanf:"signing" mapstructure:"signing" yaml:"signing"`
	Delivery     DeliveryConfig     `koanf:"delivery" mapstructure:"delivery" yaml:"delivery"`
	Verification VerificationConfig `koanf:"verification" mapstructure:"verification" yaml:"verification"`
	Retry        RetryConfig        `koanf:"retry" mapstructure:"retry" yaml:"retry"`
	Jobs         JobsConfig         `koanf:"jobs" mapstructure:"jobs" yaml:"jobs"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "syndication",
		Environment: EnvironmentDevelopment,
		Delivery: DeliveryConfig{
			Timeout:           10 * time.Second,
			ResponseBodyLimit: 1000,
			UserAgent:         DefaultUserAgent,
			SignatureHeader:   DefaultSignatureHeader,
			EventHeader:       DefaultEventHeader,
			DeliveryHeader:    DefaultDeliveryHeader,
		},
		Verification: VerificationConfig{
			Delay:             time.Minute,
			ProbeTimeout:      5 * time.Second,
			Deadline:          5 * time.Minute,
			RecheckAtDeadline: true,
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			BatchSize:  50,
			BaseDelay:  time.Minute,
			MaxDelay:   time.Hour,
			ClaimLease: 2 * time.Minute,
			Schedule:   "*/5 * * * *",
		},
		Jobs: JobsConfig{
			PollInterval: time.Second,
			MaxAttempts:  5,
			MaxDelay:     10 * time.Minute,
			Lease:        5 * time.Minute,
		},
	}
}

func (c Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentDevelopment)
}

// DevelopmentSecretAllowed reports whether the marked fallback secret may be
// used when no secret is configured.
func (c Config) DevelopmentSecretAllowed() bool {
	return c.IsDevelopment() || c.Signing.AllowDevelopmentSecret
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Signing.Secret) == "" && !c.DevelopmentSecretAllowed() {
		return fmt.Errorf("core: signing.secret is required in environment %q", c.Environment)
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("core: delivery.timeout must be positive")
	}
	if c.Delivery.ResponseBodyLimit < 0 {
		return fmt.Errorf("core: delivery.response_body_limit must not be negative")
	}
	if c.Verification.ProbeTimeout <= 0 {
		return fmt.Errorf("core: verification.probe_timeout must be positive")
	}
	if c.Verification.Delay < 0 {
		return fmt.Errorf("core: verification.delay must not be negative")
	}
	if c.Verification.Deadline <= 0 {
		return fmt.Errorf("core: verification.deadline must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("core: retry.max_retries must not be negative")
	}
	if c.Retry.BatchSize <= 0 {
		return fmt.Errorf("core: retry.batch_size must be positive")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("core: retry delays invalid: base %s max %s", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	if c.Jobs.MaxAttempts <= 0 {
		return fmt.Errorf("core: jobs.max_attempts must be positive")
	}
	return nil
}
