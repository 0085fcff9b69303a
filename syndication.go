package syndication

import "github.com/goliatone/go-syndication/core"

type Config = core.Config

type Option = core.Option

type Pipeline = core.Pipeline

type Site = core.Site
type Distribution = core.Distribution
type WebhookEvent = core.WebhookEvent
type ComplianceAlert = core.ComplianceAlert

type RevokeRequest = core.RevokeRequest
type RevocationResult = core.RevocationResult
type VerifyRequest = core.VerifyRequest
type VerificationResult = core.VerificationResult
type RetryRequest = core.RetryRequest
type RetryResult = core.RetryResult
type NotifyRequest = core.NotifyRequest
type NotifyResult = core.NotifyResult

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithDistributionStore = core.WithDistributionStore
	WithSiteRegistry      = core.WithSiteRegistry
	WithWebhookEventStore = core.WithWebhookEventStore
	WithPayloadSigner     = core.WithPayloadSigner
	WithWebhookDeliverer  = core.WithWebhookDeliverer
	WithRemovalProber     = core.WithRemovalProber
	WithJobScheduler      = core.WithJobScheduler
	WithAlertPublisher    = core.WithAlertPublisher
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	return core.NewPipeline(cfg, opts...)
}
