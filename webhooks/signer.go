package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-syndication/core"
)

var ErrSigningSecretRequired = errors.New("webhooks: signing secret is required")

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrSigningSecretRequired
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// SignPayload signs the canonical bytes of payload.
func SignPayload(payload core.WebhookPayload, secret string) (string, error) {
	body, err := payload.Canonical()
	if err != nil {
		return "", err
	}
	return Sign(body, secret)
}

// Verify is the receiver side check. It accepts an optional "sha256=" prefix.
func Verify(payload []byte, signature string, secret string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return subtle.ConstantTimeCompare(decoded, mac.Sum(nil)) == 1
}

// SecretResolver picks the signing secret for a site: the per-site override,
// then the global secret, then the development fallback when allowed.
type SecretResolver struct {
	Global           string
	SiteSecrets      map[string]string
	AllowDevelopment bool
	Logger           core.Logger

	warnOnce sync.Once
}

func NewSecretResolver(cfg core.Config, logger core.Logger) *SecretResolver {
	secrets := make(map[string]string, len(cfg.Signing.SiteSecrets))
	for siteID, secret := range cfg.Signing.SiteSecrets {
		secrets[strings.TrimSpace(siteID)] = secret
	}
	return &SecretResolver{
		Global:           cfg.Signing.Secret,
		SiteSecrets:      secrets,
		AllowDevelopment: cfg.DevelopmentSecretAllowed(),
		Logger:           logger,
	}
}

func (r *SecretResolver) Resolve(siteID string) (string, error) {
	if r == nil {
		return "", ErrSigningSecretRequired
	}
	if secret := strings.TrimSpace(r.SiteSecrets[strings.TrimSpace(siteID)]); secret != "" {
		return secret, nil
	}
	if secret := strings.TrimSpace(r.Global); secret != "" {
		return secret, nil
	}
	if !r.AllowDevelopment {
		return "", fmt.Errorf("%w for site %q", ErrSigningSecretRequired, siteID)
	}
	r.warnOnce.Do(func() {
		glog.Ensure(r.Logger).Warn("signing webhooks with the development fallback secret",
			"site_id", siteID,
		)
	})
	return core.DevelopmentSigningSecret, nil
}

// Signer implements core.PayloadSigner over a SecretResolver.
type Signer struct {
	Secrets *SecretResolver
}

func NewSigner(secrets *SecretResolver) *Signer {
	return &Signer{Secrets: secrets}
}

func (s *Signer) Sign(_ context.Context, siteID string, body []byte) (string, error) {
	if s == nil {
		return "", ErrSigningSecretRequired
	}
	secret, err := s.Secrets.Resolve(siteID)
	if err != nil {
		return "", err
	}
	return Sign(body, secret)
}

var _ core.PayloadSigner = (*Signer)(nil)
