package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-syndication/core"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	Timeout           time.Duration
	ProbeTimeout      time.Duration
	ResponseBodyLimit int
	UserAgent         string
	SignatureHeader   string
	EventHeader       string
	DeliveryHeader    string
}

func ClientConfigFrom(cfg core.Config) ClientConfig {
	return ClientConfig{
		Timeout:           cfg.Delivery.Timeout,
		ProbeTimeout:      cfg.Verification.ProbeTimeout,
		ResponseBodyLimit: cfg.Delivery.ResponseBodyLimit,
		UserAgent:         cfg.Delivery.UserAgent,
		SignatureHeader:   cfg.Delivery.SignatureHeader,
		EventHeader:       cfg.Delivery.EventHeader,
		DeliveryHeader:    cfg.Delivery.DeliveryHeader,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	defaults := ClientConfigFrom(core.DefaultConfig())
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaults.ProbeTimeout
	}
	if c.ResponseBodyLimit <= 0 {
		c.ResponseBodyLimit = defaults.ResponseBodyLimit
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = defaults.UserAgent
	}
	if strings.TrimSpace(c.SignatureHeader) == "" {
		c.SignatureHeader = defaults.SignatureHeader
	}
	if strings.TrimSpace(c.EventHeader) == "" {
		c.EventHeader = defaults.EventHeader
	}
	if strings.TrimSpace(c.DeliveryHeader) == "" {
		c.DeliveryHeader = defaults.DeliveryHeader
	}
	return c
}

// Client performs exactly one HTTP request per call and reports the result
// as a value; it never returns errors or panics past its boundary.
type Client struct {
	HTTP   HTTPDoer
	Config ClientConfig
}

func NewClient(doer HTTPDoer, cfg ClientConfig) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{HTTP: doer, Config: cfg.withDefaults()}
}

func (c *Client) Deliver(ctx context.Context, req core.DeliveryRequest) (outcome core.DeliveryOutcome) {
	startedAt := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = core.DeliveryOutcome{Error: fmt.Sprintf("webhook delivery panicked: %v", recovered)}
		}
		outcome.Duration = time.Since(startedAt)
	}()
	if c == nil || c.HTTP == nil {
		return core.DeliveryOutcome{Error: "webhooks: client is not configured"}
	}
	cfg := c.Config.withDefaults()

	target, err := validateTarget(req.TargetURL)
	if err != nil {
		return core.DeliveryOutcome{Error: err.Error()}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, target, bytes.NewReader(req.Body))
	if err != nil {
		return core.DeliveryOutcome{Error: fmt.Sprintf("webhooks: create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", cfg.UserAgent)
	httpReq.Header.Set(cfg.SignatureHeader, req.Signature)
	httpReq.Header.Set(cfg.EventHeader, string(req.Event))
	if id := strings.TrimSpace(req.DeliveryID); id != "" {
		httpReq.Header.Set(cfg.DeliveryHeader, id)
	}

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return core.DeliveryOutcome{Error: describeTransportError(err, cfg.Timeout)}
	}
	defer res.Body.Close()

	body, readErr := readLimited(res.Body, cfg.ResponseBodyLimit)
	outcome = core.DeliveryOutcome{
		Success:      res.StatusCode >= 200 && res.StatusCode < 300,
		HTTPStatus:   res.StatusCode,
		ResponseBody: body,
	}
	if !outcome.Success {
		outcome.Error = fmt.Sprintf("HTTP %d: %s", res.StatusCode, http.StatusText(res.StatusCode))
	} else if readErr != nil {
		outcome.ResponseBody = ""
	}
	return outcome
}

// Probe issues a HEAD request used to check whether a story is still served.
func (c *Client) Probe(ctx context.Context, rawURL string) (outcome core.ProbeOutcome) {
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = core.ProbeOutcome{Error: fmt.Sprintf("removal probe panicked: %v", recovered)}
		}
	}()
	if c == nil || c.HTTP == nil {
		return core.ProbeOutcome{Error: "webhooks: client is not configured"}
	}
	cfg := c.Config.withDefaults()

	target, err := validateTarget(rawURL)
	if err != nil {
		return core.ProbeOutcome{Error: err.Error()}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodHead, target, nil)
	if err != nil {
		return core.ProbeOutcome{Error: fmt.Sprintf("webhooks: create request: %v", err)}
	}
	httpReq.Header.Set("User-Agent", cfg.UserAgent)

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return core.ProbeOutcome{Error: describeTransportError(err, cfg.ProbeTimeout)}
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	return core.ProbeOutcome{HTTPStatus: res.StatusCode}
}

func validateTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("webhooks: target url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("webhooks: invalid target url: %v", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("webhooks: invalid target url %q: must be an absolute http(s) url", raw)
	}
	return parsed.String(), nil
}

func describeTransportError(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("request timed out after %s", timeout)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Sprintf("request timed out after %s", timeout)
	}
	return err.Error()
}

// readLimited reads at most limit runes of the body.
func readLimited(body io.Reader, limit int) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(body, int64(limit)*utf8.UTFMax))
	if err != nil {
		return "", err
	}
	return truncateRunes(string(raw), limit), nil
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	count := 0
	for idx := range value {
		if count == limit {
			return value[:idx]
		}
		count++
	}
	return value
}

var (
	_ core.WebhookDeliverer = (*Client)(nil)
	_ core.RemovalProber    = (*Client)(nil)
)
