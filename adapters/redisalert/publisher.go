package redisalert

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-syndication/core"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "syndication:compliance_alerts"

// Client is the subset of redis.UniversalClient the publisher needs.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Publisher broadcasts compliance alerts on a Redis pub/sub channel.
type Publisher struct {
	client  Client
	channel string
}

func NewPublisher(client Client, channel string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redisalert: client is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}, nil
}

// NewClient parses a redis:// or rediss:// URL and fails fast when the
// server is unreachable.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("redisalert: parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	if opts.TLSConfig == nil && strings.HasPrefix(redisURL, "rediss://") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisalert: ping: %w", err)
	}
	return client, nil
}

type alertMessage struct {
	StoryID        string       `json:"storyId"`
	FailedSites    []failedSite `json:"failedSites"`
	ElapsedMinutes float64      `json:"elapsedMinutes"`
	RaisedAt       string       `json:"raisedAt,omitempty"`
}

type failedSite struct {
	SiteID       string `json:"siteId"`
	SiteName     string `json:"siteName,omitempty"`
	Unverifiable bool   `json:"unverifiable,omitempty"`
	HTTPStatus   int    `json:"httpStatus,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EncodeAlert renders the alert as the JSON document published on the channel.
func EncodeAlert(alert core.ComplianceAlert) ([]byte, error) {
	msg := alertMessage{
		StoryID:        alert.StoryID,
		FailedSites:    make([]failedSite, 0, len(alert.FailedSites)),
		ElapsedMinutes: alert.ElapsedMinutes,
	}
	if !alert.RaisedAt.IsZero() {
		msg.RaisedAt = core.FormatTimestamp(alert.RaisedAt)
	}
	for _, site := range alert.FailedSites {
		msg.FailedSites = append(msg.FailedSites, failedSite{
			SiteID:       site.SiteID,
			SiteName:     site.SiteName,
			Unverifiable: site.Unverifiable,
			HTTPStatus:   site.HTTPStatus,
			Error:        site.Error,
		})
	}
	return json.Marshal(msg)
}

func (p *Publisher) PublishComplianceAlert(ctx context.Context, alert core.ComplianceAlert) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("redisalert: publisher is not configured")
	}
	body, err := EncodeAlert(alert)
	if err != nil {
		return fmt.Errorf("redisalert: encode alert: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redisalert: publish to %s: %w", p.channel, err)
	}
	return nil
}

var _ core.AlertPublisher = (*Publisher)(nil)
