package redisalert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-syndication/core"
	"github.com/redis/go-redis/v9"
)

type capturingClient struct {
	channel string
	message any
	err     error
}

func (c *capturingClient) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	c.channel = channel
	c.message = message
	return redis.NewIntResult(1, c.err)
}

func TestPublisher_PublishesAlertJSON(t *testing.T) {
	client := &capturingClient{}
	publisher, err := NewPublisher(client, "")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	alert := core.ComplianceAlert{
		StoryID: "story-1",
		FailedSites: []core.SiteVerification{
			{SiteID: "site-a", SiteName: "Site A", HTTPStatus: 200},
			{SiteID: "site-b", Unverifiable: true},
		},
		ElapsedMinutes: 75.5,
		RaisedAt:       time.Date(2026, 3, 14, 13, 15, 30, 0, time.UTC),
	}
	if err := publisher.PublishComplianceAlert(context.Background(), alert); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if client.channel != DefaultChannel {
		t.Fatalf("expected default channel, got %q", client.channel)
	}
	body, ok := client.message.([]byte)
	if !ok {
		t.Fatalf("expected []byte message, got %T", client.message)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["storyId"] != "story-1" || decoded["elapsedMinutes"] != 75.5 {
		t.Fatalf("unexpected alert body: %s", body)
	}
	if decoded["raisedAt"] != "2026-03-14T13:15:30.000Z" {
		t.Fatalf("unexpected raisedAt: %v", decoded["raisedAt"])
	}
	sites, _ := decoded["failedSites"].([]any)
	if len(sites) != 2 {
		t.Fatalf("expected two failed sites, got %v", decoded["failedSites"])
	}
	first, _ := sites[0].(map[string]any)
	if first["siteId"] != "site-a" || first["httpStatus"] != float64(200) {
		t.Fatalf("unexpected first site: %v", first)
	}
}

func TestPublisher_WrapsPublishErrors(t *testing.T) {
	boom := errors.New("connection refused")
	publisher, err := NewPublisher(&capturingClient{err: boom}, "alerts")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	err = publisher.PublishComplianceAlert(context.Background(), core.ComplianceAlert{StoryID: "story-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}

func TestNewPublisher_RequiresClient(t *testing.T) {
	if _, err := NewPublisher(nil, "alerts"); err == nil {
		t.Fatalf("expected missing client error")
	}
}
