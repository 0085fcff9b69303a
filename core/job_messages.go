package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	JobIDRevokeContent  = "syndication.content.revoked"
	JobIDVerifyRemoval  = "syndication.verify_removal"
	JobIDRetryWebhooks  = "syndication.webhooks.retry"
	JobIDNotifySites    = "syndication.notify"
	JobScriptPathPrefix = "syndication/"

	DedupPolicyDrop = "drop"
)

// NewRevokeJobMessage builds the durable job for an inbound content.revoked
// event.
func NewRevokeJobMessage(req RevokeRequest, idempotencyKey string) *JobExecutionMessage {
	params := map[string]any{"storyId": strings.TrimSpace(req.StoryID)}
	if ids := normalizeIDs(req.SiteIDs); len(ids) > 0 {
		params["siteIds"] = ids
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		params["reason"] = reason
	}
	return newJobMessage(JobIDRevokeContent, params, idempotencyKey)
}

func NewVerifyJobMessage(req VerifyRequest) *JobExecutionMessage {
	params := map[string]any{
		"storyId":             strings.TrimSpace(req.StoryID),
		"siteIds":             normalizeIDs(req.SiteIDs),
		"revocationTimestamp": FormatTimestamp(req.RevocationTimestamp),
	}
	if req.Recheck {
		params["recheck"] = true
	}
	key := fmt.Sprintf("verify:%s:%s", params["storyId"], params["revocationTimestamp"])
	if req.Recheck {
		key += ":recheck"
	}
	return newJobMessage(JobIDVerifyRemoval, params, key)
}

func NewRetryJobMessage(window time.Time, batchSize int) *JobExecutionMessage {
	params := map[string]any{}
	if batchSize > 0 {
		params["batchSize"] = batchSize
	}
	return newJobMessage(JobIDRetryWebhooks, params, "retry:"+FormatTimestamp(window))
}

func NewNotifyJobMessage(req NotifyRequest, idempotencyKey string) *JobExecutionMessage {
	params := map[string]any{
		"event":   string(req.Event),
		"storyId": strings.TrimSpace(req.StoryID),
	}
	if ids := normalizeIDs(req.SiteIDs); len(ids) > 0 {
		params["siteIds"] = ids
	}
	if len(req.Data) > 0 {
		params["data"] = copyAnyMap(req.Data)
	}
	return newJobMessage(JobIDNotifySites, params, idempotencyKey)
}

func newJobMessage(jobID string, params map[string]any, idempotencyKey string) *JobExecutionMessage {
	msg := &JobExecutionMessage{
		JobID:          jobID,
		ScriptPath:     JobScriptPathPrefix + jobID,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
	if msg.IdempotencyKey != "" {
		msg.DedupPolicy = DedupPolicyDrop
	}
	return msg
}

func RevokeRequestFromParams(params map[string]any) (RevokeRequest, error) {
	req := RevokeRequest{
		StoryID: paramString(params, "storyId"),
		SiteIDs: paramStrings(params, "siteIds"),
		Reason:  paramString(params, "reason"),
	}
	return req, req.Validate()
}

func VerifyRequestFromParams(params map[string]any) (VerifyRequest, error) {
	req := VerifyRequest{
		StoryID: paramString(params, "storyId"),
		SiteIDs: paramStrings(params, "siteIds"),
		Recheck: paramBool(params, "recheck"),
	}
	if raw := paramString(params, "revocationTimestamp"); raw != "" {
		at, err := ParseTimestamp(raw)
		if err != nil {
			return VerifyRequest{}, err
		}
		req.RevocationTimestamp = at
	}
	return req, req.Validate()
}

func RetryRequestFromParams(params map[string]any) RetryRequest {
	return RetryRequest{BatchSize: paramInt(params, "batchSize")}
}

func NotifyRequestFromParams(params map[string]any) (NotifyRequest, error) {
	req := NotifyRequest{
		Event:   EventType(paramString(params, "event")),
		StoryID: paramString(params, "storyId"),
		SiteIDs: paramStrings(params, "siteIds"),
	}
	if data, ok := params["data"].(map[string]any); ok {
		req.Data = copyAnyMap(data)
	}
	return req, req.Validate()
}

func paramString(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func paramStrings(params map[string]any, key string) []string {
	switch typed := params[key].(type) {
	case []string:
		return normalizeIDs(typed)
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return normalizeIDs(out)
	case string:
		return normalizeIDs(strings.Split(typed, ","))
	default:
		return nil
	}
}

func paramBool(params map[string]any, key string) bool {
	switch typed := params[key].(type) {
	case bool:
		return typed
	case string:
		return strings.EqualFold(strings.TrimSpace(typed), "true")
	default:
		return false
	}
}

func paramInt(params map[string]any, key string) int {
	switch typed := params[key].(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	default:
		return 0
	}
}
