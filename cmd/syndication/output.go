package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-syndication/core"
	"github.com/jedib0t/go-pretty/v6/table"
)

func printJSON(v any) error {
	enc := json.NewEncoder(stdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(stdout())
	t.AppendHeader(table.Row(header))
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return core.FormatTimestamp(t)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func printDeliveries(results []core.SiteDeliveryResult) {
	t := newTable("SITE", "NAME", "OK", "HTTP", "EVENT", "ERROR")
	for _, r := range results {
		t.AppendRow(table.Row{r.SiteID, r.SiteName, r.Success, statusOrDash(r.HTTPStatus), r.WebhookEventID, r.Error})
	}
	t.Render()
}

func printVerifications(results []core.SiteVerification) {
	t := newTable("SITE", "NAME", "VERIFIED", "UNVERIFIABLE", "HTTP", "ERROR")
	for _, r := range results {
		t.AppendRow(table.Row{r.SiteID, r.SiteName, r.Verified, r.Unverifiable, statusOrDash(r.HTTPStatus), r.Error})
	}
	t.Render()
}

func statusOrDash(status int) string {
	if status <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", status)
}

func splitIDs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
