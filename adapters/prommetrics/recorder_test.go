package prommetrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricName(t *testing.T) {
	cases := map[string]string{
		"syndication.revoke_content.total":       "syndication_revoke_content_total",
		"syndication.verify-removal.duration_ms": "syndication_verify_removal_duration_ms",
		"5xx.total":                              "_5xx_total",
		"  ":                                     "",
	}
	for input, expected := range cases {
		if got := MetricName(input); got != expected {
			t.Fatalf("MetricName(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestRecorderExportsCountersAndHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(registry)
	ctx := context.Background()

	tags := map[string]string{"operation": "revoke_content", "status": "success", "unknown": "dropped"}
	recorder.IncCounter(ctx, "syndication.revoke_content.total", 1, tags)
	recorder.IncCounter(ctx, "syndication.revoke_content.total", 2, tags)
	recorder.ObserveHistogram(ctx, "syndication.revoke_content.duration_ms", 42, tags)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var counterValue float64
	var histogramCount uint64
	for _, family := range families {
		switch family.GetName() {
		case "syndication_revoke_content_total":
			metrics := family.GetMetric()
			if len(metrics) != 1 {
				t.Fatalf("expected one labelled series, got %d", len(metrics))
			}
			if len(metrics[0].GetLabel()) != len(DefaultLabels) {
				t.Fatalf("expected %d labels, got %d", len(DefaultLabels), len(metrics[0].GetLabel()))
			}
			counterValue = metrics[0].GetCounter().GetValue()
		case "syndication_revoke_content_duration_ms":
			histogramCount = family.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	if counterValue != 3 {
		t.Fatalf("expected counter value 3, got %v", counterValue)
	}
	if histogramCount != 1 {
		t.Fatalf("expected one histogram sample, got %d", histogramCount)
	}
}

func TestRecorderReusesAlreadyRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewRecorder(registry)
	second := NewRecorder(registry)
	var reported error
	second.OnError(func(err error) { reported = err })

	first.IncCounter(context.Background(), "syndication.notify_sites.total", 1, nil)
	second.IncCounter(context.Background(), "syndication.notify_sites.total", 1, nil)
	if reported != nil {
		t.Fatalf("expected shared collector, got %v", reported)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == "syndication_notify_sites_total" {
			if value := family.GetMetric()[0].GetCounter().GetValue(); value != 2 {
				t.Fatalf("expected shared counter value 2, got %v", value)
			}
			return
		}
	}
	t.Fatalf("expected syndication_notify_sites_total family")
}
