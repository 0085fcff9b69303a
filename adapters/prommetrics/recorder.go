package prommetrics

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-syndication/core"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultLabels are the tag keys the pipeline emits. Tags outside the label
// set are dropped; missing ones are exported as empty strings.
var DefaultLabels = []string{"operation", "status", "event_type", "step"}

// DefaultDurationBuckets are millisecond buckets sized for webhook calls
// bounded by a 10 second timeout.
var DefaultDurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Recorder exports core metrics as Prometheus counter and histogram vectors,
// created lazily per metric name.
type Recorder struct {
	registerer prometheus.Registerer
	labels     []string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	onError    func(error)
}

func NewRecorder(registerer prometheus.Registerer) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Recorder{
		registerer: registerer,
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    append([]float64(nil), DefaultDurationBuckets...),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

// OnError installs a callback for registration failures. Metrics are never
// allowed to fail the pipeline, so errors are only reported here.
func (r *Recorder) OnError(fn func(error)) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counterVec(MetricName(name))
	if vec == nil {
		return
	}
	vec.WithLabelValues(r.labelValues(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogramVec(MetricName(name))
	if vec == nil {
		return
	}
	vec.WithLabelValues(r.labelValues(tags)...).Observe(value)
}

func (r *Recorder) counterVec(name string) *prometheus.CounterVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "Syndication counter " + name,
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		existing, ok := alreadyRegistered[*prometheus.CounterVec](err)
		if !ok {
			r.reportLocked(fmt.Errorf("prommetrics: register counter %s: %w", name, err))
			return nil
		}
		vec = existing
	}
	r.counters[name] = vec
	return vec
}

func (r *Recorder) histogramVec(name string) *prometheus.HistogramVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[name]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Syndication histogram " + name,
		Buckets: r.buckets,
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		existing, ok := alreadyRegistered[*prometheus.HistogramVec](err)
		if !ok {
			r.reportLocked(fmt.Errorf("prommetrics: register histogram %s: %w", name, err))
			return nil
		}
		vec = existing
	}
	r.histograms[name] = vec
	return vec
}

func (r *Recorder) labelValues(tags map[string]string) []string {
	values := make([]string, len(r.labels))
	for idx, label := range r.labels {
		values[idx] = strings.TrimSpace(tags[label])
	}
	return values
}

func (r *Recorder) reportLocked(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

func alreadyRegistered[T prometheus.Collector](err error) (T, bool) {
	var zero T
	are, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		return zero, false
	}
	existing, ok := are.ExistingCollector.(T)
	return existing, ok
}

// MetricName converts dotted core metric names into Prometheus names, for
// example syndication.revoke_content.duration_ms becomes
// syndication_revoke_content_duration_ms.
func MetricName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	for idx, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if idx == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
