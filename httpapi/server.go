package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-syndication/core"
	"github.com/goliatone/go-syndication/inbound"
	"github.com/goliatone/go-syndication/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultBasePath      = "/v1"
	DefaultMaxBodyBytes  = 1 << 20
	DefaultEventIDHeader = "Idempotency-Key"
)

// EventDispatcher routes verified inbound events to job triggers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event inbound.Event) (inbound.Result, error)
}

// Reader is the read side the audit endpoints expose.
type Reader interface {
	GetWebhookEvent(ctx context.Context, eventID string) (core.WebhookEvent, error)
	ListWebhookEvents(ctx context.Context, storyID string) ([]core.WebhookEvent, error)
	ListDistributions(ctx context.Context, msg query.ListDistributionsMessage) ([]core.Distribution, error)
	ListSites(ctx context.Context) ([]core.Site, error)
	ListComplianceAlerts(ctx context.Context, storyID string) ([]core.ComplianceAlert, error)
}

type Config struct {
	Dispatcher EventDispatcher
	Reader     Reader
	BasePath   string

	// SignatureHeader carries the inbound HMAC; defaults to the outbound
	// signature header so one scheme covers both directions.
	SignatureHeader string
	// EventIDHeaders are checked in order for the sender's event id.
	EventIDHeaders []string
	MaxBodyBytes   int64

	Gatherer prometheus.Gatherer
	Metrics  core.MetricsRecorder
	Logger   glog.Logger
	Clock    func() time.Time
}

func (c Config) withDefaults() Config {
	c.BasePath = strings.TrimRight(strings.TrimSpace(c.BasePath), "/")
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		c.BasePath = "/" + c.BasePath
	}
	if strings.TrimSpace(c.SignatureHeader) == "" {
		c.SignatureHeader = core.DefaultSignatureHeader
	}
	if len(c.EventIDHeaders) == 0 {
		c.EventIDHeaders = []string{core.DefaultDeliveryHeader, DefaultEventIDHeader}
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Gatherer == nil {
		c.Gatherer = prometheus.DefaultGatherer
	}
	if c.Metrics == nil {
		c.Metrics = core.NopMetricsRecorder{}
	}
	c.Logger = glog.Ensure(c.Logger)
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

type server struct {
	cfg Config
}

// New returns the HTTP handler. Dispatcher and Reader are both required.
func New(cfg Config) (http.Handler, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("httpapi: event dispatcher is required")
	}
	if cfg.Reader == nil {
		return nil, errors.New("httpapi: reader is required")
	}
	s := &server{cfg: cfg.withDefaults()}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)

	router.Post("/events/{event}", s.handleEvent)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	hcfg := huma.DefaultConfig("Syndication API", "1.0.0")
	hcfg.OpenAPIPath = s.cfg.BasePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, s.cfg.BasePath)

	registerHealth(group)
	registerWebhookEvents(group, s.cfg.Reader)
	registerDistributions(group, s.cfg.Reader)
	registerSites(group, s.cfg.Reader)
	registerComplianceAlerts(group, s.cfg.Reader)

	return router, nil
}

type eventAcceptedBody struct {
	Accepted       bool   `json:"accepted"`
	JobID          string `json:"jobId,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "event")
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		s.recordEvent(r.Context(), name, "error")
		writeError(w, newAPIError(http.StatusBadRequest, core.SyndicationErrorBadInput, "could not read request body"))
		return
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		s.recordEvent(r.Context(), name, "rejected")
		writeError(w, newAPIError(http.StatusRequestEntityTooLarge, core.SyndicationErrorBadInput, "request body too large"))
		return
	}

	result, err := s.cfg.Dispatcher.Dispatch(r.Context(), inbound.Event{
		Name:       name,
		ID:         s.eventID(r),
		Body:       body,
		Signature:  r.Header.Get(s.cfg.SignatureHeader),
		ReceivedAt: s.cfg.Clock().UTC(),
	})
	if err != nil {
		apiErr := handleError(err)
		s.recordEvent(r.Context(), name, "rejected")
		if apiErr.GetStatus() >= http.StatusInternalServerError {
			s.cfg.Logger.Error("inbound event failed", "event", name, "error", err.Error())
		} else {
			s.cfg.Logger.Warn("inbound event rejected", "event", name, "status", apiErr.GetStatus(), "error", err.Error())
		}
		writeError(w, apiErr)
		return
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusAccepted
	}
	s.recordEvent(r.Context(), name, "accepted")
	writeJSON(w, status, eventAcceptedBody{
		Accepted:       result.Accepted,
		JobID:          result.JobID,
		IdempotencyKey: result.IdempotencyKey,
	})
}

func (s *server) eventID(r *http.Request) string {
	for _, header := range s.cfg.EventIDHeaders {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}

func (s *server) recordEvent(ctx context.Context, name string, status string) {
	s.cfg.Metrics.IncCounter(ctx, "syndication.inbound.events.total", 1, map[string]string{
		"operation":  "inbound",
		"event_type": strings.ToLower(strings.TrimSpace(name)),
		"status":     status,
	})
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.cfg.Clock()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.cfg.Logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration_ms", s.cfg.Clock().Sub(start).Milliseconds(),
		)
	})
}
