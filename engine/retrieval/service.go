// Package retrieval implements the generic retrieval-service template (C5)
// shared by all six downstream knowledge services, and the client pool (C4)
// the orchestrator uses to call them.
package retrieval

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tripscoutai/tripscout/engine/cache"
	"github.com/tripscoutai/tripscout/engine/contract"
	"github.com/tripscoutai/tripscout/engine/errs"
	"github.com/tripscoutai/tripscout/pkg/metrics"
	"github.com/tripscoutai/tripscout/pkg/obslog"
)

// Envelope is the cross-service request/response wrapper: every payload
// carries x_contract_version alongside the nested domain object.
type Envelope struct {
	Version string          `json:"x_contract_version"`
	Request json.RawMessage `json:"request,omitempty"`
}

// Backend invokes the opaque downstream collaborator (vector store, graph
// store, model API, subprocess) for a single request. Its internal query
// planning is out of scope; Service only cares whether it errored.
type Backend[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Service is the structurally-identical handler shape every retrieval
// service implements: parse/validate -> cache -> backend -> fallback ->
// cache-write -> metrics/log.
type Service[Req, Resp any] struct {
	Name         string
	Route        string
	RequestSchema  string
	ResponseSchema string
	Registry     *contract.Registry
	Cache        *cache.Cache
	Metrics      *ServiceMetrics
	Log          *slog.Logger
	Backend      Backend[Req, Resp]
	Fallback     func(req Req) Resp
	KeyFn        func(req Req) string
	// ExtractSessionID/RequestID/QueryHash pull correlation metadata out of
	// the request for logging only; all are optional.
	SessionID func(req Req) string
	RequestID func(req Req) string
	QueryHash func(req Req) string
}

// ServiceMetrics are the four counters/histogram every retrieval service
// tracks per §4.3.
type ServiceMetrics struct {
	RequestsTotal        *metrics.Counter
	CacheHitsTotal       *metrics.Counter
	BackendFallbackTotal *metrics.Counter
	Latency              *metrics.Histogram
}

// NewServiceMetrics registers the four counters under the given registry,
// namespaced by service name.
func NewServiceMetrics(reg *metrics.Registry, service string) *ServiceMetrics {
	return &ServiceMetrics{
		RequestsTotal:        reg.Counter(metrics.WithLabels("requests_total", "service", service), "total requests handled"),
		CacheHitsTotal:       reg.Counter(metrics.WithLabels("cache_hits_total", "service", service), "cache hits"),
		BackendFallbackTotal: reg.Counter(metrics.WithLabels("backend_fallback_total", "service", service), "backend fallback responses"),
		Latency:              reg.Histogram(metrics.WithLabels("latency_ms", "service", service), "request latency in ms", nil),
	}
}

// Handle implements the full C5 algorithm against raw envelope bytes, and
// returns response envelope bytes contract-stamped with x_contract_version.
func (s *Service[Req, Resp]) Handle(ctx context.Context, body []byte) ([]byte, error) {
	start := time.Now()

	if err := s.Registry.ValidateBytes(body, s.RequestSchema); err != nil {
		return nil, err
	}

	var env struct {
		Request Req `json:"request"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errs.ParseFailure("retrieval: decode request: " + err.Error())
	}
	req := env.Request

	s.Metrics.RequestsTotal.Inc()

	key := ""
	if s.KeyFn != nil {
		key = s.KeyFn(req)
	}

	cacheHit := false
	var resp Resp
	if key != "" {
		if v, ok := s.Cache.Get(key); ok {
			resp = v.(Resp)
			cacheHit = true
			s.Metrics.CacheHitsTotal.Inc()
		}
	}

	fallback := false
	if !cacheHit {
		var err error
		resp, err = s.Backend(ctx, req)
		if err != nil {
			fallback = true
			s.Metrics.BackendFallbackTotal.Inc()
			resp = s.Fallback(req)
		} else if key != "" {
			// Cache the successful raw result, never a fallback.
			s.Cache.Set(key, resp)
		}
	}

	out, err := json.Marshal(withVersion(resp))
	if err != nil {
		return nil, errs.ParseFailure("retrieval: encode response: " + err.Error())
	}
	if err := s.Registry.ValidateBytes(out, s.ResponseSchema); err != nil {
		// Outbound violation is an implementation bug; surfaced as 4xx/5xx
		// by the caller.
		return nil, err
	}

	elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
	s.Metrics.Latency.Observe(elapsedMS)

	rec := obslog.Record{
		Service:         s.Name,
		Route:           s.Route,
		CacheHit:        cacheHit,
		BackendFallback: fallback,
		LatencyMS:       elapsedMS,
	}
	if s.SessionID != nil {
		rec.SessionID = s.SessionID(req)
	}
	if s.RequestID != nil {
		rec.RequestID = s.RequestID(req)
	}
	if s.QueryHash != nil {
		rec.QueryHash = s.QueryHash(req)
	}
	obslog.Emit(s.Log, rec)

	return out, nil
}

// ServeHTTP lets a Service mount directly as the handler for its route:
// read the body, run Handle, write the resulting envelope or a 400 on any
// parse/validation failure.
func (s *Service[Req, Resp]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, `{"error":"failed to read request body"}`, http.StatusBadRequest)
		return
	}

	out, err := s.Handle(r.Context(), body)
	if err != nil {
		s.Log.Error("service handle failed", "service", s.Name, "err", err)
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// withVersion stamps x_contract_version onto a response payload by
// re-marshaling through a map, independent of the concrete Resp shape.
func withVersion(resp any) map[string]any {
	data, _ := json.Marshal(resp)
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if m == nil {
		m = make(map[string]any)
	}
	m["x_contract_version"] = contract.Version
	return m
}
