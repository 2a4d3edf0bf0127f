package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tripscoutai/tripscout/engine/contract"
	"github.com/tripscoutai/tripscout/engine/errs"
	"github.com/tripscoutai/tripscout/pkg/resilience"
)

// DefaultDeadline is the default total-deadline per call for text services.
const DefaultDeadline = 3 * time.Second

// MediaDeadline is the per-call deadline for vision/STT/TTS services.
const MediaDeadline = 12 * time.Second

// ClientPool is the single long-lived HTTP client the orchestrator uses to
// reach every downstream retrieval service, one call per contract.
type ClientPool struct {
	httpClient *http.Client
	breakers   map[string]*resilience.Breaker
}

// NewClientPool creates a ClientPool with a shared http.Client.
func NewClientPool() *ClientPool {
	return &ClientPool{
		httpClient: &http.Client{},
		breakers:   make(map[string]*resilience.Breaker),
	}
}

func (p *ClientPool) breakerFor(service string) *resilience.Breaker {
	b, ok := p.breakers[service]
	if !ok {
		b = resilience.NewBreaker(resilience.DefaultBreakerOpts)
		p.breakers[service] = b
	}
	return b
}

// Call POSTs a contract envelope to url and decodes the response envelope
// into out, honoring the given deadline and circuit breaker for service.
func (p *ClientPool) Call(ctx context.Context, service, url string, deadline time.Duration, request any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	envelope := map[string]any{
		"x_contract_version": contract.Version,
		"request":            request,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return errs.ParseFailure("retrieval pool: marshal request: " + err.Error())
	}

	breaker := p.breakerFor(service)
	return breaker.Call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return errs.UpstreamUnavailable("retrieval pool: build request: " + err.Error())
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return errs.Timeout(fmt.Sprintf("retrieval pool: %s timed out", service))
			}
			return errs.UpstreamUnavailable("retrieval pool: " + service + ": " + err.Error())
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.UpstreamUnavailable("retrieval pool: read response: " + err.Error())
		}
		if resp.StatusCode >= 400 {
			return errs.UpstreamUnavailable(fmt.Sprintf("retrieval pool: %s status %d", service, resp.StatusCode))
		}
		if err := json.Unmarshal(data, out); err != nil {
			return errs.ParseFailure("retrieval pool: decode response: " + err.Error())
		}
		return nil
	})
}
