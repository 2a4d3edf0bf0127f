package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tripscoutai/tripscout/engine/cache"
	"github.com/tripscoutai/tripscout/engine/contract"
	"github.com/tripscoutai/tripscout/pkg/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEvidenceService(t *testing.T, backend Backend[EvidenceRequest, EvidenceResponse]) *Service[EvidenceRequest, EvidenceResponse] {
	t.Helper()
	reg, err := contract.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return &Service[EvidenceRequest, EvidenceResponse]{
		Name:           "evidence",
		Route:          "/mcp/retrieve_travel_evidence",
		RequestSchema:  contract.TravelEvidenceRequest,
		ResponseSchema: contract.TravelEvidenceResponse,
		Registry:       reg,
		Cache:          cache.New(time.Minute),
		Metrics:        NewServiceMetrics(metrics.New(), "evidence-test"),
		Log:            testLogger(),
		Backend:        backend,
		Fallback:       EvidenceFallback,
		KeyFn:          EvidenceKey("v1"),
	}
}

func TestServiceHandleContractIdempotence(t *testing.T) {
	calls := 0
	svc := newEvidenceService(t, func(ctx context.Context, r EvidenceRequest) (EvidenceResponse, error) {
		calls++
		return EvidenceResponse{Cards: []EvidenceCard{{Summary: "s", SourceURL: "https://x"}}}, nil
	})

	body := []byte(`{"x_contract_version":"1.0","request":{"user_query":"dicas para Orlando","destination":"Orlando"}}`)

	out1, err := svc.Handle(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var env1 map[string]any
	if err := json.Unmarshal(out1, &env1); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env1["x_contract_version"] != "1.0" {
		t.Fatalf("expected version echo 1.0, got %v", env1["x_contract_version"])
	}

	out2, err := svc.Handle(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if string(out1) != string(out2) {
		t.Fatalf("expected identical cached response")
	}
	if calls != 1 {
		t.Fatalf("expected backend called once (second served from cache), got %d", calls)
	}
}

func TestServiceHandleBackendFailureFallsBackWithoutError(t *testing.T) {
	svc := newEvidenceService(t, func(ctx context.Context, r EvidenceRequest) (EvidenceResponse, error) {
		return EvidenceResponse{}, errors.New("backend down")
	})

	body := []byte(`{"x_contract_version":"1.0","request":{"user_query":"q"}}`)
	out, err := svc.Handle(context.Background(), body)
	if err != nil {
		t.Fatalf("backend failure must never surface as an error: %v", err)
	}
	var resp EvidenceResponse
	var env map[string]json.RawMessage
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(env["cards"], &resp.Cards); err != nil {
		t.Fatalf("decode cards: %v", err)
	}
	if len(resp.Cards) != 0 {
		t.Fatalf("expected empty fallback cards, got %v", resp.Cards)
	}
}

func TestServiceHandleInboundContractViolation(t *testing.T) {
	svc := newEvidenceService(t, func(ctx context.Context, r EvidenceRequest) (EvidenceResponse, error) {
		return EvidenceResponse{}, nil
	})
	body := []byte(`{"x_contract_version":"1.0","request":{}}`)
	if _, err := svc.Handle(context.Background(), body); err == nil {
		t.Fatalf("expected contract violation for missing user_query")
	}
}

func TestProductMinConfidenceNotInCacheKey(t *testing.T) {
	req1 := ProductRequest{QuerySignature: "orlando:tickets:en", MinConfidence: 0.1}
	req2 := ProductRequest{QuerySignature: "orlando:tickets:en", MinConfidence: 0.9}
	if ProductKey(req1) != ProductKey(req2) {
		t.Fatalf("expected min_confidence to be excluded from cache key")
	}
}

func TestFilterByMinConfidence(t *testing.T) {
	resp := ProductResponse{Candidates: []ProductCandidate{
		{ProductID: "a", Confidence: 0.2},
		{ProductID: "b", Confidence: 0.8},
	}}
	filtered := FilterByMinConfidence(resp, 0.5)
	if len(filtered.Candidates) != 1 || filtered.Candidates[0].ProductID != "b" {
		t.Fatalf("unexpected filtered result: %+v", filtered.Candidates)
	}
}
