package orchestrator

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tripscoutai/tripscout/engine/retrieval"
	"github.com/tripscoutai/tripscout/engine/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func jsonHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

func newOrchestrator(t *testing.T, urls ServiceURLs) *Orchestrator {
	t.Helper()
	return New(retrieval.NewClientPool(), urls, session.New(), testLogger())
}

func TestEvidenceOnlyTextTurn(t *testing.T) {
	evidence := httptest.NewServer(jsonHandler(retrieval.EvidenceResponse{
		Cards: []retrieval.EvidenceCard{{
			Summary:   "Best times to visit are early morning.",
			SourceURL: "https://example.com/tips",
		}},
	}))
	defer evidence.Close()

	products := httptest.NewServer(jsonHandler(retrieval.ProductResponse{Candidates: []retrieval.ProductCandidate{}}))
	defer products.Close()

	o := newOrchestrator(t, ServiceURLs{Evidence: evidence.URL, Products: products.URL})

	resp, err := o.HandleTurn(t.Context(), TurnRequest{
		SessionID:   "s1",
		UserQuery:   "dicas para evitar filas no Magic Kingdom",
		Destination: "Orlando",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.AnswerText, "Best times to visit are early morning.") {
		t.Fatalf("answer_text missing evidence summary: %q", resp.AnswerText)
	}
	if len(resp.Citations) != 1 || resp.Citations[0] != "https://example.com/tips" {
		t.Fatalf("unexpected citations: %v", resp.Citations)
	}
	if resp.Addon != nil {
		t.Fatalf("expected no addon, got %+v", resp.Addon)
	}
}

func TestCommercialIntentTriggersAddon(t *testing.T) {
	evidence := httptest.NewServer(jsonHandler(retrieval.EvidenceResponse{Cards: []retrieval.EvidenceCard{}}))
	defer evidence.Close()

	products := httptest.NewServer(jsonHandler(retrieval.ProductResponse{
		Candidates: []retrieval.ProductCandidate{{
			ProductID: "p1",
			Summary:   "Ticket pack for Magic Kingdom",
			Link:      "https://merchant.example/p1",
			Merchant:  "m",
		}},
	}))
	defer products.Close()

	o := newOrchestrator(t, ServiceURLs{Evidence: evidence.URL, Products: products.URL})

	resp, err := o.HandleTurn(t.Context(), TurnRequest{
		SessionID:   "s2",
		UserQuery:   "quero comprar ingresso Magic Kingdom",
		Destination: "Orlando",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Addon == nil {
		t.Fatalf("expected addon to be populated")
	}
	want := Addon{ProductID: "p1", Summary: "Ticket pack for Magic Kingdom", Link: "https://merchant.example/p1", Merchant: "m"}
	if *resp.Addon != want {
		t.Fatalf("addon mismatch: got %+v want %+v", *resp.Addon, want)
	}
}

func TestItineraryKeywordRoutesToGraphExactlyOnce(t *testing.T) {
	var graphCalls int32

	evidence := httptest.NewServer(jsonHandler(retrieval.EvidenceResponse{Cards: []retrieval.EvidenceCard{}}))
	defer evidence.Close()

	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&graphCalls, 1)
		resp := retrieval.GraphResponse{
			Subgraph: retrieval.GraphSubgraph{
				Nodes: []retrieval.GraphNode{
					{ID: "poi1", Type: "poi", Name: "Magic Kingdom"},
					{ID: "poi2", Type: "poi", Name: "Epcot"},
				},
			},
			Paths: []retrieval.GraphPath{{
				Label:   "Day 1",
				NodeIDs: []string{"poi1", "poi2"},
				Evidence: []retrieval.GraphEdgeEvidence{{
					TimestampURL: "https://video.example/v1?t=120",
				}},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer graph.Close()

	products := httptest.NewServer(jsonHandler(retrieval.ProductResponse{Candidates: []retrieval.ProductCandidate{}}))
	defer products.Close()

	o := newOrchestrator(t, ServiceURLs{Evidence: evidence.URL, Graph: graph.URL, Products: products.URL})

	resp, err := o.HandleTurn(t.Context(), TurnRequest{
		SessionID:   "s3",
		UserQuery:   "suggest a 3-day itinerary for Orlando",
		Destination: "Orlando",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&graphCalls) != 1 {
		t.Fatalf("expected graph to be called exactly once, got %d", graphCalls)
	}
	if !strings.Contains(resp.AnswerText, "Day 1:") {
		t.Fatalf("answer_text missing path line: %q", resp.AnswerText)
	}
	found := false
	for _, c := range resp.Citations {
		if c == "https://video.example/v1?t=120" {
			found = true
		}
	}
	if !found {
		t.Fatalf("citations missing timestampUrl: %v", resp.Citations)
	}
}

func TestGuardrailRemovesUnsourcedClaim(t *testing.T) {
	evidence := httptest.NewServer(jsonHandler(retrieval.EvidenceResponse{
		Cards: []retrieval.EvidenceCard{{
			Summary: "You must visit at 8am. The rule requires advance booking.",
		}},
	}))
	defer evidence.Close()

	products := httptest.NewServer(jsonHandler(retrieval.ProductResponse{Candidates: []retrieval.ProductCandidate{}}))
	defer products.Close()

	o := newOrchestrator(t, ServiceURLs{Evidence: evidence.URL, Products: products.URL})

	resp, err := o.HandleTurn(t.Context(), TurnRequest{
		SessionID: "s4",
		UserQuery: "when to go to Disney",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AnswerText != "Não tenho fontes suficientes para confirmar essas informações." {
		t.Fatalf("guardrail did not rewrite answer: %q", resp.AnswerText)
	}
	if len(resp.Citations) != 0 {
		t.Fatalf("expected no citations, got %v", resp.Citations)
	}
}

func TestPackingModeVisionOutfitGap(t *testing.T) {
	evidence := httptest.NewServer(jsonHandler(retrieval.EvidenceResponse{Cards: []retrieval.EvidenceCard{}}))
	defer evidence.Close()

	ok := false
	vision := httptest.NewServer(jsonHandler(retrieval.VisionResponse{
		Mode: retrieval.VisionPacking,
		Signals: retrieval.VisionSignals{
			SuitabilityOK:                  &ok,
			Issue:                          "too light for freezing temperatures",
			SuggestedCategoriesForProducts: []string{"insulated_jacket", "warm_top"},
		},
		Confidence: 0.8,
	}))
	defer vision.Close()

	var lastSignature string
	products := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			Request retrieval.ProductRequest `json:"request"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &envelope)
		lastSignature = envelope.Request.QuerySignature

		resp := retrieval.ProductResponse{Candidates: []retrieval.ProductCandidate{{
			ProductID:       "jacket-1",
			Summary:         "Insulated jacket",
			Link:            "https://merchant.example/jacket-1",
			PrimaryCategory: "insulated_jacket",
		}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer products.Close()

	o := newOrchestrator(t, ServiceURLs{Evidence: evidence.URL, Vision: vision.URL, Products: products.URL})

	resp, err := o.HandleTurn(t.Context(), TurnRequest{
		SessionID:   "s5",
		UserQuery:   "Is this outfit okay for Disney in winter?",
		Destination: "Orlando",
		ImageRef:    "data:image/jpeg;base64,AA==",
		TripContext: map[string]any{"destination": "Orlando", "temp_band": "cold"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.AnswerText, "may not be suitable") {
		t.Fatalf("answer_text missing unsuitable verdict: %q", resp.AnswerText)
	}
	if !strings.Contains(resp.AnswerText, "insulated_jacket") {
		t.Fatalf("answer_text missing suggested categories: %q", resp.AnswerText)
	}
	if !strings.Contains(lastSignature, "insulated_jacket") {
		t.Fatalf("product query signature did not use first suggested category: %q", lastSignature)
	}
	if resp.Addon == nil || resp.Addon.ProductID != "jacket-1" {
		t.Fatalf("expected jacket addon, got %+v", resp.Addon)
	}
}
