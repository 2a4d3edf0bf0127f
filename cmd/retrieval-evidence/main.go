// Package main implements the Travel evidence retrieval service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/tripscoutai/tripscout/engine/cache"
	"github.com/tripscoutai/tripscout/engine/contract"
	"github.com/tripscoutai/tripscout/engine/retrieval"
	"github.com/tripscoutai/tripscout/engine/vectorstore"
	"github.com/tripscoutai/tripscout/pkg/embedclient"
	"github.com/tripscoutai/tripscout/pkg/metrics"
	"github.com/tripscoutai/tripscout/pkg/mid"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := envOr("PORT", "8101")
	qdrantAddr := envOr("QDRANT_ADDR", "localhost:6334")
	ollamaURL := envOr("OLLAMA_URL", "http://localhost:11434")
	embedModel := envOr("EMBED_MODEL", "nomic-embed-text")
	cacheTTL, _ := time.ParseDuration(envOr("CACHE_TTL", "10m"))
	strategyVersion := envOr("EVIDENCE_STRATEGY_VERSION", "v1")
	topK, _ := strconv.Atoi(envOr("SEARCH_TOP_K", "8"))
	if topK <= 0 {
		topK = 8
	}

	registry, err := contract.NewRegistry()
	if err != nil {
		logger.Error("contract registry init failed", "err", err)
		os.Exit(1)
	}

	store, err := vectorstore.New(qdrantAddr)
	if err != nil {
		logger.Error("qdrant dial failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	embedder := embedclient.New(ollamaURL, embedModel)
	metricsReg := metrics.New()

	svc := &retrieval.Service[retrieval.EvidenceRequest, retrieval.EvidenceResponse]{
		Name:           "evidence",
		Route:          "/mcp/retrieve_travel_evidence",
		RequestSchema:  contract.TravelEvidenceRequest,
		ResponseSchema: contract.TravelEvidenceResponse,
		Registry:       registry,
		Cache:          cache.New(cacheTTL),
		Metrics:        retrieval.NewServiceMetrics(metricsReg, "evidence"),
		Log:            logger,
		Backend:        evidenceBackend(store, embedder, topK),
		Fallback:       retrieval.EvidenceFallback,
		KeyFn:          retrieval.EvidenceKey(strategyVersion),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metricsReg.Handler())
	mux.Handle("POST /mcp/retrieve_travel_evidence", svc)

	handler := mid.Chain(mux, mid.Recover(logger), mid.Logger(logger), mid.OTel("retrieval-evidence"))

	logger.Info("evidence retrieval service starting", "port", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func evidenceBackend(store *vectorstore.Store, embedder *embedclient.Client, topK int) retrieval.Backend[retrieval.EvidenceRequest, retrieval.EvidenceResponse] {
	return func(ctx context.Context, req retrieval.EvidenceRequest) (retrieval.EvidenceResponse, error) {
		vec, err := embedder.Embed(ctx, req.UserQuery)
		if err != nil {
			return retrieval.EvidenceResponse{}, err
		}

		filters := map[string]string{}
		if req.Destination != "" {
			filters["destination"] = req.Destination
		}
		if req.Lang != "" {
			filters["lang"] = req.Lang
		}

		hits, err := store.SearchFiltered(ctx, vectorstore.RecommendationCard, vec, topK, filters)
		if err != nil {
			return retrieval.EvidenceResponse{}, err
		}

		cards := make([]retrieval.EvidenceCard, 0, len(hits))
		for _, h := range hits {
			cards = append(cards, retrieval.EvidenceCard{
				Summary:    h.Payload["summary"],
				SourceURL:  h.Payload["timestampUrl"],
				Confidence: float64(h.Score),
			})
		}
		return retrieval.EvidenceResponse{Cards: cards}, nil
	}
}
