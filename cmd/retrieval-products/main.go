// Package main implements the Product candidates retrieval service.
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

	port := envOr("PORT", "8102")
	qdrantAddr := envOr("QDRANT_ADDR", "localhost:6334")
	ollamaURL := envOr("OLLAMA_URL", "http://localhost:11434")
	embedModel := envOr("EMBED_MODEL", "nomic-embed-text")
	cacheTTL, _ := time.ParseDuration(envOr("CACHE_TTL", "10m"))
	topK, _ := strconv.Atoi(envOr("SEARCH_TOP_K", "5"))
	if topK <= 0 {
		topK = 5
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

	svc := &retrieval.Service[retrieval.ProductRequest, retrieval.ProductResponse]{
		Name:           "products",
		Route:          "/mcp/retrieve_product_candidates",
		RequestSchema:  contract.ProductCandidatesRequest,
		ResponseSchema: contract.ProductCandidatesResponse,
		Registry:       registry,
		Cache:          cache.New(cacheTTL),
		Metrics:        retrieval.NewServiceMetrics(metricsReg, "products"),
		Log:            logger,
		Backend:        productsBackend(store, embedder, topK),
		Fallback:       retrieval.ProductFallback,
		KeyFn:          retrieval.ProductKey,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metricsReg.Handler())
	mux.Handle("POST /mcp/retrieve_product_candidates", svc)

	handler := mid.Chain(mux, mid.Recover(logger), mid.Logger(logger), mid.OTel("retrieval-products"))

	logger.Info("products retrieval service starting", "port", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func productsBackend(store *vectorstore.Store, embedder *embedclient.Client, topK int) retrieval.Backend[retrieval.ProductRequest, retrieval.ProductResponse] {
	return func(ctx context.Context, req retrieval.ProductRequest) (retrieval.ProductResponse, error) {
		vec, err := embedder.Embed(ctx, req.QuerySignature)
		if err != nil {
			return retrieval.ProductResponse{}, err
		}

		filters := map[string]string{}
		if req.Destination != "" {
			filters["destination"] = req.Destination
		}
		if req.Market != "" {
			filters["market"] = req.Market
		}
		if req.Lang != "" {
			filters["lang"] = req.Lang
		}

		limit := topK
		if req.Limit > 0 {
			limit = req.Limit
		}

		hits, err := store.SearchFiltered(ctx, vectorstore.ProductCard, vec, limit, filters)
		if err != nil {
			return retrieval.ProductResponse{}, err
		}

		candidates := make([]retrieval.ProductCandidate, 0, len(hits))
		for _, h := range hits {
			candidates = append(candidates, retrieval.ProductCandidate{
				ProductID:       h.ID,
				Summary:         h.Payload["summary"],
				Link:            h.Payload["link"],
				Merchant:        h.Payload["merchant"],
				PrimaryCategory: h.Payload["primaryCategory"],
				Categories:      vectorstore.SplitStrings(h.Payload["categories"]),
				Confidence:      float64(h.Score),
			})
		}
		return retrieval.ProductResponse{Candidates: candidates}, nil
	}
}
