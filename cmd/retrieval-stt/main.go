// Package main implements the STT transcript retrieval service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tripscoutai/tripscout/engine/cache"
	"github.com/tripscoutai/tripscout/engine/contract"
	"github.com/tripscoutai/tripscout/engine/modelclient"
	"github.com/tripscoutai/tripscout/engine/retrieval"
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

	port := envOr("PORT", "8105")
	modelURL := envOr("STT_MODEL_URL", "http://localhost:11436/transcribe")
	cacheTTL, _ := time.ParseDuration(envOr("CACHE_TTL", "1m"))

	registry, err := contract.NewRegistry()
	if err != nil {
		logger.Error("contract registry init failed", "err", err)
		os.Exit(1)
	}

	client := modelclient.New(modelURL)
	metricsReg := metrics.New()

	svc := &retrieval.Service[retrieval.STTRequest, retrieval.STTResponse]{
		Name:           "stt",
		Route:          "/mcp/transcribe",
		RequestSchema:  contract.STTRequest,
		ResponseSchema: contract.STTResponse,
		Registry:       registry,
		Cache:          cache.New(cacheTTL),
		Metrics:        retrieval.NewServiceMetrics(metricsReg, "stt"),
		Log:            logger,
		Backend:        sttBackend(client),
		Fallback:       retrieval.STTFallback("stt backend unavailable"),
		KeyFn:          sttKey,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metricsReg.Handler())
	mux.Handle("POST /mcp/transcribe", svc)

	handler := mid.Chain(mux, mid.Recover(logger), mid.Logger(logger), mid.OTel("retrieval-stt"))

	logger.Info("stt retrieval service starting", "port", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func sttBackend(client *modelclient.Client) retrieval.Backend[retrieval.STTRequest, retrieval.STTResponse] {
	return func(ctx context.Context, req retrieval.STTRequest) (retrieval.STTResponse, error) {
		var resp retrieval.STTResponse
		if err := client.Call(ctx, req, &resp); err != nil {
			return retrieval.STTResponse{}, err
		}
		return resp, nil
	}
}

// sttKey is intentionally audio_ref + language only: a given audio clip's
// transcript never changes between calls.
func sttKey(r retrieval.STTRequest) string {
	return r.AudioRef + "|" + r.Language
}
