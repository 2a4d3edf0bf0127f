// Package main implements the TTS audio retrieval service.
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

	port := envOr("PORT", "8106")
	modelURL := envOr("TTS_MODEL_URL", "http://localhost:11437/synthesize")
	cacheTTL, _ := time.ParseDuration(envOr("CACHE_TTL", "1m"))

	registry, err := contract.NewRegistry()
	if err != nil {
		logger.Error("contract registry init failed", "err", err)
		os.Exit(1)
	}

	client := modelclient.New(modelURL)
	metricsReg := metrics.New()

	svc := &retrieval.Service[retrieval.TTSRequest, retrieval.TTSResponse]{
		Name:           "tts",
		Route:          "/mcp/synthesize",
		RequestSchema:  contract.TTSRequest,
		ResponseSchema: contract.TTSResponse,
		Registry:       registry,
		Cache:          cache.New(cacheTTL),
		Metrics:        retrieval.NewServiceMetrics(metricsReg, "tts"),
		Log:            logger,
		Backend:        ttsBackend(client),
		Fallback:       retrieval.TTSFallback("tts backend unavailable"),
		KeyFn:          ttsKey,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metricsReg.Handler())
	mux.Handle("POST /mcp/synthesize", svc)

	handler := mid.Chain(mux, mid.Recover(logger), mid.Logger(logger), mid.OTel("retrieval-tts"))

	logger.Info("tts retrieval service starting", "port", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func ttsBackend(client *modelclient.Client) retrieval.Backend[retrieval.TTSRequest, retrieval.TTSResponse] {
	return func(ctx context.Context, req retrieval.TTSRequest) (retrieval.TTSResponse, error) {
		var resp retrieval.TTSResponse
		if err := client.Call(ctx, req, &resp); err != nil {
			return retrieval.TTSResponse{}, err
		}
		return resp, nil
	}
}

// ttsKey excludes speed so nearby playback-rate requests for the same text
// share one cached synthesis.
func ttsKey(r retrieval.TTSRequest) string {
	return r.Text + "|" + r.Voice + "|" + r.Language + "|" + r.Format
}
