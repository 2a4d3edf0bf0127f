// Package main implements the Vision signals retrieval service.
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

	port := envOr("PORT", "8104")
	modelURL := envOr("VISION_MODEL_URL", "http://localhost:11435/analyze_image")
	cacheTTL, _ := time.ParseDuration(envOr("CACHE_TTL", "10m"))

	registry, err := contract.NewRegistry()
	if err != nil {
		logger.Error("contract registry init failed", "err", err)
		os.Exit(1)
	}

	client := modelclient.New(modelURL)
	metricsReg := metrics.New()

	svc := &retrieval.Service[retrieval.VisionRequest, retrieval.VisionResponse]{
		Name:           "vision",
		Route:          "/mcp/analyze_image",
		RequestSchema:  contract.VisionRequest,
		ResponseSchema: contract.VisionResponse,
		Registry:       registry,
		Cache:          cache.New(cacheTTL),
		Metrics:        retrieval.NewServiceMetrics(metricsReg, "vision"),
		Log:            logger,
		Backend:        visionBackend(client),
		Fallback:       retrieval.VisionFallback("vision backend unavailable"),
		KeyFn:          retrieval.VisionKey,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metricsReg.Handler())
	mux.Handle("POST /mcp/analyze_image", svc)

	handler := mid.Chain(mux, mid.Recover(logger), mid.Logger(logger), mid.OTel("retrieval-vision"))

	logger.Info("vision retrieval service starting", "port", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

// visionBackend delegates to the configured multimodal model API, then
// coerces its raw signals into the fixed category/scene allow-lists.
func visionBackend(client *modelclient.Client) retrieval.Backend[retrieval.VisionRequest, retrieval.VisionResponse] {
	return func(ctx context.Context, req retrieval.VisionRequest) (retrieval.VisionResponse, error) {
		var raw struct {
			Signals    retrieval.VisionSignals `json:"signals"`
			Confidence float64                 `json:"confidence"`
		}
		if err := client.Call(ctx, req, &raw); err != nil {
			return retrieval.VisionResponse{}, err
		}

		signals, confidence := retrieval.CoerceSignals(raw.Signals, raw.Confidence)
		return retrieval.VisionResponse{
			Mode:       req.Mode,
			Signals:    signals,
			Confidence: confidence,
		}, nil
	}
}
