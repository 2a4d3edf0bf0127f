// Package main implements the Tripscout edge API server.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tripscoutai/tripscout/engine/orchestrator"
	"github.com/tripscoutai/tripscout/engine/retrieval"
	"github.com/tripscoutai/tripscout/engine/session"
	"github.com/tripscoutai/tripscout/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port            string
	CORSOrigin      string
	EvidenceURL     string
	ProductsURL     string
	GraphURL        string
	VisionURL       string
	STTURL          string
	TTSURL          string
	FeedbackLogPath string
}

func loadConfig() Config {
	return Config{
		Port:            envOr("PORT", "8080"),
		CORSOrigin:      envOr("CORS_ORIGIN", "*"),
		EvidenceURL:     envOr("EVIDENCE_SERVICE_URL", "http://localhost:8101/mcp/retrieve_travel_evidence"),
		ProductsURL:     envOr("PRODUCTS_SERVICE_URL", "http://localhost:8102/mcp/retrieve_product_candidates"),
		GraphURL:        envOr("GRAPH_SERVICE_URL", "http://localhost:8103/mcp/retrieve_travel_graph"),
		VisionURL:       envOr("VISION_SERVICE_URL", "http://localhost:8104/mcp/analyze_image"),
		STTURL:          envOr("STT_SERVICE_URL", "http://localhost:8105/mcp/transcribe"),
		TTSURL:          envOr("TTS_SERVICE_URL", "http://localhost:8106/mcp/synthesize"),
		FeedbackLogPath: envOr("FEEDBACK_LOG_PATH", "/tmp/tripscout-data/feedback.jsonl"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(
		retrieval.NewClientPool(),
		orchestrator.ServiceURLs{
			Evidence: cfg.EvidenceURL,
			Products: cfg.ProductsURL,
			Graph:    cfg.GraphURL,
			Vision:   cfg.VisionURL,
			STT:      cfg.STTURL,
			TTS:      cfg.TTSURL,
		},
		session.New(),
		logger,
	)

	fb, err := newFeedbackLog(cfg.FeedbackLogPath)
	if err != nil {
		return err
	}
	defer fb.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /session/turn", handleTurn(orch, logger))
	mux.HandleFunc("POST /feedback", handleFeedback(fb, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("tripscout-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleTurn(orch *orchestrator.Orchestrator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orchestrator.TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.UserQuery == "" && req.AudioRef == "" {
			http.Error(w, `{"error":"user_query or audio_ref is required"}`, http.StatusBadRequest)
			return
		}

		resp, err := orch.HandleTurn(r.Context(), req)
		if err != nil {
			logger.Error("turn handling failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// FeedbackRequest is the JSON body for POST /feedback.
type FeedbackRequest struct {
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

func handleFeedback(fb *feedbackLog, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.SessionID == "" || req.RequestID == "" {
			http.Error(w, `{"error":"session_id and request_id are required"}`, http.StatusBadRequest)
			return
		}
		if req.Rating < 1 || req.Rating > 5 {
			http.Error(w, `{"error":"rating must be between 1 and 5"}`, http.StatusBadRequest)
			return
		}

		if err := fb.Append(req); err != nil {
			logger.Error("feedback append failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}
}

// feedbackLog is an append-only JSONL writer, one feedback row per line.
type feedbackLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func newFeedbackLog(path string) (*feedbackLog, error) {
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &feedbackLog{file: f, enc: json.NewEncoder(f)}, nil
}

func (f *feedbackLog) Append(req FeedbackRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc.Encode(req)
}

func (f *feedbackLog) Close() error {
	return f.file.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
