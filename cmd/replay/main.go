// Package main implements the DLQ replay operator tool: it drains the
// ingestion dead-letter subject back into the input subject in FIFO order.
package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/tripscoutai/tripscout/engine/queue"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	natsURL := envOr("NATS_URL", nats.DefaultURL)
	drainTimeout, err := time.ParseDuration(envOr("REPLAY_DRAIN_TIMEOUT", "2s"))
	if err != nil {
		logger.Error("invalid REPLAY_DRAIN_TIMEOUT", "err", err)
		os.Exit(1)
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Close()

	count, err := queue.Replay(nc, drainTimeout)
	if err != nil {
		logger.Error("replay failed", "replayed", count, "err", err)
		os.Exit(1)
	}

	logger.Info("replay complete", "replayed", count)
}
