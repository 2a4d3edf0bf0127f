// Package main implements the ingestion queue worker process.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tripscoutai/tripscout/engine/graphstore"
	"github.com/tripscoutai/tripscout/engine/ingestion"
	"github.com/tripscoutai/tripscout/engine/modelclient"
	"github.com/tripscoutai/tripscout/engine/queue"
	"github.com/tripscoutai/tripscout/engine/vectorstore"
	"github.com/tripscoutai/tripscout/pkg/embedclient"
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

	natsURL := envOr("NATS_URL", nats.DefaultURL)
	qdrantAddr := envOr("QDRANT_ADDR", "localhost:6334")
	neo4jURL := envOr("NEO4J_URL", "bolt://localhost:7687")
	neo4jUser := envOr("NEO4J_USER", "neo4j")
	neo4jPass := envOr("NEO4J_PASS", "")
	ollamaURL := envOr("OLLAMA_URL", "http://localhost:11434")
	embedModel := envOr("EMBED_MODEL", "nomic-embed-text")
	enrichModelURL := envOr("ENRICH_MODEL_URL", "http://localhost:11438/enrich")
	languagePref := strings.Split(envOr("SUBTITLE_LANGUAGE_PREF", "en,pt,es"), ",")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(natsURL)
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Close()

	vs, err := vectorstore.New(qdrantAddr)
	if err != nil {
		logger.Error("vectorstore init failed", "err", err)
		os.Exit(1)
	}
	defer vs.Close()

	driver, err := neo4j.NewDriverWithContext(neo4jURL, neo4j.BasicAuth(neo4jUser, neo4jPass, ""))
	if err != nil {
		logger.Error("neo4j driver init failed", "err", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	gs := graphstore.New(driver)

	processor := ingestion.NewProcessor(ingestion.Deps{
		Idempotency:  ingestion.NewInProcessStore(),
		Fetcher:      ingestion.NewInnertubeFetcher(),
		ModelClient:  modelclient.New(enrichModelURL),
		Embedder:     embedclient.New(ollamaURL, embedModel),
		VectorStore:  vs,
		GraphStore:   gs,
		Logger:       logger,
		LanguagePref: languagePref,
	})

	worker := queue.NewWorker(nc, processor, logger)
	sub, err := worker.Start(ctx)
	if err != nil {
		logger.Error("worker subscribe failed", "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	logger.Info("ingestion worker started", "subject", queue.InputSubject)
	<-ctx.Done()
	logger.Info("shutdown signal received")
}
