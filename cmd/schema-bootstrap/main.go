// Package main bootstraps the vector and graph store schemas: the four
// Qdrant collections and the Neo4j uniqueness constraint backing Entity
// upserts. Safe to run repeatedly — every operation is idempotent.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tripscoutai/tripscout/engine/vectorstore"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	qdrantAddr := envOr("QDRANT_ADDR", "localhost:6334")
	neo4jURL := envOr("NEO4J_URL", "bolt://localhost:7687")
	neo4jUser := envOr("NEO4J_USER", "neo4j")
	neo4jPass := envOr("NEO4J_PASS", "")
	dims, err := strconv.Atoi(envOr("EMBED_DIMS", "768"))
	if err != nil || dims <= 0 {
		logger.Error("invalid EMBED_DIMS", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vs, err := vectorstore.New(qdrantAddr)
	if err != nil {
		logger.Error("vectorstore init failed", "err", err)
		os.Exit(1)
	}
	defer vs.Close()

	if err := vs.EnsureAll(ctx, dims); err != nil {
		logger.Error("ensure vector collections failed", "err", err)
		os.Exit(1)
	}
	logger.Info("vector collections ready", "collections", vectorstore.AllCollections, "dims", dims)

	driver, err := neo4j.NewDriverWithContext(neo4jURL, neo4j.BasicAuth(neo4jUser, neo4jPass, ""))
	if err != nil {
		logger.Error("neo4j driver init failed", "err", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)

	if err := ensureGraphSchema(ctx, driver); err != nil {
		logger.Error("ensure graph schema failed", "err", err)
		os.Exit(1)
	}
	logger.Info("graph schema ready", "constraint", "Entity.id unique")
}

// ensureGraphSchema creates the uniqueness constraint that makes every
// Entity upsert in engine/graphstore an idempotent MERGE.
func ensureGraphSchema(ctx context.Context, driver neo4j.DriverWithContext) error {
	sess := driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS
		 FOR (n:Entity) REQUIRE n.id IS UNIQUE`, nil)
	return err
}
