// Package main implements the Travel graph retrieval service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tripscoutai/tripscout/engine/cache"
	"github.com/tripscoutai/tripscout/engine/contract"
	"github.com/tripscoutai/tripscout/engine/graphstore"
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

	port := envOr("PORT", "8103")
	neo4jURL := envOr("NEO4J_URL", "bolt://localhost:7687")
	neo4jUser := envOr("NEO4J_USER", "neo4j")
	neo4jPass := envOr("NEO4J_PASS", "")
	cacheTTL, _ := time.ParseDuration(envOr("CACHE_TTL", "10m"))
	defaultLimit, _ := strconv.Atoi(envOr("GRAPH_LIMIT", "10"))
	if defaultLimit <= 0 {
		defaultLimit = 10
	}

	ctx := context.Background()

	registry, err := contract.NewRegistry()
	if err != nil {
		logger.Error("contract registry init failed", "err", err)
		os.Exit(1)
	}

	driver, err := neo4j.NewDriverWithContext(neo4jURL, neo4j.BasicAuth(neo4jUser, neo4jPass, ""))
	if err != nil {
		logger.Error("neo4j driver init failed", "err", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)

	store := graphstore.New(driver)
	metricsReg := metrics.New()

	svc := &retrieval.Service[retrieval.GraphRequest, retrieval.GraphResponse]{
		Name:           "graph",
		Route:          "/mcp/retrieve_travel_graph",
		RequestSchema:  contract.TravelGraphRequest,
		ResponseSchema: contract.TravelGraphResponse,
		Registry:       registry,
		Cache:          cache.New(cacheTTL),
		Metrics:        retrieval.NewServiceMetrics(metricsReg, "graph"),
		Log:            logger,
		Backend:        graphBackend(store, defaultLimit),
		Fallback:       retrieval.GraphFallback,
		KeyFn:          retrieval.GraphKey,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metricsReg.Handler())
	mux.Handle("POST /mcp/retrieve_travel_graph", svc)

	handler := mid.Chain(mux, mid.Recover(logger), mid.Logger(logger), mid.OTel("retrieval-graph"))

	logger.Info("graph retrieval service starting", "port", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

// graphBackend answers a travel-graph request by seeding a keyword search
// off the user query's significant words, then layering in day-by-day
// itinerary paths when the destination looks planning-shaped.
func graphBackend(store *graphstore.GraphStore, defaultLimit int) retrieval.Backend[retrieval.GraphRequest, retrieval.GraphResponse] {
	return func(ctx context.Context, req retrieval.GraphRequest) (retrieval.GraphResponse, error) {
		limit := req.Limit
		if limit <= 0 {
			limit = defaultLimit
		}

		seen := map[string]bool{}
		var nodes []retrieval.GraphNode
		for _, kw := range significantWords(req.UserQuery) {
			entities, err := store.FindByKeyword(ctx, kw, limit)
			if err != nil {
				return retrieval.GraphResponse{}, err
			}
			for _, e := range entities {
				if seen[e.ID] {
					continue
				}
				seen[e.ID] = true
				nodes = append(nodes, entityToNode(e))
				if len(nodes) >= limit {
					break
				}
			}
			if len(nodes) >= limit {
				break
			}
		}

		var edges []retrieval.GraphEdge
		for _, n := range nodes {
			neighbors, err := store.Neighbors(ctx, n.ID, 1)
			if err != nil {
				return retrieval.GraphResponse{}, err
			}
			for _, nb := range neighbors {
				if !seen[nb.ID] {
					continue // only keep edges within the already-surfaced node set
				}
				edges = append(edges, retrieval.GraphEdge{Type: "RELATED_TO", Source: n.ID, Target: nb.ID})
			}
		}

		var paths []retrieval.GraphPath
		if req.Destination != "" {
			itineraryPaths, err := store.ItineraryPaths(ctx, req.Destination, limit)
			if err != nil {
				return retrieval.GraphResponse{}, err
			}
			for _, p := range itineraryPaths {
				paths = append(paths, retrieval.GraphPath{
					Label:    p.Label,
					NodeIDs:  p.NodeIDs,
					Evidence: toContractEvidence(p.Evidence),
				})
			}
		}

		return retrieval.GraphResponse{
			Subgraph: retrieval.GraphSubgraph{Nodes: nodes, Edges: edges},
			Paths:    paths,
		}, nil
	}
}

func entityToNode(e graphstore.Entity) retrieval.GraphNode {
	return retrieval.GraphNode{
		ID:         e.ID,
		Type:       e.Type,
		Name:       e.Name,
		Aliases:    e.Aliases,
		Properties: e.Properties,
	}
}

func toContractEvidence(items []graphstore.EvidenceItem) []retrieval.GraphEdgeEvidence {
	out := make([]retrieval.GraphEdgeEvidence, len(items))
	for i, it := range items {
		out[i] = retrieval.GraphEdgeEvidence{
			VideoURL:     it.VideoURL,
			TimestampURL: it.TimestampURL,
			StartSec:     it.StartSec,
			EndSec:       it.EndSec,
			ChunkIdx:     it.ChunkIdx,
		}
	}
	return out
}

// significantWords splits a query into lowercase words of 4+ characters,
// a crude stand-in for stopword removal that's enough to seed a keyword
// search against entity names and aliases.
func significantWords(query string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if len(w) >= 4 {
			out = append(out, w)
		}
	}
	return out
}
