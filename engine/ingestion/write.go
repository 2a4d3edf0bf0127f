package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripscoutai/tripscout/engine/graphstore"
	"github.com/tripscoutai/tripscout/engine/vectorstore"
)

func timestampURL(videoURL string, startSec float64) string {
	if videoURL == "" {
		return ""
	}
	return fmt.Sprintf("%s&t=%ds", videoURL, int(startSec))
}

// writeVideoCards upserts the video record (keyed by VideoID) and every
// recommendation card. Upsert is idempotent on point ID, so a repeated
// write for the same card is a no-op.
func writeVideoCards(ctx context.Context, vs *vectorstore.Store, videoID, videoURL string, metadata map[string]string, cards []RecommendationCard, embeddings [][]float32) (int, error) {
	written := 0

	if len(embeddings) > 0 {
		payload := map[string]any{
			"video_url":         videoURL,
			"content_source_id": "youtube:" + videoID,
		}
		for k, v := range metadata {
			payload[k] = v
		}
		if err := vs.Upsert(ctx, vectorstore.Video, []vectorstore.Record{{ID: videoID, Embedding: embeddings[0], Payload: payload}}); err != nil {
			return written, fmt.Errorf("ingestion: upsert video: %w", err)
		}
		written++
	}

	records := make([]vectorstore.Record, 0, len(cards))
	for i, c := range cards {
		if i >= len(embeddings) {
			break
		}
		records = append(records, vectorstore.Record{
			ID:        c.ID,
			Embedding: embeddings[i],
			Payload: map[string]any{
				"video_id":          c.VideoID,
				"chunk_index":       c.ChunkIndex,
				"summary":           c.Summary,
				"start_sec":         c.StartSec,
				"end_sec":           c.EndSec,
				"categories":        strings.Join(c.Categories, ","),
				"confidence":        c.Confidence,
				"content_source_id": "youtube:" + videoID,
				"timestamp_url":     timestampURL(videoURL, c.StartSec),
			},
		})
	}
	if len(records) > 0 {
		if err := vs.Upsert(ctx, vectorstore.RecommendationCard, records); err != nil {
			return written, fmt.Errorf("ingestion: upsert recommendation cards: %w", err)
		}
	}
	return written + len(records), nil
}

// writeProductCards upserts the product record and its enriched cards.
func writeProductCards(ctx context.Context, vs *vectorstore.Store, cards []ProductCard, embeddings [][]float32) (int, error) {
	written := 0
	seenProducts := map[string]bool{}
	var productRecords, cardRecords []vectorstore.Record

	for i, c := range cards {
		if i >= len(embeddings) {
			continue
		}
		productID := ProductID(c.Link)
		if !seenProducts[productID] {
			seenProducts[productID] = true
			productRecords = append(productRecords, vectorstore.Record{
				ID:        productID,
				Embedding: embeddings[i],
				Payload: map[string]any{
					"link":              c.Link,
					"merchant":          c.Merchant,
					"content_source_id": "products:" + productID,
				},
			})
		}
		cardRecords = append(cardRecords, vectorstore.Record{
			ID:        c.ID,
			Embedding: embeddings[i],
			Payload: map[string]any{
				"link":              c.Link,
				"question":          c.Question,
				"summary":           c.Summary,
				"merchant":          c.Merchant,
				"primary_category":  c.PrimaryCategory,
				"categories":        strings.Join(c.Categories, ","),
				"confidence":        c.Confidence,
				"content_source_id": "products:" + productID,
			},
		})
	}

	if len(productRecords) > 0 {
		if err := vs.Upsert(ctx, vectorstore.Product, productRecords); err != nil {
			return written, fmt.Errorf("ingestion: upsert products: %w", err)
		}
		written += len(productRecords)
	}
	if len(cardRecords) > 0 {
		if err := vs.Upsert(ctx, vectorstore.ProductCard, cardRecords); err != nil {
			return written, fmt.Errorf("ingestion: upsert product cards: %w", err)
		}
		written += len(cardRecords)
	}
	return written, nil
}

// writeGraph persists the merged node/edge set in one transaction.
func writeGraph(ctx context.Context, gs *graphstore.GraphStore, videoURL string, nodes []GraphNode, edges []GraphEdge) (int, error) {
	entities := make([]graphstore.Entity, len(nodes))
	for i, n := range nodes {
		entities[i] = graphstore.Entity{ID: n.ID, Type: n.Type, Name: n.Name, Aliases: n.Aliases, Properties: n.Properties}
	}

	graphEdges := make([]graphstore.Edge, len(edges))
	for i, e := range edges {
		graphEdges[i] = graphstore.Edge{
			RelType: e.Type,
			Source:  e.Source,
			Target:  e.Target,
			Evidence: []graphstore.EvidenceItem{{
				VideoURL:     videoURL,
				TimestampURL: timestampURL(videoURL, e.StartSec),
				StartSec:     e.StartSec,
				EndSec:       e.EndSec,
			}},
		}
	}

	if err := gs.SaveBatch(ctx, entities, graphEdges); err != nil {
		return 0, fmt.Errorf("ingestion: save graph batch: %w", err)
	}
	return len(entities) + len(graphEdges), nil
}
