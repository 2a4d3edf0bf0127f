package ingestion

import (
	"context"

	"github.com/tripscoutai/tripscout/engine/modelclient"
)

type cardModelRequest struct {
	Task string `json:"task"`
	Text string `json:"text"`
}

type cardModelResponse struct {
	Summary    string   `json:"summary"`
	Categories []string `json:"categories"`
	Confidence float64  `json:"confidence"`
}

// enrichChunk produces one recommendation card per chunk via the model
// client. A malformed or empty model response falls back to a synthesized
// low-confidence card rather than failing the stage: ingestion always
// produces a card for every chunk.
func enrichChunk(ctx context.Context, client *modelclient.Client, videoID string, chunk Chunk) RecommendationCard {
	var resp cardModelResponse
	err := client.Call(ctx, cardModelRequest{Task: "travel_recommendation_card", Text: chunk.Text}, &resp)
	if err != nil || resp.Summary == "" {
		return RecommendationCard{
			ID:         chunk.ID,
			VideoID:    videoID,
			ChunkIndex: chunk.Index,
			StartSec:   chunk.StartSec,
			EndSec:     chunk.EndSec,
			Summary:    chunk.Text,
			Confidence: 0.1,
		}
	}
	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return RecommendationCard{
		ID:         chunk.ID,
		VideoID:    videoID,
		ChunkIndex: chunk.Index,
		StartSec:   chunk.StartSec,
		EndSec:     chunk.EndSec,
		Summary:    resp.Summary,
		Categories: resp.Categories,
		Confidence: confidence,
	}
}
