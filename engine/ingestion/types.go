// Package ingestion implements the staged, idempotent content pipeline that
// turns an external reference (a video URL or a batch of product records)
// into vector and graph records: requested -> transcript -> chunks ->
// enrichment -> embeddings -> write_complete.
package ingestion

import "encoding/json"

// Stage names, in state-machine order.
const (
	StageRequested     = "requested"
	StageTranscript    = "transcript"
	StageChunks        = "chunks"
	StageEnrichment    = "enrichment"
	StageEmbeddings    = "embeddings"
	StageWriteComplete = "write_complete"
)

// Source types, routing stage behavior.
const (
	SourceYouTube   = "youtube"
	SourceProducts  = "products"
	SourceYouTubeKG = "youtube_kg"
)

// nextStage returns the successor of stage, or "" if stage is terminal.
func nextStage(stage string) string {
	switch stage {
	case StageRequested:
		return StageTranscript
	case StageTranscript:
		return StageChunks
	case StageChunks:
		return StageEnrichment
	case StageEnrichment:
		return StageEmbeddings
	case StageEmbeddings:
		return StageWriteComplete
	default:
		return ""
	}
}

// Event is a single ingestion message: the unit of work passed between
// stages over the queue.
type Event struct {
	EventID         string         `json:"event_id"`
	ContentSourceID string         `json:"content_source_id"`
	Stage           string         `json:"stage"`
	Payload         map[string]any `json:"payload"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	Error           string         `json:"error,omitempty"`
}

// decodePayload remarshals an event's loosely-typed payload map into a
// concrete stage payload type.
func decodePayload[T any](ev Event) (T, error) {
	var out T
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// encodePayload flattens a concrete stage payload type into the loosely
// typed map an Event carries.
func encodePayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ProductInput is one record in a products-source fetch request.
type ProductInput struct {
	Link       string   `json:"link"`
	Question   string   `json:"question"`
	Merchant   string   `json:"merchant,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// RequestedPayload is the payload carried by a stage=requested event.
type RequestedPayload struct {
	SourceType string         `json:"source_type"`
	VideoURL   string         `json:"video_url,omitempty"`
	Language   string         `json:"language,omitempty"`
	Products   []ProductInput `json:"products,omitempty"`
}

// TranscriptSegment is one timestamped caption entry.
type TranscriptSegment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// TranscriptPayload is the payload carried by a stage=transcript event.
type TranscriptPayload struct {
	SourceType string              `json:"source_type"`
	VideoURL   string              `json:"video_url,omitempty"`
	VideoID    string              `json:"video_id,omitempty"`
	Segments   []TranscriptSegment `json:"segments,omitempty"`
	Metadata   map[string]string   `json:"metadata,omitempty"`
	Products   []ProductInput      `json:"products,omitempty"`
}

// Chunk is one char/duration-bounded slice of a transcript.
type Chunk struct {
	ID       string  `json:"id"`
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

// ChunksPayload is the payload carried by a stage=chunks event.
type ChunksPayload struct {
	SourceType string         `json:"source_type"`
	VideoURL   string         `json:"video_url,omitempty"`
	VideoID    string         `json:"video_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Chunks     []Chunk        `json:"chunks,omitempty"`
	Products   []ProductInput `json:"products,omitempty"`
}

// RecommendationCard is one enriched chunk of a youtube source.
type RecommendationCard struct {
	ID         string   `json:"id"`
	VideoID    string   `json:"video_id"`
	ChunkIndex int      `json:"chunk_index"`
	StartSec   float64  `json:"start_sec"`
	EndSec     float64  `json:"end_sec"`
	Summary    string   `json:"summary"`
	Categories []string `json:"categories,omitempty"`
	Confidence float64  `json:"confidence"`
}

// ProductCard is one enriched product record.
type ProductCard struct {
	ID              string   `json:"id"`
	Link            string   `json:"link"`
	Question        string   `json:"question"`
	Summary         string   `json:"summary"`
	Merchant        string   `json:"merchant"`
	PrimaryCategory string   `json:"primary_category"`
	Categories      []string `json:"categories,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// GraphNode is one node extracted from a youtube_kg chunk, restricted to
// the allow-listed node types.
type GraphNode struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Aliases    []string          `json:"aliases,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// GraphEdge is one edge extracted from a youtube_kg chunk, restricted to
// the allow-listed edge types.
type GraphEdge struct {
	Type     string  `json:"type"`
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	VideoURL string  `json:"video_url,omitempty"`
}

// EnrichmentPayload is the payload carried by a stage=enrichment event.
type EnrichmentPayload struct {
	SourceType   string        `json:"source_type"`
	VideoURL     string        `json:"video_url,omitempty"`
	VideoID      string        `json:"video_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Cards        []RecommendationCard `json:"cards,omitempty"`
	ProductCards []ProductCard `json:"product_cards,omitempty"`
	GraphNodes   []GraphNode   `json:"graph_nodes,omitempty"`
	GraphEdges   []GraphEdge   `json:"graph_edges,omitempty"`
}

// EmbeddingsPayload is the payload carried by a stage=embeddings event.
type EmbeddingsPayload struct {
	SourceType        string        `json:"source_type"`
	VideoURL          string        `json:"video_url,omitempty"`
	VideoID           string        `json:"video_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Cards             []RecommendationCard `json:"cards,omitempty"`
	CardEmbeddings    [][]float32   `json:"card_embeddings,omitempty"`
	ProductCards      []ProductCard `json:"product_cards,omitempty"`
	ProductEmbeddings [][]float32   `json:"product_embeddings,omitempty"`
	GraphNodes        []GraphNode   `json:"graph_nodes,omitempty"`
	GraphEdges        []GraphEdge   `json:"graph_edges,omitempty"`
}

// WriteCompletePayload is the payload carried by the terminal event.
type WriteCompletePayload struct {
	SourceType   string `json:"source_type"`
	VideoID      string `json:"video_id,omitempty"`
	WrittenCount int    `json:"written_count"`
}
