package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tripscoutai/tripscout/engine/graphstore"
	"github.com/tripscoutai/tripscout/engine/modelclient"
	"github.com/tripscoutai/tripscout/engine/vectorstore"
	"github.com/tripscoutai/tripscout/pkg/embedclient"
)

// Deps holds the external collaborators a Processor drives. All writes and
// external calls flow through these, so tests can substitute fakes.
type Deps struct {
	Idempotency  IdempotencyStore
	Fetcher      SubtitleFetcher
	ModelClient  *modelclient.Client
	Embedder     *embedclient.Client
	VectorStore  *vectorstore.Store
	GraphStore   *graphstore.GraphStore
	Logger       *slog.Logger
	ChunkBounds  ChunkBounds
	LanguagePref []string
}

// Processor advances one ingestion event by exactly one stage.
type Processor struct {
	deps Deps
}

// NewProcessor builds a Processor, filling unset fields with their
// zero-impact defaults (default chunk bounds, a no-op logger).
func NewProcessor(deps Deps) *Processor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ChunkBounds == (ChunkBounds{}) {
		deps.ChunkBounds = DefaultChunkBounds
	}
	if deps.Idempotency == nil {
		deps.Idempotency = NewInProcessStore()
	}
	return &Processor{deps: deps}
}

// Process runs ev's current stage to produce the next event, enforcing the
// idempotency guard first: if the destination stage was already claimed,
// Process returns (nil, nil) — no advance, no side effect repeated. On
// handler failure the claim is released so a later delivery can retry.
func (p *Processor) Process(ctx context.Context, ev Event) (*Event, error) {
	next := nextStage(ev.Stage)
	if next == "" {
		return nil, nil // write_complete is terminal
	}

	already, err := p.deps.Idempotency.CheckAndSet(ctx, ev.ContentSourceID, next)
	if err != nil {
		return nil, fmt.Errorf("ingestion: idempotency check: %w", err)
	}
	if already {
		p.deps.Logger.Info("ingestion.no_advance", "content_source_id", ev.ContentSourceID, "stage", next)
		return nil, nil
	}

	payload, handlerErr := p.runStage(ctx, ev)
	if handlerErr != nil {
		if err := p.deps.Idempotency.Unclaim(ctx, ev.ContentSourceID, next); err != nil {
			p.deps.Logger.Error("ingestion.unclaim_failed", "content_source_id", ev.ContentSourceID, "stage", next, "err", err)
		}
		return nil, handlerErr
	}

	return &Event{
		EventID:         ev.EventID,
		ContentSourceID: ev.ContentSourceID,
		Stage:           next,
		Payload:         payload,
		MaxRetries:      ev.MaxRetries,
	}, nil
}

func (p *Processor) runStage(ctx context.Context, ev Event) (map[string]any, error) {
	switch ev.Stage {
	case StageRequested:
		return p.fetch(ctx, ev)
	case StageTranscript:
		return p.chunkStage(ctx, ev)
	case StageChunks:
		return p.enrich(ctx, ev)
	case StageEnrichment:
		return p.embed(ctx, ev)
	case StageEmbeddings:
		return p.write(ctx, ev)
	default:
		return nil, fmt.Errorf("ingestion: unknown stage %q", ev.Stage)
	}
}

func (p *Processor) fetch(ctx context.Context, ev Event) (map[string]any, error) {
	req, err := decodePayload[RequestedPayload](ev)
	if err != nil {
		return nil, fmt.Errorf("ingestion: decode requested payload: %w", err)
	}

	switch req.SourceType {
	case SourceYouTube, SourceYouTubeKG:
		languagePref := p.deps.LanguagePref
		if req.Language != "" {
			languagePref = append([]string{req.Language}, languagePref...)
		}
		segments, metadata, err := p.deps.Fetcher.FetchSubtitles(ctx, req.VideoURL, languagePref)
		if err != nil {
			return nil, fmt.Errorf("ingestion: fetch subtitles: %w", err)
		}
		out := TranscriptPayload{
			SourceType: req.SourceType,
			VideoURL:   req.VideoURL,
			VideoID:    VideoID(req.VideoURL),
			Segments:   segments,
			Metadata:   metadata,
		}
		return encodePayload(out)

	case SourceProducts:
		out := TranscriptPayload{SourceType: SourceProducts, Products: req.Products}
		return encodePayload(out)

	default:
		return nil, fmt.Errorf("ingestion: unknown source_type %q", req.SourceType)
	}
}

func (p *Processor) chunkStage(ctx context.Context, ev Event) (map[string]any, error) {
	in, err := decodePayload[TranscriptPayload](ev)
	if err != nil {
		return nil, fmt.Errorf("ingestion: decode transcript payload: %w", err)
	}

	out := ChunksPayload{
		SourceType: in.SourceType,
		VideoURL:   in.VideoURL,
		VideoID:    in.VideoID,
		Metadata:   in.Metadata,
		Products:   in.Products,
	}
	if in.SourceType == SourceYouTube || in.SourceType == SourceYouTubeKG {
		out.Chunks = ChunkSegments(in.VideoID, in.Segments, p.deps.ChunkBounds)
	}
	return encodePayload(out)
}

func (p *Processor) enrich(ctx context.Context, ev Event) (map[string]any, error) {
	in, err := decodePayload[ChunksPayload](ev)
	if err != nil {
		return nil, fmt.Errorf("ingestion: decode chunks payload: %w", err)
	}

	out := EnrichmentPayload{SourceType: in.SourceType, VideoURL: in.VideoURL, VideoID: in.VideoID, Metadata: in.Metadata}

	switch in.SourceType {
	case SourceYouTube:
		cards := make([]RecommendationCard, len(in.Chunks))
		for i, c := range in.Chunks {
			cards[i] = enrichChunk(ctx, p.deps.ModelClient, in.VideoID, c)
		}
		out.Cards = cards

	case SourceProducts:
		cards := make([]ProductCard, len(in.Products))
		for i, prod := range in.Products {
			cards[i] = enrichProduct(ctx, p.deps.ModelClient, prod)
		}
		out.ProductCards = cards

	case SourceYouTubeKG:
		var nodeBatches [][]GraphNode
		var edgeBatches [][]GraphEdge
		for _, c := range in.Chunks {
			nodes, edges := extractGraphFragment(ctx, p.deps.ModelClient, in.VideoID, c)
			nodeBatches = append(nodeBatches, nodes)
			edgeBatches = append(edgeBatches, edges)
		}
		out.GraphNodes, out.GraphEdges = mergeGraph(nodeBatches, edgeBatches)

	default:
		return nil, fmt.Errorf("ingestion: unknown source_type %q", in.SourceType)
	}

	return encodePayload(out)
}

func (p *Processor) embed(ctx context.Context, ev Event) (map[string]any, error) {
	in, err := decodePayload[EnrichmentPayload](ev)
	if err != nil {
		return nil, fmt.Errorf("ingestion: decode enrichment payload: %w", err)
	}

	out := EmbeddingsPayload{
		SourceType: in.SourceType,
		VideoURL:   in.VideoURL,
		VideoID:    in.VideoID,
		Metadata:   in.Metadata,
		Cards:      in.Cards,
		GraphNodes: in.GraphNodes,
		GraphEdges: in.GraphEdges,
	}

	switch in.SourceType {
	case SourceYouTube:
		texts := make([]string, len(in.Cards))
		for i, c := range in.Cards {
			texts[i] = c.Summary
		}
		embeddings, err := p.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embed cards: %w", err)
		}
		out.CardEmbeddings = embeddings

	case SourceProducts:
		out.ProductCards = in.ProductCards
		texts := make([]string, len(in.ProductCards))
		for i, c := range in.ProductCards {
			texts[i] = c.Summary
		}
		embeddings, err := p.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embed product cards: %w", err)
		}
		out.ProductEmbeddings = embeddings

	case SourceYouTubeKG:
		// graph-only: no vectors to compute, pass the merged graph through.

	default:
		return nil, fmt.Errorf("ingestion: unknown source_type %q", in.SourceType)
	}

	return encodePayload(out)
}

func (p *Processor) write(ctx context.Context, ev Event) (map[string]any, error) {
	in, err := decodePayload[EmbeddingsPayload](ev)
	if err != nil {
		return nil, fmt.Errorf("ingestion: decode embeddings payload: %w", err)
	}

	var written int
	switch in.SourceType {
	case SourceYouTube:
		written, err = writeVideoCards(ctx, p.deps.VectorStore, in.VideoID, in.VideoURL, in.Metadata, in.Cards, in.CardEmbeddings)
	case SourceProducts:
		written, err = writeProductCards(ctx, p.deps.VectorStore, in.ProductCards, in.ProductEmbeddings)
	case SourceYouTubeKG:
		written, err = writeGraph(ctx, p.deps.GraphStore, in.VideoURL, in.GraphNodes, in.GraphEdges)
	default:
		return nil, fmt.Errorf("ingestion: unknown source_type %q", in.SourceType)
	}
	if err != nil {
		return nil, err
	}

	return encodePayload(WriteCompletePayload{SourceType: in.SourceType, VideoID: in.VideoID, WrittenCount: written})
}

// NewEventID mints a random event identifier for a freshly enqueued
// ingestion request; retries and stage transitions reuse the original.
func NewEventID() string {
	return uuid.NewString()
}
