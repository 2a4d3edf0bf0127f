package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tripscoutai/tripscout/engine/modelclient"
	"github.com/tripscoutai/tripscout/pkg/embedclient"
)

type fakeFetcher struct {
	segments []TranscriptSegment
	metadata map[string]string
}

func (f *fakeFetcher) FetchSubtitles(_ context.Context, _ string, _ []string) ([]TranscriptSegment, map[string]string, error) {
	return f.segments, f.metadata, nil
}

func newCardModelServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cardModelResponse{
			Summary:    "Great spot for a morning walk.",
			Categories: []string{"sightseeing"},
			Confidence: 0.9,
		})
	}))
}

func newEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	}))
}

// TestProcessorAdvancesRequestedThroughEmbeddings walks a youtube-source
// event through requested -> transcript -> chunks -> enrichment ->
// embeddings, stopping short of the write stage since vectorstore.Store
// and graphstore.GraphStore have no fake-able seam (both require a live
// backend connection).
func TestProcessorAdvancesRequestedThroughEmbeddings(t *testing.T) {
	cardSrv := newCardModelServer(t)
	defer cardSrv.Close()
	embedSrv := newEmbedServer(t)
	defer embedSrv.Close()

	proc := NewProcessor(Deps{
		Fetcher: &fakeFetcher{
			segments: []TranscriptSegment{
				{Start: 0, Duration: 3, Text: "Welcome to this amazing city full of history and culture worth exploring."},
				{Start: 3, Duration: 3, Text: "Let's start our walking tour at the main square near the river."},
				{Start: 60, Duration: 3, Text: "Now we arrive at the old cathedral overlooking the valley below."},
			},
			metadata: map[string]string{"language": "en", "kind": ""},
		},
		ModelClient: modelclient.New(cardSrv.URL),
		Embedder:    embedclient.New(embedSrv.URL, "test-embed"),
	})

	ctx := context.Background()
	videoURL := "https://youtube.com/watch?v=abc12345"

	requested := Event{
		EventID:         NewEventID(),
		ContentSourceID: "youtube:abc12345",
		Stage:           StageRequested,
		MaxRetries:      3,
	}
	payload, err := encodePayload(RequestedPayload{SourceType: SourceYouTube, VideoURL: videoURL})
	if err != nil {
		t.Fatalf("encode requested payload: %v", err)
	}
	requested.Payload = payload

	transcriptEv, err := proc.Process(ctx, requested)
	if err != nil {
		t.Fatalf("fetch stage failed: %v", err)
	}
	if transcriptEv == nil || transcriptEv.Stage != StageTranscript {
		t.Fatalf("expected transcript stage event, got %+v", transcriptEv)
	}

	chunksEv, err := proc.Process(ctx, *transcriptEv)
	if err != nil {
		t.Fatalf("chunk stage failed: %v", err)
	}
	if chunksEv == nil || chunksEv.Stage != StageChunks {
		t.Fatalf("expected chunks stage event, got %+v", chunksEv)
	}
	chunksPayload, err := decodePayload[ChunksPayload](*chunksEv)
	if err != nil {
		t.Fatalf("decode chunks payload: %v", err)
	}
	if len(chunksPayload.Chunks) == 0 {
		t.Fatal("expected at least one chunk from the transcript")
	}

	enrichmentEv, err := proc.Process(ctx, *chunksEv)
	if err != nil {
		t.Fatalf("enrich stage failed: %v", err)
	}
	enrichmentPayload, err := decodePayload[EnrichmentPayload](*enrichmentEv)
	if err != nil {
		t.Fatalf("decode enrichment payload: %v", err)
	}
	if len(enrichmentPayload.Cards) != len(chunksPayload.Chunks) {
		t.Fatalf("expected one card per chunk, got %d cards for %d chunks", len(enrichmentPayload.Cards), len(chunksPayload.Chunks))
	}
	for _, c := range enrichmentPayload.Cards {
		if c.Summary != "Great spot for a morning walk." {
			t.Errorf("expected card summary from the model stub, got %q", c.Summary)
		}
	}

	embeddingsEv, err := proc.Process(ctx, *enrichmentEv)
	if err != nil {
		t.Fatalf("embed stage failed: %v", err)
	}
	embeddingsPayload, err := decodePayload[EmbeddingsPayload](*embeddingsEv)
	if err != nil {
		t.Fatalf("decode embeddings payload: %v", err)
	}
	if len(embeddingsPayload.CardEmbeddings) != len(enrichmentPayload.Cards) {
		t.Fatalf("expected one embedding per card, got %d for %d cards", len(embeddingsPayload.CardEmbeddings), len(enrichmentPayload.Cards))
	}
	if embeddingsEv.Stage != StageEmbeddings {
		t.Fatalf("expected embeddings stage, got %s", embeddingsEv.Stage)
	}
}

// TestProcessorSkipsAlreadyClaimedStage confirms the idempotency guard
// blocks a second advance into a stage already claimed by a prior delivery,
// without repeating the handler's side effect (the fetch call here).
func TestProcessorSkipsAlreadyClaimedStage(t *testing.T) {
	calls := 0
	fetcher := fakeFetcherFunc(func() ([]TranscriptSegment, map[string]string, error) {
		calls++
		return []TranscriptSegment{{Start: 0, Duration: 5, Text: "short clip"}}, nil, nil
	})

	idem := NewInProcessStore()
	proc := NewProcessor(Deps{Fetcher: fetcher, Idempotency: idem})

	ctx := context.Background()
	ev := Event{ContentSourceID: "youtube:dup", Stage: StageRequested, MaxRetries: 3}
	payload, _ := encodePayload(RequestedPayload{SourceType: SourceYouTube, VideoURL: "https://youtube.com/watch?v=dupdupdu"})
	ev.Payload = payload

	first, err := proc.Process(ctx, ev)
	if err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	if first == nil {
		t.Fatal("expected first delivery to advance")
	}

	second, err := proc.Process(ctx, ev)
	if err != nil {
		t.Fatalf("second process failed: %v", err)
	}
	if second != nil {
		t.Fatalf("expected duplicate delivery to be suppressed, got %+v", second)
	}
	if calls != 1 {
		t.Fatalf("expected fetch to run exactly once, ran %d times", calls)
	}
}

type fakeFetcherFunc func() ([]TranscriptSegment, map[string]string, error)

func (f fakeFetcherFunc) FetchSubtitles(_ context.Context, _ string, _ []string) ([]TranscriptSegment, map[string]string, error) {
	return f()
}

// TestProcessorUnclaimsOnHandlerFailure confirms a failed handler releases
// its claim, letting a later delivery retry the same stage transition.
func TestProcessorUnclaimsOnHandlerFailure(t *testing.T) {
	ctx := context.Background()
	proc := NewProcessor(Deps{Fetcher: &failingFetcher{}})

	ev := Event{ContentSourceID: "youtube:fail", Stage: StageRequested, MaxRetries: 3}
	payload, _ := encodePayload(RequestedPayload{SourceType: SourceYouTube, VideoURL: "https://youtube.com/watch?v=failfailf"})
	ev.Payload = payload

	if _, err := proc.Process(ctx, ev); err == nil {
		t.Fatal("expected the failing fetcher to produce an error")
	}

	// retry with a fetcher that succeeds: must not be blocked by a stale claim
	proc2 := NewProcessor(Deps{Fetcher: &fakeFetcher{segments: []TranscriptSegment{{Start: 0, Duration: 1, Text: "ok"}}}, Idempotency: proc.deps.Idempotency})
	next, err := proc2.Process(ctx, ev)
	if err != nil {
		t.Fatalf("retry after unclaim should succeed, got error: %v", err)
	}
	if next == nil {
		t.Fatal("expected retry to advance the stage")
	}
}

type failingFetcher struct{}

func (f *failingFetcher) FetchSubtitles(_ context.Context, _ string, _ []string) ([]TranscriptSegment, map[string]string, error) {
	return nil, nil, context.DeadlineExceeded
}
