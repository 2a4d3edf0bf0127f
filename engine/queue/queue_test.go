package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/tripscoutai/tripscout/engine/ingestion"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

type stubFetcher struct{}

func (stubFetcher) FetchSubtitles(_ context.Context, _ string, _ []string) ([]ingestion.TranscriptSegment, map[string]string, error) {
	return []ingestion.TranscriptSegment{{Start: 0, Duration: 5, Text: "hello from the queue test"}}, nil, nil
}

func newTestProcessor() *ingestion.Processor {
	return ingestion.NewProcessor(ingestion.Deps{Fetcher: stubFetcher{}})
}

func TestWorkerAdvancesAndRepublishes(t *testing.T) {
	nc := startTestNATS(t)
	proc := newTestProcessor()
	worker := NewWorker(nc, proc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := worker.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sub.Unsubscribe()

	verify, err := nc.SubscribeSync(InputSubject)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer verify.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	payload := map[string]any{"source_type": ingestion.SourceYouTube, "video_url": "https://youtube.com/watch?v=queueq1"}
	ev := ingestion.Event{EventID: "ev-1", ContentSourceID: "youtube:queueq1", Stage: ingestion.StageRequested, Payload: payload, MaxRetries: 3}
	if err := Enqueue(nc, ev); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	// the observer subscription sees the original enqueued message too
	// (core NATS fans out every publish to every subscriber on the
	// subject), so the first NextMsg is the input we just published, not
	// the worker's republish.
	original, err := verify.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("expected to observe the original enqueued message: %v", err)
	}
	var originalEv ingestion.Event
	if err := json.Unmarshal(original.Data, &originalEv); err != nil {
		t.Fatalf("unmarshal original event: %v", err)
	}
	if originalEv.Stage != ingestion.StageRequested {
		t.Fatalf("expected the first observed message to be the original requested-stage event, got stage %s", originalEv.Stage)
	}

	msg, err := verify.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("expected a republished message advancing the stage: %v", err)
	}
	var next ingestion.Event
	if err := json.Unmarshal(msg.Data, &next); err != nil {
		t.Fatalf("unmarshal republished event: %v", err)
	}
	if next.Stage != ingestion.StageTranscript {
		t.Errorf("expected stage to advance to transcript, got %s", next.Stage)
	}
	if next.ContentSourceID != ev.ContentSourceID {
		t.Errorf("expected content source id to be preserved, got %s", next.ContentSourceID)
	}
}

type alwaysFailFetcher struct{}

func (alwaysFailFetcher) FetchSubtitles(_ context.Context, _ string, _ []string) ([]ingestion.TranscriptSegment, map[string]string, error) {
	return nil, nil, errFetchAlwaysFails
}

var errFetchAlwaysFails = &fetchError{"fetch always fails"}

type fetchError struct{ msg string }

func (e *fetchError) Error() string { return e.msg }

func TestWorkerRetriesThenMovesToDLQ(t *testing.T) {
	nc := startTestNATS(t)
	proc := ingestion.NewProcessor(ingestion.Deps{Fetcher: alwaysFailFetcher{}})
	worker := NewWorker(nc, proc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sub, err := worker.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer sub.Unsubscribe()

	dlqSub, err := nc.SubscribeSync(DLQSubject)
	if err != nil {
		t.Fatalf("subscribe to dlq failed: %v", err)
	}
	defer dlqSub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	payload := map[string]any{"source_type": ingestion.SourceYouTube, "video_url": "https://youtube.com/watch?v=failfail1"}
	ev := ingestion.Event{EventID: "ev-2", ContentSourceID: "youtube:failfail1", Stage: ingestion.StageRequested, Payload: payload, RetryCount: 2, MaxRetries: 3}
	if err := Enqueue(nc, ev); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	msg, err := dlqSub.NextMsg(3 * time.Second)
	if err != nil {
		t.Fatalf("expected the exhausted event to land on the dlq: %v", err)
	}
	var dead ingestion.Event
	if err := json.Unmarshal(msg.Data, &dead); err != nil {
		t.Fatalf("unmarshal dlq event: %v", err)
	}
	if dead.RetryCount != 3 {
		t.Errorf("expected retry_count to reach max_retries (3), got %d", dead.RetryCount)
	}
	if dead.EventID != "ev-2" {
		t.Errorf("expected original event id to be preserved into the dlq, got %s", dead.EventID)
	}
}

func TestReplayDrainsDLQIntoInputInFIFOOrder(t *testing.T) {
	nc := startTestNATS(t)

	inputSub, err := nc.SubscribeSync(InputSubject)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer inputSub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	ids := []string{"first", "second", "third"}
	for _, id := range ids {
		ev := ingestion.Event{EventID: id, ContentSourceID: "youtube:" + id, Stage: ingestion.StageRequested, RetryCount: 3, MaxRetries: 3}
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if err := nc.Publish(DLQSubject, data); err != nil {
			t.Fatalf("publish to dlq failed: %v", err)
		}
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	count, err := Replay(nc, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if count != len(ids) {
		t.Fatalf("expected %d replayed messages, got %d", len(ids), count)
	}

	for _, wantID := range ids {
		msg, err := inputSub.NextMsg(2 * time.Second)
		if err != nil {
			t.Fatalf("expected replayed message for %s: %v", wantID, err)
		}
		var ev ingestion.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatalf("unmarshal replayed event: %v", err)
		}
		if ev.EventID != wantID {
			t.Errorf("expected FIFO replay order, wanted %s next, got %s", wantID, ev.EventID)
		}
	}
}
