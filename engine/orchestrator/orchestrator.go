// Package orchestrator implements the Agent orchestrator (C8): fan-out to
// six knowledge/retrieval services under a shared deadline, deterministic
// merge, guardrails, and timing/tracing.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tripscoutai/tripscout/engine/errs"
	"github.com/tripscoutai/tripscout/engine/guardrails"
	"github.com/tripscoutai/tripscout/engine/retrieval"
	"github.com/tripscoutai/tripscout/engine/session"
	"github.com/tripscoutai/tripscout/pkg/obslog"
)

// ServiceURLs resolves each downstream retrieval service's /mcp/<operation>
// endpoint, overridable per-service via configuration.
type ServiceURLs struct {
	Evidence string
	Products string
	Graph    string
	Vision   string
	STT      string
	TTS      string
}

// RequestDeadline is the shared deadline budget for a whole turn.
const RequestDeadline = 8 * time.Second

// Orchestrator owns the per-request fan-out/merge/guardrail pipeline.
type Orchestrator struct {
	Pool     *retrieval.ClientPool
	URLs     ServiceURLs
	Sessions *session.Store
	Tracer   *Tracer
	Log      *slog.Logger
}

// New creates an Orchestrator.
func New(pool *retrieval.ClientPool, urls ServiceURLs, sessions *session.Store, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		Pool:     pool,
		URLs:     urls,
		Sessions: sessions,
		Tracer:   NewTracer("engine/orchestrator"),
		Log:      log,
	}
}

// HandleTurn implements §4.8's routing, fan-out, and assembly rules for one
// user turn. Branch failures never surface as errors; the only error
// returned is an implementation-bug outbound contract violation.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	start := time.Now()
	var timing Timing

	queryHash := obslog.QueryHash(req.UserQuery, 16)
	ctx, end := o.Tracer.Span(ctx, "orchestrator.handle_turn", map[string]string{
		"session_id":      req.SessionID,
		"request_id":      req.RequestID,
		"user_query_hash": queryHash,
	})
	defer end()

	ctx, cancel := context.WithTimeout(ctx, RequestDeadline)
	defer cancel()

	userQuery := req.UserQuery

	// STT first: replace the user query with the transcript before routing.
	if req.AudioRef != "" {
		sttStart := time.Now()
		sttResp := o.callSTT(ctx, retrieval.STTRequest{AudioRef: req.AudioRef, Language: req.Lang})
		timing.STTMS = msSince(sttStart)
		if sttResp.Transcript != "" {
			userQuery = sttResp.Transcript
		}
	}

	// Session memory updated before fan-out so memory effects are visible to
	// the first call.
	o.Sessions.Update(req.SessionID, userQuery)
	memoryHash := o.Sessions.MemoryHash(req.SessionID, 8)

	wantGraph := isItineraryQuery(userQuery)
	wantVision := req.ImageRef != ""
	mode := visionMode(userQuery)

	// Each branch is an independent suspension point under the shared
	// deadline: one branch's failure (or absence) never blocks or cancels
	// another's.
	var (
		wg     sync.WaitGroup
		evResp retrieval.EvidenceResponse
		evMS   float64
		grResp retrieval.GraphResponse
		grMS   float64
		viResp *retrieval.VisionResponse
		viMS   float64
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		t0 := time.Now()
		evResp = o.callEvidence(ctx, retrieval.EvidenceRequest{UserQuery: userQuery, Destination: req.Destination, Lang: req.Lang})
		evMS = msSince(t0)
	}()

	if wantGraph {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t0 := time.Now()
			grResp = o.callGraph(ctx, retrieval.GraphRequest{UserQuery: userQuery, Destination: req.Destination, Lang: req.Lang})
			grMS = msSince(t0)
		}()
	}

	if wantVision {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t0 := time.Now()
			resp := o.callVision(ctx, retrieval.VisionRequest{
				ImageRef:    req.ImageRef,
				Mode:        mode,
				TripContext: req.TripContext,
				UserQuery:   userQuery,
				Lang:        req.Lang,
			})
			viResp = &resp
			viMS = msSince(t0)
		}()
	}

	wg.Wait()

	timing.KnowledgeMS = evMS
	if wantGraph {
		timing.GraphMS = grMS
	}
	if wantVision {
		timing.VisionMS = viMS
	}

	// Product query signature, possibly overridden by vision output.
	sig := productQuerySignature(req.Destination, userQuery, req.Lang, memoryHash)
	if viResp != nil {
		v := viResp
		if v.Mode == retrieval.VisionProductSimilarity && v.Signals.FirstSearchQuery != "" {
			sig = req.Destination + ":" + v.Signals.FirstSearchQuery + ":" + req.Lang
		} else if v.Mode == retrieval.VisionPacking &&
			v.Signals.SuitabilityOK != nil && !*v.Signals.SuitabilityOK &&
			len(v.Signals.SuggestedCategoriesForProducts) > 0 {
			sig = req.Destination + ":" + v.Signals.SuggestedCategoriesForProducts[0] + ":" + req.Lang
		}
	}

	t0 := time.Now()
	productResp := o.callProducts(ctx, retrieval.ProductRequest{QuerySignature: sig, Destination: req.Destination, Lang: req.Lang})
	timing.ProductsMS = msSince(t0)

	// Assembly, deterministic order regardless of completion order:
	// vision -> evidence -> graph.
	visionText := ""
	if viResp != nil {
		visionText = visionPrefix(*viResp)
	}
	knowledgeText, knowledgeCites := knowledgeBranch(evResp)
	graphText, graphCites := "", []string(nil)
	if wantGraph {
		graphText, graphCites = graphBranch(grResp)
	}

	answerText := assembleAnswer(visionText, knowledgeText, graphText)
	citations := append(append([]string{}, knowledgeCites...), graphCites...)

	var addon *guardrails.Addon
	if wantsAddon(userQuery, viResp, productResp.Candidates) {
		top := productResp.Candidates[0]
		addon = &guardrails.Addon{
			ProductID:       top.ProductID,
			Summary:         top.Summary,
			Link:            top.Link,
			Merchant:        top.Merchant,
			PrimaryCategory: top.PrimaryCategory,
			Categories:      top.Categories,
		}
	}

	rewritten := guardrails.Apply(userQuery, guardrails.Response{
		AnswerText: answerText,
		Citations:  citations,
		Addon:      addon,
	})

	resp := TurnResponse{
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
		AnswerText: rewritten.AnswerText,
		Citations:  rewritten.Citations,
	}
	if rewritten.Addon != nil {
		resp.Addon = &Addon{
			ProductID: rewritten.Addon.ProductID,
			Summary:   rewritten.Addon.Summary,
			Link:      rewritten.Addon.Link,
			Merchant:  rewritten.Addon.Merchant,
		}
	}

	if req.VoiceMode {
		ttsStart := time.Now()
		spoken := truncateWords(rewritten.AnswerText, spokenWordLimit(userQuery))
		ttsResp := o.callTTS(ctx, retrieval.TTSRequest{Text: spoken})
		resp.AudioRef = ttsResp.AudioRef
		timing.TTSMS = msSince(ttsStart)
	}

	timing.TotalMS = msSince(start)
	o.Log.Info("orchestrator turn",
		"phase", "answer_generation",
		"query_hash", queryHash,
		"session_id", req.SessionID,
		"request_id", req.RequestID,
		"total_ms", timing.TotalMS,
	)

	return resp, nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}

func (o *Orchestrator) callEvidence(ctx context.Context, req retrieval.EvidenceRequest) retrieval.EvidenceResponse {
	var resp retrieval.EvidenceResponse
	if o.URLs.Evidence == "" {
		return retrieval.EvidenceFallback(req)
	}
	if err := o.Pool.Call(ctx, "evidence", o.URLs.Evidence, retrieval.DefaultDeadline, req, &resp); err != nil {
		return retrieval.EvidenceFallback(req)
	}
	return resp
}

func (o *Orchestrator) callGraph(ctx context.Context, req retrieval.GraphRequest) retrieval.GraphResponse {
	var resp retrieval.GraphResponse
	if o.URLs.Graph == "" {
		return retrieval.GraphFallback(req)
	}
	if err := o.Pool.Call(ctx, "graph", o.URLs.Graph, retrieval.DefaultDeadline, req, &resp); err != nil {
		return retrieval.GraphFallback(req)
	}
	return resp
}

func (o *Orchestrator) callVision(ctx context.Context, req retrieval.VisionRequest) retrieval.VisionResponse {
	var resp retrieval.VisionResponse
	if o.URLs.Vision == "" {
		return retrieval.VisionFallback(errs.ErrUpstreamUnavailable.Error())(req)
	}
	if err := o.Pool.Call(ctx, "vision", o.URLs.Vision, retrieval.MediaDeadline, req, &resp); err != nil {
		return retrieval.VisionFallback(err.Error())(req)
	}
	return resp
}

func (o *Orchestrator) callProducts(ctx context.Context, req retrieval.ProductRequest) retrieval.ProductResponse {
	var resp retrieval.ProductResponse
	if o.URLs.Products == "" {
		return retrieval.ProductFallback(req)
	}
	if err := o.Pool.Call(ctx, "products", o.URLs.Products, retrieval.DefaultDeadline, req, &resp); err != nil {
		return retrieval.ProductFallback(req)
	}
	return retrieval.FilterByMinConfidence(resp, req.MinConfidence)
}

func (o *Orchestrator) callSTT(ctx context.Context, req retrieval.STTRequest) retrieval.STTResponse {
	var resp retrieval.STTResponse
	if o.URLs.STT == "" {
		return retrieval.STTFallback(errs.ErrUpstreamUnavailable.Error())(req)
	}
	if err := o.Pool.Call(ctx, "stt", o.URLs.STT, retrieval.MediaDeadline, req, &resp); err != nil {
		return retrieval.STTFallback(err.Error())(req)
	}
	return resp
}

func (o *Orchestrator) callTTS(ctx context.Context, req retrieval.TTSRequest) retrieval.TTSResponse {
	var resp retrieval.TTSResponse
	if o.URLs.TTS == "" {
		return retrieval.TTSFallback(errs.ErrUpstreamUnavailable.Error())(req)
	}
	if err := o.Pool.Call(ctx, "tts", o.URLs.TTS, retrieval.MediaDeadline, req, &resp); err != nil {
		return retrieval.TTSFallback(err.Error())(req)
	}
	return resp
}
