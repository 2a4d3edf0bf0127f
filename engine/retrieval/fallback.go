package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/tripscoutai/tripscout/engine/cache"
)

// EvidenceFallback returns the empty-but-valid result used when the
// evidence backend is unavailable.
func EvidenceFallback(EvidenceRequest) EvidenceResponse {
	return EvidenceResponse{Cards: []EvidenceCard{}}
}

// EvidenceKey builds the Travel evidence cache key: (user_query,
// destination, lang, strategy_version).
func EvidenceKey(strategyVersion string) func(EvidenceRequest) string {
	return func(r EvidenceRequest) string {
		return cache.Key(r.UserQuery, r.Destination, r.Lang, strategyVersion)
	}
}

// ProductFallback returns the empty-but-valid result used when the product
// backend is unavailable.
func ProductFallback(ProductRequest) ProductResponse {
	return ProductResponse{Candidates: []ProductCandidate{}}
}

// ProductKey builds the Product candidates cache key: (query_signature,
// market, destination, lang). min_confidence is deliberately excluded so
// tighter thresholds reuse looser cached results.
func ProductKey(r ProductRequest) string {
	return cache.Key(r.QuerySignature, r.Market, r.Destination, r.Lang)
}

// FilterByMinConfidence applies the post-backend, post-cache min_confidence
// filter to a cached or fresh ProductResponse, never mutating the cached
// value itself.
func FilterByMinConfidence(resp ProductResponse, minConfidence float64) ProductResponse {
	if minConfidence <= 0 {
		return resp
	}
	filtered := make([]ProductCandidate, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		if c.Confidence >= minConfidence {
			filtered = append(filtered, c)
		}
	}
	return ProductResponse{Candidates: filtered}
}

// GraphFallback returns a valid minimal mock subgraph (one node, one edge
// with placeholder evidence) so downstream assembly still passes contract
// when the graph backend is unavailable.
func GraphFallback(GraphRequest) GraphResponse {
	return GraphResponse{
		Subgraph: GraphSubgraph{
			Nodes: []GraphNode{{ID: "mock-node", Type: "poi", Name: "Unknown"}},
			Edges: []GraphEdge{{
				Type:   "IN_AREA",
				Source: "mock-node",
				Target: "mock-node",
				Evidence: []GraphEdgeEvidence{{
					TimestampURL: "",
				}},
			}},
		},
	}
}

// GraphKey builds the Travel graph cache key: (user_query, destination,
// lang).
func GraphKey(r GraphRequest) string {
	return cache.Key(r.UserQuery, r.Destination, r.Lang)
}

// VisionFallback returns confidence=0 with the requested mode echoed and an
// error set, per §4.5's "on any decode failure" rule.
func VisionFallback(reason string) func(VisionRequest) VisionResponse {
	return func(r VisionRequest) VisionResponse {
		return VisionResponse{Mode: r.Mode, Signals: VisionSignals{}, Confidence: 0, Error: reason}
	}
}

// VisionKey builds the Vision cache key:
// (sha256(image_ref)[:32], mode, canonical_json(trip_context)).
func VisionKey(r VisionRequest) string {
	sum := sha256.Sum256([]byte(r.ImageRef))
	imgHash := hex.EncodeToString(sum[:])[:32]
	return cache.Key(imgHash, string(r.Mode), canonicalJSON(r.TripContext))
}

// canonicalJSON renders a map with sorted keys so that equivalent
// trip_context objects produce identical cache keys regardless of Go map
// iteration order.
func canonicalJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]struct {
		K string `json:"k"`
		V any    `json:"v"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].K = k
		ordered[i].V = m[k]
	}
	data, _ := json.Marshal(ordered)
	return string(data)
}

// STTFallback returns a schema-valid response with empty transcript and an
// error string, per §4.5's STT specifics.
func STTFallback(reason string) func(STTRequest) STTResponse {
	return func(STTRequest) STTResponse {
		return STTResponse{Transcript: "", Error: reason}
	}
}

// TTSFallback always returns a non-empty audio_ref placeholder (the
// contract requires minLength >= 1) with Error set.
func TTSFallback(reason string) func(TTSRequest) TTSResponse {
	return func(r TTSRequest) TTSResponse {
		format := r.Format
		if format == "" {
			format = "mp3"
		}
		return TTSResponse{
			AudioRef: "data:audio/" + format + ";base64,AA==",
			Format:   format,
			Error:    reason,
		}
	}
}
