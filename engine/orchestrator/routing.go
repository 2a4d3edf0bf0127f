package orchestrator

import (
	"strings"

	"github.com/tripscoutai/tripscout/engine/retrieval"
)

var itineraryKeywords = []string{
	"itinerary", "routes", "route", "day 1", "3-day", "week", "roteiro", "itinerário",
}

func isItineraryQuery(userQuery string) bool {
	q := strings.ToLower(userQuery)
	for _, kw := range itineraryKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

var productSimilarityKeywords = []string{"similar", "like this", "parecido", "parecido com", "onde comprar isso"}
var landmarkKeywords = []string{"what is this", "what landmark", "que lugar é esse", "o que é isso", "identify this place"}

// visionMode derives the vision mode from the query: product_similarity
// keywords take priority over landmark keywords, falling back to packing.
func visionMode(userQuery string) retrieval.VisionMode {
	q := strings.ToLower(userQuery)
	for _, kw := range productSimilarityKeywords {
		if strings.Contains(q, kw) {
			return retrieval.VisionProductSimilarity
		}
	}
	for _, kw := range landmarkKeywords {
		if strings.Contains(q, kw) {
			return retrieval.VisionLandmark
		}
	}
	return retrieval.VisionPacking
}

var commercialKeywords = []string{
	"buy", "book", "hotel", "ticket", "tour", "comprar", "reservar", "ingresso", "hospedagem",
}

func isCommercialQuery(userQuery string) bool {
	q := strings.ToLower(userQuery)
	for _, kw := range commercialKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// productQuerySignature builds the product query signature per §4.8:
// destination:user_query[:100]:lang, truncated to 200 chars, optionally
// suffixed |mem:<memory_hash>.
func productQuerySignature(destination, userQuery, lang, memoryHash string) string {
	truncatedQuery := userQuery
	if len(truncatedQuery) > 100 {
		truncatedQuery = truncatedQuery[:100]
	}
	sig := destination + ":" + truncatedQuery + ":" + lang
	if len(sig) > 200 {
		sig = sig[:200]
	}
	if memoryHash != "" {
		sig += "|mem:" + memoryHash
	}
	return sig
}

// truncateWords truncates s to at most n words on whitespace boundaries,
// used to derive the spoken (TTS) version of answer_text.
func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}

const (
	quickSpokenWords  = 25
	normalSpokenWords = 60
)

var urgencyKeywords = []string{"urgent", "quick", "fast", "hurry", "rápido", "urgente"}

// isUrgentQuery reports whether userQuery carries an urgency cue, selecting
// the quick (25-word) spoken truncation instead of the normal (60-word) one.
func isUrgentQuery(userQuery string) bool {
	q := strings.ToLower(userQuery)
	for _, kw := range urgencyKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// spokenWordLimit picks quickSpokenWords or normalSpokenWords per userQuery.
func spokenWordLimit(userQuery string) int {
	if isUrgentQuery(userQuery) {
		return quickSpokenWords
	}
	return normalSpokenWords
}
