// Package guardrails post-processes an assembled orchestrator response
// against the user query. Guardrails are deterministic and
// language-agnostic; they mutate only answer_text, citations, and addon.
package guardrails

import (
	"regexp"
	"strings"
)

// SafeFallbackAnswer replaces an unattributed factual claim.
const SafeFallbackAnswer = "Não tenho fontes suficientes para confirmar essas informações."

// Addon is the optional commercial product attached to an assembled answer.
type Addon struct {
	ProductID       string
	Summary         string
	Link            string
	Merchant        string
	PrimaryCategory string
	Categories      []string
}

// Response is the subset of the assembled orchestrator response guardrails
// operate on.
type Response struct {
	AnswerText string
	Citations  []string
	Addon      *Addon
}

var (
	currencyRe = regexp.MustCompile(`(?i)(R\$|USD|BRL)\s*\d|\$\s*\d`)
	dateRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d+\s*(am|pm|h|horas)\b`)
	modalRe    = regexp.MustCompile(`(?i)\bmust\b|\brequires?\b|\brule\b`)
	sourceRe   = regexp.MustCompile(`\(Source:`)
)

// hasUnattributedFactualClaim reports whether text trips any of the four
// factual-pattern classes that require a citation.
func hasUnattributedFactualClaim(text string) bool {
	return currencyRe.MatchString(text) ||
		dateRe.MatchString(text) ||
		modalRe.MatchString(text) ||
		sourceRe.MatchString(text)
}

// bucketKeywords maps each commercial addon bucket to its vocabulary, used
// both to infer an addon's bucket and to test whether the user query
// mentions it.
var bucketKeywords = map[string][]string{
	"tickets":   {"ticket", "ingresso", "entrada", "pass", "admission"},
	"hotel":     {"hotel", "hospedagem", "stay", "accommodation", "resort"},
	"insurance": {"insurance", "seguro", "seguro viagem"},
	"esim":      {"esim", "sim card", "data plan", "roaming"},
	"transport": {"transport", "transporte", "shuttle", "transfer", "uber", "taxi"},
	"planner":   {"itinerary", "roteiro", "planner", "plan my trip"},
	"shopping":  {"buy", "comprar", "shop", "loja", "store"},
}

// inferBucket matches summary + primary_category + merchant + categories
// against the bucket vocabulary table, returning the first bucket whose
// keywords appear anywhere in that combined text.
func inferBucket(a *Addon) string {
	haystack := strings.ToLower(strings.Join(append([]string{a.Summary, a.PrimaryCategory, a.Merchant}, a.Categories...), " "))
	for _, bucket := range bucketOrder {
		for _, kw := range bucketKeywords[bucket] {
			if strings.Contains(haystack, kw) {
				return bucket
			}
		}
	}
	return ""
}

var bucketOrder = []string{"tickets", "hotel", "insurance", "esim", "transport", "planner", "shopping"}

// queryMentionsBucket reports whether the normalized user query contains
// any of the bucket's vocabulary. An addon that maps to no known commercial
// bucket (e.g. a vision-driven gear recommendation) is outside this
// guardrail's vocabulary and is treated as always mentioned.
func queryMentionsBucket(userQuery, bucket string) bool {
	if bucket == "" {
		return true
	}
	q := strings.ToLower(userQuery)
	for _, kw := range bucketKeywords[bucket] {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Apply runs both guardrail rules against resp, given the original user
// query, and returns the (possibly rewritten) response.
func Apply(userQuery string, resp Response) Response {
	out := resp

	if len(out.Citations) == 0 && hasUnattributedFactualClaim(out.AnswerText) {
		out.AnswerText = SafeFallbackAnswer
		out.Citations = nil
	}

	if out.Addon != nil {
		bucket := inferBucket(out.Addon)
		if !queryMentionsBucket(userQuery, bucket) {
			out.Addon = nil
		}
	}

	return out
}
