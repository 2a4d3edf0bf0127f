package ingestion

import (
	"context"

	"github.com/tripscoutai/tripscout/engine/modelclient"
)

type productModelRequest struct {
	Task     string   `json:"task"`
	Link     string   `json:"link"`
	Question string   `json:"question"`
	Merchant string   `json:"merchant"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

type productModelResponse struct {
	Summary         string   `json:"summary"`
	PrimaryCategory string   `json:"primary_category"`
	Categories      []string `json:"categories"`
	Confidence      float64  `json:"confidence"`
}

// maxProductSummaryChars bounds the enriched product card summary.
const maxProductSummaryChars = 280

// maxProductCategories bounds how many categories a product card keeps.
const maxProductCategories = 6

// enrichProduct produces one product card per input record. A failed or
// empty model response falls back to a synthesized low-confidence card so
// every input record still yields exactly one card.
func enrichProduct(ctx context.Context, client *modelclient.Client, in ProductInput) ProductCard {
	id := ProductCardID(in.Link, in.Question)
	var resp productModelResponse
	err := client.Call(ctx, productModelRequest{
		Task:     "travel_product_card",
		Link:     in.Link,
		Question: in.Question,
		Merchant: in.Merchant,
		Summary:  in.Summary,
		Keywords: in.Categories,
	}, &resp)
	if err != nil || resp.Summary == "" {
		return ProductCard{
			ID:         id,
			Link:       in.Link,
			Question:   in.Question,
			Summary:    truncate(in.Summary, maxProductSummaryChars),
			Merchant:   in.Merchant,
			Categories: capCategories(in.Categories, maxProductCategories),
			Confidence: 0.2,
		}
	}
	confidence := resp.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return ProductCard{
		ID:              id,
		Link:            in.Link,
		Question:        in.Question,
		Summary:         truncate(resp.Summary, maxProductSummaryChars),
		Merchant:        in.Merchant,
		PrimaryCategory: resp.PrimaryCategory,
		Categories:      capCategories(resp.Categories, maxProductCategories),
		Confidence:      confidence,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func capCategories(cats []string, max int) []string {
	if len(cats) <= max {
		return cats
	}
	return cats[:max]
}
