package orchestrator

import (
	"fmt"
	"strings"

	"github.com/tripscoutai/tripscout/engine/retrieval"
)

const emptyResultSentence = "No travel evidence found for your query."

// knowledgeBranch concatenates evidence summaries with a single space;
// citations are each evidence item's source_url in order.
func knowledgeBranch(resp retrieval.EvidenceResponse) (text string, citations []string) {
	parts := make([]string, 0, len(resp.Cards))
	for _, c := range resp.Cards {
		if c.Summary != "" {
			parts = append(parts, c.Summary)
		}
		if c.SourceURL != "" {
			citations = append(citations, c.SourceURL)
		}
	}
	return strings.Join(parts, " "), citations
}

// graphBranch appends up to three narrative path lines, then collects
// timestampUrls from path evidence and from subgraph edges (in that order).
func graphBranch(resp retrieval.GraphResponse) (text string, citations []string) {
	nodeNames := make(map[string]string, len(resp.Subgraph.Nodes))
	for _, n := range resp.Subgraph.Nodes {
		nodeNames[n.ID] = n.Name
	}

	lines := make([]string, 0, 3)
	paths := resp.Paths
	if len(paths) > 3 {
		paths = paths[:3]
	}
	for _, p := range paths {
		names := make([]string, 0, len(p.NodeIDs))
		for _, id := range p.NodeIDs {
			if name, ok := nodeNames[id]; ok && name != "" {
				names = append(names, name)
			} else {
				names = append(names, id)
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %s", p.Label, strings.Join(names, ", ")))
		for _, ev := range p.Evidence {
			if ev.TimestampURL != "" {
				citations = append(citations, ev.TimestampURL)
			}
		}
	}
	for _, e := range resp.Subgraph.Edges {
		for _, ev := range e.Evidence {
			if ev.TimestampURL != "" {
				citations = append(citations, ev.TimestampURL)
			}
		}
	}

	return strings.Join(lines, " "), citations
}

// visionPrefix produces a mode-dependent sentence prefix, placed before
// knowledge text.
func visionPrefix(resp retrieval.VisionResponse) string {
	switch resp.Mode {
	case retrieval.VisionPacking:
		if resp.Signals.SuitabilityOK == nil {
			return ""
		}
		if !*resp.Signals.SuitabilityOK {
			issue := resp.Signals.Issue
			if issue == "" {
				issue = "it may not be suitable"
			}
			suggestion := ""
			if len(resp.Signals.SuggestedCategoriesForProducts) > 0 {
				suggestion = " Consider: " + strings.Join(resp.Signals.SuggestedCategoriesForProducts, ", ") + "."
			}
			return "This outfit may not be suitable: " + issue + "." + suggestion
		}
		return "This outfit looks suitable for your trip."
	case retrieval.VisionLandmark:
		if resp.Signals.LandmarkName == "" {
			return ""
		}
		if resp.Confidence >= 0.7 {
			return "This looks like " + resp.Signals.LandmarkName + "."
		}
		return "This might be " + resp.Signals.LandmarkName + ", but I'm not fully sure."
	case retrieval.VisionProductSimilarity:
		if len(resp.Signals.PlaceCandidates) == 0 {
			return ""
		}
		return "This looks similar to: " + strings.Join(resp.Signals.PlaceCandidates, ", ") + "."
	}
	return ""
}

// assembleAnswer combines vision prefix + knowledge text + graph narrative,
// skipping empty parts, falling back to the fixed empty-result sentence
// when nothing is present.
func assembleAnswer(vision, knowledge, graph string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{vision, knowledge, graph} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return emptyResultSentence
	}
	return strings.Join(parts, " ")
}

// wantsAddon decides whether to include the top product as addon: the
// query is commercial, OR vision mode is product_similarity with
// candidates present, OR packing vision proposes a gap that maps to
// candidates.
func wantsAddon(userQuery string, visionResp *retrieval.VisionResponse, products []retrieval.ProductCandidate) bool {
	if len(products) == 0 {
		return false
	}
	if isCommercialQuery(userQuery) {
		return true
	}
	if visionResp == nil {
		return false
	}
	if visionResp.Mode == retrieval.VisionProductSimilarity && len(visionResp.Signals.PlaceCandidates) > 0 {
		return true
	}
	if visionResp.Mode == retrieval.VisionPacking &&
		visionResp.Signals.SuitabilityOK != nil && !*visionResp.Signals.SuitabilityOK &&
		len(visionResp.Signals.SuggestedCategoriesForProducts) > 0 {
		return true
	}
	return false
}
