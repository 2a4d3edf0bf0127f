package ingestion

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tripscoutai/tripscout/engine/modelclient"
)

// allowedNodeTypes is the fixed set youtube_kg extraction is filtered to.
var allowedNodeTypes = map[string]bool{
	"city": true, "place": true, "poi": true, "itinerary": true,
	"dayplan": true, "activity_type": true, "advice": true, "constraint": true,
}

// allowedEdgeTypes is the fixed set youtube_kg extraction is filtered to.
var allowedEdgeTypes = map[string]bool{
	"ITINERARY_FOR": true, "HAS_DAY": true, "INCLUDES_POI": true, "IN_AREA": true,
	"ORDER_BEFORE": true, "CLUSTERED_BY": true, "SUGGESTED_DAYS": true,
	"HAS_ACTIVITY_TYPE": true, "HAS_ADVICE": true, "HAS_CONSTRAINT": true,
}

type graphModelRequest struct {
	Task      string   `json:"task"`
	Text      string   `json:"text"`
	NodeTypes []string `json:"node_types"`
	EdgeTypes []string `json:"edge_types"`
}

type graphModelNode struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Aliases    []string          `json:"aliases"`
	Properties map[string]string `json:"properties"`
}

type graphModelEdge struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type graphModelResponse struct {
	Nodes []graphModelNode `json:"nodes"`
	Edges []graphModelEdge `json:"edges"`
}

// extractGraphFragment asks the model to extract nodes/edges strictly
// grounded in chunk.Text, then filters to the allow-listed types and drops
// any node whose name does not actually appear in the source text (a
// lightweight grounding check since the model's extraction isn't otherwise
// verifiable here).
func extractGraphFragment(ctx context.Context, client *modelclient.Client, videoID string, chunk Chunk) ([]GraphNode, []GraphEdge) {
	var resp graphModelResponse
	if err := client.Call(ctx, graphModelRequest{
		Task:      "travel_graph_extraction",
		Text:      chunk.Text,
		NodeTypes: sortedKeys(allowedNodeTypes),
		EdgeTypes: sortedKeys(allowedEdgeTypes),
	}, &resp); err != nil {
		return nil, nil
	}

	lowerText := strings.ToLower(chunk.Text)
	kept := map[string]bool{}
	var nodes []GraphNode
	for _, n := range resp.Nodes {
		if !allowedNodeTypes[n.Type] || n.ID == "" || n.Name == "" {
			continue
		}
		if !strings.Contains(lowerText, strings.ToLower(n.Name)) {
			continue
		}
		kept[n.ID] = true
		nodes = append(nodes, GraphNode{
			ID:         n.ID,
			Type:       n.Type,
			Name:       n.Name,
			Aliases:    n.Aliases,
			Properties: n.Properties,
		})
	}

	var edges []GraphEdge
	for _, e := range resp.Edges {
		if !allowedEdgeTypes[e.Type] || !kept[e.Source] || !kept[e.Target] {
			continue
		}
		edges = append(edges, GraphEdge{
			Type:     e.Type,
			Source:   e.Source,
			Target:   e.Target,
			StartSec: chunk.StartSec,
			EndSec:   chunk.EndSec,
		})
	}

	return nodes, edges
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// mergeGraph dedupes node/edge fragments extracted independently per
// chunk: nodes merge by id (aliases become the sorted union, properties
// keep first-seen values), edges dedupe by (type, source, target,
// startSec, endSec).
func mergeGraph(nodeBatches [][]GraphNode, edgeBatches [][]GraphEdge) ([]GraphNode, []GraphEdge) {
	nodeIndex := map[string]*GraphNode{}
	var nodeOrder []string
	aliasSets := map[string]map[string]bool{}

	for _, batch := range nodeBatches {
		for _, n := range batch {
			existing, ok := nodeIndex[n.ID]
			if !ok {
				cp := n
				cp.Aliases = nil
				nodeIndex[n.ID] = &cp
				nodeOrder = append(nodeOrder, n.ID)
				aliasSets[n.ID] = map[string]bool{}
				existing = nodeIndex[n.ID]
			}
			for _, a := range n.Aliases {
				aliasSets[n.ID][a] = true
			}
			if existing.Properties == nil && n.Properties != nil {
				existing.Properties = make(map[string]string, len(n.Properties))
			}
			for k, v := range n.Properties {
				if _, seen := existing.Properties[k]; !seen {
					existing.Properties[k] = v
				}
			}
		}
	}

	nodes := make([]GraphNode, 0, len(nodeOrder))
	sort.Strings(nodeOrder)
	for _, id := range nodeOrder {
		n := *nodeIndex[id]
		aliases := sortedKeysString(aliasSets[id])
		n.Aliases = aliases
		nodes = append(nodes, n)
	}

	edgeIndex := map[string]bool{}
	var edges []GraphEdge
	for _, batch := range edgeBatches {
		for _, e := range batch {
			k := fmt.Sprintf("%s|%s|%s|%g|%g", e.Type, e.Source, e.Target, e.StartSec, e.EndSec)
			if edgeIndex[k] {
				continue
			}
			edgeIndex[k] = true
			edges = append(edges, e)
		}
	}

	return nodes, edges
}

func sortedKeysString(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
