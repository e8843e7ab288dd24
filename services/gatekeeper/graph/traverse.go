// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph traverses the approved relation graph and derives
// per-response argument chains from used edges.
//
// Traversal has two modes. Permissive mode walks any approved edge.
// Grounded mode only walks edges that carry at least one justification
// span - an approved edge nobody has justified is invisible, which is
// what makes graph-backed claims auditable.
package graph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
)

var graphTracer = otel.Tracer("aleutian.gatekeeper.graph")

// =============================================================================
// Types
// =============================================================================

// PathStep is one node on a traversal path. ViaRelation is empty on the
// first step and names the relation that reached the node otherwise.
type PathStep struct {
	NodeType    string `json:"node_type"`
	NodeID      string `json:"node_id"`
	ViaRelation string `json:"via_relation,omitempty"`
}

// PathResult is the outcome of a shortest-path search.
type PathResult struct {
	Found bool       `json:"found"`
	Path  []PathStep `json:"path"`
}

// Traverser runs BFS over the approved graph through the evidence store.
type Traverser struct {
	store store.EvidenceStore
}

// NewTraverser creates a traverser over the given store.
func NewTraverser(s store.EvidenceStore) *Traverser {
	return &Traverser{store: s}
}

// =============================================================================
// Traversal
// =============================================================================

// ShortestPath finds the shortest approved-edge path between two nodes.
//
// # Description
//
// Standard BFS over a bidirectional adjacency: the neighbor lookup
// queries both edge directions, so edges are walkable either way. With
// requireGrounded set, an edge is only enqueued when it has at least one
// recorded justification span. Paths are reconstructed from a
// predecessor map.
//
// # Inputs
//
//   - ctx: Request context; store lookups respect cancellation.
//   - startNode, targetNode: "{type}:{id}" node identifiers.
//   - maxDepth: Maximum number of hops. Paths longer than this are not
//     found.
//   - relTypes: Optional relation-type filter; nil walks all relations.
//   - requireGrounded: Restrict traversal to justified edges.
//
// # Outputs
//
//   - PathResult: Found=false with an empty path when no path exists
//     within maxDepth. When startNode == targetNode the result is the
//     trivial single-node path with an empty ViaRelation.
//   - error: Non-nil only on store failure.
func (t *Traverser) ShortestPath(ctx context.Context, startNode, targetNode string, maxDepth int, relTypes []string, requireGrounded bool) (PathResult, error) {
	ctx, span := graphTracer.Start(ctx, "Traverser.ShortestPath")
	defer span.End()
	span.SetAttributes(
		attribute.String("graph.start", startNode),
		attribute.String("graph.target", targetNode),
		attribute.Int("graph.max_depth", maxDepth),
		attribute.Bool("graph.require_grounded", requireGrounded),
	)

	if startNode == targetNode {
		nodeType, nodeID := datatypes.ParseNode(startNode)
		return PathResult{Found: true, Path: []PathStep{{NodeType: nodeType, NodeID: nodeID}}}, nil
	}

	preds := map[string]pred{startNode: {}}
	frontier := []string{startNode}
	groundedCache := make(map[string]bool)

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, node := range frontier {
			nodeType, nodeID := datatypes.ParseNode(node)
			neighbors, err := t.store.GetApprovedEdgeNeighbors(ctx, nodeType, nodeID, relTypes)
			if err != nil {
				return PathResult{}, fmt.Errorf("neighbor lookup failed at %s: %w", node, err)
			}
			for _, n := range neighbors {
				neighborNode := datatypes.MakeNode(n.NeighborType, n.NeighborID)
				if _, visited := preds[neighborNode]; visited {
					continue
				}
				if requireGrounded {
					grounded, err := t.edgeGrounded(ctx, n.EdgeID, groundedCache)
					if err != nil {
						return PathResult{}, err
					}
					if !grounded {
						continue
					}
				}
				preds[neighborNode] = pred{prev: node, relation: n.RelationType}
				if neighborNode == targetNode {
					return PathResult{Found: true, Path: reconstruct(preds, startNode, targetNode)}, nil
				}
				next = append(next, neighborNode)
			}
		}
		frontier = next
	}

	return PathResult{Found: false, Path: []PathStep{}}, nil
}

// edgeGrounded reports whether the edge has at least one justification
// span, memoized per traversal.
func (t *Traverser) edgeGrounded(ctx context.Context, edgeID string, cache map[string]bool) (bool, error) {
	if grounded, ok := cache[edgeID]; ok {
		return grounded, nil
	}
	spans, err := t.store.GetJustificationSpans(ctx, edgeID)
	if err != nil {
		return false, fmt.Errorf("justification lookup failed for edge %s: %w", edgeID, err)
	}
	cache[edgeID] = len(spans) > 0
	return cache[edgeID], nil
}

func reconstruct(preds map[string]pred, start, target string) []PathStep {
	// Walk back from target, then reverse.
	type hop struct {
		node     string
		relation string
	}
	var hops []hop
	node := target
	for node != start {
		p := preds[node]
		hops = append(hops, hop{node: node, relation: p.relation})
		node = p.prev
	}
	startType, startID := datatypes.ParseNode(start)
	path := []PathStep{{NodeType: startType, NodeID: startID}}
	for i := len(hops) - 1; i >= 0; i-- {
		nodeType, nodeID := datatypes.ParseNode(hops[i].node)
		path = append(path, PathStep{NodeType: nodeType, NodeID: nodeID, ViaRelation: hops[i].relation})
	}
	return path
}

// pred records how BFS first reached a node, for path reconstruction.
type pred struct {
	prev     string
	relation string
}
