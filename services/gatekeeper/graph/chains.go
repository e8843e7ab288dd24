// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// ungroundedBoundary is attached to a chain whose edge carries no
// justification span. The chain is still emitted so the trace shows the
// edge was relied on, but it is explicitly marked as unargued.
const ungroundedBoundary = "relation is approved but carries no justification span"

// BuildChains derives one argument chain per used edge.
//
// # Description
//
// Chains are a pure function of the used edges: same edges in, same
// chains out, ordered by edge id. A single justification span yields a
// direct-quote chain; two or more yield a multi-span entailment chain.
// An edge with no spans yields a chain with an empty inference type and
// a boundary statement instead of evidence.
//
// # Inputs
//
//   - usedEdges: The edges the answer relied on, with whatever
//     justification spans the generator attached.
//
// # Outputs
//
//   - []datatypes.ArgumentChain: One chain per edge, never nil when
//     usedEdges is non-empty.
func BuildChains(usedEdges []datatypes.UsedEdge) []datatypes.ArgumentChain {
	chains := make([]datatypes.ArgumentChain, 0, len(usedEdges))
	for _, used := range usedEdges {
		edge := used.Edge
		_, fromID := datatypes.ParseNode(edge.FromNode)
		_, toID := datatypes.ParseNode(edge.ToNode)
		chain := datatypes.ArgumentChain{
			EdgeID:       edge.EdgeID,
			RelationType: edge.RelationType,
			FromNode:     edge.FromNode,
			ToNode:       edge.ToNode,
			Claim:        fmt.Sprintf("%s %s %s", fromID, edge.RelationType, toID),
		}
		switch len(used.JustificationSpans) {
		case 0:
			chain.BoundaryStatement = ungroundedBoundary
		case 1:
			chain.InferenceType = datatypes.InferenceDirectQuote
			chain.EvidenceSpans = used.JustificationSpans
		default:
			chain.InferenceType = datatypes.InferenceMultiSpanEntailment
			chain.EvidenceSpans = used.JustificationSpans
		}
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].EdgeID < chains[j].EdgeID })
	return chains
}

// SpanChecker reports whether a citation span verifies against stored
// chunk text. The verify package supplies the real implementation; it is
// passed as a function to keep this package free of store round-trips.
type SpanChecker func(span datatypes.CitationSpan) bool

// GroundednessScore is the fraction of used edges backed by at least one
// verifying justification span.
//
// The score is deliberately harsh: an edge whose spans all fail
// verification contributes zero, so citations copied from an unrelated
// answer collapse the score rather than inflating it.
func GroundednessScore(usedEdges []datatypes.UsedEdge, check SpanChecker) float64 {
	if len(usedEdges) == 0 {
		return 0
	}
	grounded := 0
	for _, used := range usedEdges {
		for _, span := range used.JustificationSpans {
			if check(span) {
				grounded++
				break
			}
		}
	}
	return float64(grounded) / float64(len(usedEdges))
}
