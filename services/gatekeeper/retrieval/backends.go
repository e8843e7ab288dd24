// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
)

// graphExpansionDecay discounts chunks reached through one graph hop
// relative to the confidence of the entity they were expanded from.
const graphExpansionDecay = 0.5

// =============================================================================
// BM25 Backend
// =============================================================================

// BM25Backend adapts a BM25Index to the Backend interface.
type BM25Backend struct {
	index *BM25Index
}

// NewBM25Backend wraps a prebuilt index.
func NewBM25Backend(index *BM25Index) *BM25Backend {
	return &BM25Backend{index: index}
}

func (b *BM25Backend) Name() datatypes.RetrievalBackend { return datatypes.BackendBM25 }

// Retrieve scores the corpus against the query. Entities are ignored;
// BM25 is purely lexical.
func (b *BM25Backend) Retrieve(ctx context.Context, query string, _ []datatypes.ResolvedEntity, topK int) ([]datatypes.RankedEvidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.index.Score(query, topK), nil
}

// =============================================================================
// Structured Backend
// =============================================================================

// StructuredBackend retrieves the chunks attached directly to each
// resolved entity via an indexed store lookup. The score of each chunk
// is the resolution confidence of its entity.
type StructuredBackend struct {
	store store.EvidenceStore
}

// NewStructuredBackend creates the structured-lookup backend.
func NewStructuredBackend(s store.EvidenceStore) *StructuredBackend {
	return &StructuredBackend{store: s}
}

func (b *StructuredBackend) Name() datatypes.RetrievalBackend { return datatypes.BackendStructured }

func (b *StructuredBackend) Retrieve(ctx context.Context, _ string, entities []datatypes.ResolvedEntity, topK int) ([]datatypes.RankedEvidence, error) {
	var out []datatypes.RankedEvidence
	seen := make(map[string]bool)
	for _, entity := range entities {
		chunks, err := b.store.GetChunksByEntity(ctx, entity.EntityType, entity.EntityID)
		if err != nil {
			return nil, fmt.Errorf("structured lookup failed for %s:%s: %w", entity.EntityType, entity.EntityID, err)
		}
		for _, chunk := range chunks {
			if seen[chunk.ChunkID] {
				continue
			}
			seen[chunk.ChunkID] = true
			out = append(out, datatypes.RankedEvidence{
				ChunkID:  chunk.ChunkID,
				Score:    entity.Confidence,
				Backends: []datatypes.RetrievalBackend{datatypes.BackendStructured},
			})
		}
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// =============================================================================
// Graph Expansion Backend
// =============================================================================

// GraphBackend expands each resolved entity one hop through the approved
// graph and retrieves the neighbors' chunks at a decayed score. It never
// inspects justification spans - grounding is enforced later, at
// traversal and claim-verification time, not during candidate
// retrieval.
type GraphBackend struct {
	store store.EvidenceStore
}

// NewGraphBackend creates the graph-neighbor expansion backend.
func NewGraphBackend(s store.EvidenceStore) *GraphBackend {
	return &GraphBackend{store: s}
}

func (b *GraphBackend) Name() datatypes.RetrievalBackend { return datatypes.BackendGraph }

func (b *GraphBackend) Retrieve(ctx context.Context, _ string, entities []datatypes.ResolvedEntity, topK int) ([]datatypes.RankedEvidence, error) {
	var out []datatypes.RankedEvidence
	seen := make(map[string]bool)
	for _, entity := range entities {
		neighbors, err := b.store.GetApprovedEdgeNeighbors(ctx, entity.EntityType, entity.EntityID, nil)
		if err != nil {
			return nil, fmt.Errorf("graph expansion failed for %s:%s: %w", entity.EntityType, entity.EntityID, err)
		}
		for _, n := range neighbors {
			chunks, err := b.store.GetChunksByEntity(ctx, n.NeighborType, n.NeighborID)
			if err != nil {
				return nil, fmt.Errorf("neighbor chunk lookup failed for %s:%s: %w", n.NeighborType, n.NeighborID, err)
			}
			for _, chunk := range chunks {
				if seen[chunk.ChunkID] {
					continue
				}
				seen[chunk.ChunkID] = true
				out = append(out, datatypes.RankedEvidence{
					ChunkID:  chunk.ChunkID,
					Score:    entity.Confidence * graphExpansionDecay,
					Backends: []datatypes.RetrievalBackend{datatypes.BackendGraph},
				})
			}
		}
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
