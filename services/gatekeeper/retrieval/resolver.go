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
	"sort"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

// partialMatchConfidence is assigned when an entity name only overlaps
// the question rather than appearing verbatim.
const partialMatchConfidence = 0.8

// partialOverlapThreshold is the minimum share of an entity name's
// tokens that must appear in the question for a partial match.
const partialOverlapThreshold = 0.8

// Resolver matches question text against the stored entity catalog.
//
// # Description
//
// The catalog is loaded once at construction (it is small and changes
// only at ingestion). Matching is deterministic: a normalized substring
// hit is an exact match at confidence 1.0; otherwise a token-overlap hit
// above the threshold is a partial match at reduced confidence. Results
// are ordered by confidence, then entity id, so the pipeline's entity
// list is stable across runs.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Resolver struct {
	entities []store.EntityRecord
}

// NewResolver loads the entity catalog from the store.
func NewResolver(ctx context.Context, s store.EvidenceStore) (*Resolver, error) {
	entities, err := s.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity catalog: %w", err)
	}
	return &Resolver{entities: entities}, nil
}

// Resolve returns the entities mentioned in the question.
func (r *Resolver) Resolve(question string) []datatypes.ResolvedEntity {
	var out []datatypes.ResolvedEntity
	for _, entity := range r.entities {
		if entity.DisplayName == "" {
			continue
		}
		if textnorm.Contains(question, entity.DisplayName) {
			out = append(out, datatypes.ResolvedEntity{
				Name:       entity.DisplayName,
				EntityType: entity.EntityType,
				EntityID:   entity.EntityID,
				Confidence: 1.0,
				MatchType:  datatypes.MatchExact,
			})
			continue
		}
		if textnorm.TokenOverlap(entity.DisplayName, question) >= partialOverlapThreshold {
			out = append(out, datatypes.ResolvedEntity{
				Name:       entity.DisplayName,
				EntityType: entity.EntityType,
				EntityID:   entity.EntityID,
				Confidence: partialMatchConfidence,
				MatchType:  datatypes.MatchPartial,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}
