// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

// defaultMinSentences is the minimum surviving sentence count before
// the pruner abstains.
const defaultMinSentences = 2

// Fragments shorter than this with fewer than two content words are
// formatting noise, not sentences.
const fragmentMinChars = 40

// Abstention reasons produced by the pruner.
const (
	ReasonPrunedTooMuch          = "PRUNED_TOO_MUCH"
	ReasonRelationshipIncomplete = "RELATIONSHIP_INCOMPLETE"
)

// PruneOptions tunes one prune pass.
type PruneOptions struct {
	// MinSentences is the abstention floor; zero means the default.
	MinSentences int

	// RelationshipShaped marks a relationship question, which must keep
	// both endpoints visible in the pruned answer.
	RelationshipShaped bool

	// ResolvedEntities are the question's resolved entities, used for
	// the relationship-completeness check.
	ResolvedEntities []datatypes.ResolvedEntity

	// HasDeclaredGraphPath disables the relationship-completeness check
	// when the dataset itself declares the required path.
	HasDeclaredGraphPath bool
}

// PruneResult is the outcome of PruneAndFailClosed.
type PruneResult struct {
	Answer     string
	Claims     []datatypes.Claim
	Citations  []datatypes.CitationSpan
	Abstained  bool
	Reason     string
	DroppedIDs []string
}

// PruneAndFailClosed removes unsupported claims and abstains when too
// little survives.
//
// # Description
//
// MAY_CITE and NO_CITE_ALLOWED claims are kept unconditionally.
// MUST_CITE claims are kept only when ClaimSupported holds. The answer
// is rebuilt from kept sentences in original order, dropping short
// fragments with fewer than two content words. Abstention replaces
// nothing by itself - the caller owns the refusal text - but it reports
// the machine reason. Deterministic: the same inputs always produce the
// same result.
//
// # Outputs
//
//   - PruneResult: Kept answer, claims, and the union of their bound
//     spans. Abstained is set with ReasonPrunedTooMuch when fewer than
//     MinSentences survive, or ReasonRelationshipIncomplete when a
//     relationship answer loses an endpoint.
//   - error: Non-nil only on store failure.
func (v *Validator) PruneAndFailClosed(ctx context.Context, claims []datatypes.Claim, opts PruneOptions) (PruneResult, error) {
	ctx, span := verifyTracer.Start(ctx, "Validator.PruneAndFailClosed")
	defer span.End()

	minSentences := opts.MinSentences
	if minSentences <= 0 {
		minSentences = defaultMinSentences
	}

	var result PruneResult
	var sentences []string
	seenSpans := make(map[datatypes.CitationSpan]bool)
	for _, claim := range claims {
		supported, err := v.ClaimSupported(ctx, claim)
		if err != nil {
			return PruneResult{}, err
		}
		if !supported {
			result.DroppedIDs = append(result.DroppedIDs, claim.ID)
			continue
		}
		if isFragment(claim.Text) {
			result.DroppedIDs = append(result.DroppedIDs, claim.ID)
			continue
		}
		result.Claims = append(result.Claims, claim)
		sentences = append(sentences, claim.Text)
		for _, s := range claim.EvidenceSpans {
			if !seenSpans[s] {
				seenSpans[s] = true
				result.Citations = append(result.Citations, s)
			}
		}
	}
	result.Answer = strings.Join(sentences, "\n")
	span.SetAttributes(
		attribute.Int("prune.kept", len(result.Claims)),
		attribute.Int("prune.dropped", len(result.DroppedIDs)),
	)

	if len(result.Claims) < minSentences {
		result.Abstained = true
		result.Reason = ReasonPrunedTooMuch
		return result, nil
	}

	if opts.RelationshipShaped && len(opts.ResolvedEntities) >= 2 && !opts.HasDeclaredGraphPath {
		if !relationshipComplete(result.Answer, opts.ResolvedEntities) {
			result.Abstained = true
			result.Reason = ReasonRelationshipIncomplete
		}
	}
	return result, nil
}

// isFragment drops formatting noise: short lines with fewer than two
// content words.
func isFragment(text string) bool {
	return len(text) < fragmentMinChars && len(textnorm.ContentTokens(text)) < 2
}

// relationshipComplete requires that at least two distinct resolved
// entity names remain textually present, or one when the entities share
// a display name.
func relationshipComplete(answer string, entities []datatypes.ResolvedEntity) bool {
	distinct := make(map[string]bool)
	present := make(map[string]bool)
	for _, entity := range entities {
		name := textnorm.Normalize(entity.Name)
		distinct[name] = true
		if textnorm.Contains(answer, entity.Name) {
			present[name] = true
		}
	}
	if len(distinct) == 1 {
		return len(present) >= 1
	}
	return len(present) >= 2
}
