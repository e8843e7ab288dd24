// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate decides, before any generation happens, whether a
// question is answerable from the corpus at all. The decision is a
// deterministic ordered rule cascade; the first failing rule wins and
// produces a machine reason code.
package gate

import (
	"strings"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

// Retrieval and entity signal thresholds. A refusal on weak signals
// requires all three to fail at once.
const (
	top1Min       = 0.75
	meanTopKMin   = 0.65
	entityConfMin = 0.80
)

// relationshipConfMin is the entity-resolution confidence floor for
// relationship questions, which are unforgiving of fuzzy matches.
const relationshipConfMin = 0.95

// endpointOverlapMin is the token-overlap floor between a question-side
// relationship endpoint and some resolved entity name.
const endpointOverlapMin = 0.8

// Refusal reason codes.
const (
	ReasonOK                        = "OK"
	ReasonOOSKeywords               = "OOS_KEYWORDS"
	ReasonNoEntityMatch             = "NO_ENTITY_MATCH"
	ReasonRelationshipTooFew        = "RELATIONSHIP_TOO_FEW_ENTITIES"
	ReasonRelationshipLowConfidence = "RELATIONSHIP_LOW_CONFIDENCE"
	ReasonRelationshipInexactMatch  = "RELATIONSHIP_INEXACT_MATCH"
	ReasonRelationshipEndpointMiss  = "RELATIONSHIP_ENDPOINT_MISMATCH"
	ReasonLowRetrievalLowEntity     = "LOW_RETRIEVAL_LOW_ENTITY"
	ReasonNoRetrieval               = "NO_RETRIEVAL"
)

// oosKeywords mark questions explicitly outside the corpus scope.
// Matched against the normalized question.
var oosKeywords = []string{
	"اسعار الاسهم",
	"حاله الطقس",
	"نتيجه المباراه",
	"وصفه طبيه",
	"stock price",
	"weather forecast",
	"match result",
	"medical prescription",
}

// Shape markers over the normalized question.
var (
	definitionMarkers   = []string{"ما هو", "ما هي", "عرف ", "ما معني", "what is", "define "}
	biographyMarkers    = []string{"من هو", "من هي", "who is", "who was"}
	relationshipMarkers = []string{"ما العلاقه", "العلاقه بين", "كيف يرتبط", "كيف ترتبط", "relationship between", "relation between"}
)

// IsRelationshipShaped reports whether the question asks about the
// relation between two things. The pruner applies stricter endpoint
// checks to these.
func IsRelationshipShaped(question string) bool {
	return matchesAny(textnorm.Normalize(question), relationshipMarkers)
}

// Decision is the gate's verdict.
type Decision struct {
	ShouldAnswer bool   `json:"should_answer"`
	Reason       string `json:"reason"`
}

// Decide runs the rule cascade.
//
// # Description
//
// Rules short-circuit in order: out-of-scope keywords; shaped questions
// (definition, biography, relationship) with zero resolved entities;
// relationship-specific strictness (two endpoints, near-certain exact
// entity matches, endpoints overlapping resolved names); combined weak
// retrieval and entity signals; empty retrieval. Anything that survives
// is answerable.
//
// # Inputs
//
//   - question: Raw question text.
//   - entities: Resolved entities, ordered by confidence descending.
//   - trace: Retrieval signal summary for the merged ranking.
//
// # Outputs
//
//   - Decision: ShouldAnswer with ReasonOK, or a refusal with the
//     first failing rule's code. Refusals are decisions, not errors.
func Decide(question string, entities []datatypes.ResolvedEntity, trace datatypes.RetrievalTrace) Decision {
	normalized := textnorm.Normalize(question)

	for _, kw := range oosKeywords {
		if strings.Contains(normalized, kw) {
			return Decision{Reason: ReasonOOSKeywords}
		}
	}

	shaped := matchesAny(normalized, definitionMarkers) ||
		matchesAny(normalized, biographyMarkers) ||
		matchesAny(normalized, relationshipMarkers)
	if shaped && len(entities) == 0 {
		return Decision{Reason: ReasonNoEntityMatch}
	}

	if matchesAny(normalized, relationshipMarkers) {
		if d, refused := checkRelationship(question, entities); refused {
			return d
		}
	}

	bestConf := 0.0
	for _, entity := range entities {
		if entity.Confidence > bestConf {
			bestConf = entity.Confidence
		}
	}
	if trace.Top1Score < top1Min && trace.MeanTopK < meanTopKMin && bestConf < entityConfMin {
		return Decision{Reason: ReasonLowRetrievalLowEntity}
	}
	if trace.ResultCount == 0 {
		return Decision{Reason: ReasonNoRetrieval}
	}
	return Decision{ShouldAnswer: true, Reason: ReasonOK}
}

// checkRelationship applies the stricter rules a relationship question
// must satisfy.
func checkRelationship(question string, entities []datatypes.ResolvedEntity) (Decision, bool) {
	if len(entities) < 2 {
		return Decision{Reason: ReasonRelationshipTooFew}, true
	}
	for _, entity := range entities {
		if entity.Confidence < relationshipConfMin {
			return Decision{Reason: ReasonRelationshipLowConfidence}, true
		}
		if entity.MatchType != datatypes.MatchExact {
			return Decision{Reason: ReasonRelationshipInexactMatch}, true
		}
	}
	left, right, ok := extractEndpoints(question)
	if ok && (!endpointResolved(left, entities) || !endpointResolved(right, entities)) {
		return Decision{Reason: ReasonRelationshipEndpointMiss}, true
	}
	return Decision{}, false
}

// extractEndpoints pulls the two operands of a "between X and Y"
// connective out of the question.
func extractEndpoints(question string) (left, right string, ok bool) {
	for _, connective := range []string{"بين ", "between "} {
		idx := strings.Index(question, connective)
		if idx < 0 {
			continue
		}
		rest := question[idx+len(connective):]
		if cut := strings.IndexAny(rest, "؟?."); cut >= 0 {
			rest = rest[:cut]
		}
		for _, conj := range []string{" و", " and "} {
			if parts := strings.SplitN(rest, conj, 2); len(parts) == 2 {
				left = strings.TrimSpace(parts[0])
				right = strings.TrimSpace(parts[1])
				if left != "" && right != "" {
					return left, right, true
				}
			}
		}
	}
	return "", "", false
}

// endpointResolved requires the endpoint to token-overlap some resolved
// entity name.
func endpointResolved(endpoint string, entities []datatypes.ResolvedEntity) bool {
	for _, entity := range entities {
		if textnorm.TokenOverlap(endpoint, entity.Name) >= endpointOverlapMin {
			return true
		}
	}
	return false
}

func matchesAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
