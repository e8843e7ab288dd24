// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "fmt"

// =============================================================================
// Intent & Contract Types
// =============================================================================

// IntentType is the detected structural intent of a question. Intents
// are derived by a deterministic ordered keyword cascade; each intent
// maps to a fixed contract shape.
type IntentType string

const (
	// IntentCompare asks for a side-by-side comparison of named concepts.
	IntentCompare IntentType = "compare"

	// IntentNetwork asks to build a relationship network spanning
	// multiple top-level groups.
	IntentNetwork IntentType = "network"

	// IntentTension asks to reconcile an apparent conflict.
	IntentTension IntentType = "tension"

	// IntentScenario asks for analysis of a concrete case.
	IntentScenario IntentType = "scenario"

	// IntentCrossPillar asks about a relation between two concepts.
	IntentCrossPillar IntentType = "cross_pillar"

	// IntentGeneric is the fallback when no marker matches.
	IntentGeneric IntentType = "generic"
)

// ContractSpec is the machine-checkable requirement a question's intent
// imposes on an acceptable answer. Built once per question; immutable.
type ContractSpec struct {
	IntentType        IntentType `json:"intent_type"`
	RequiredSections  []string   `json:"required_sections,omitempty"`
	RequiredEntities  []string   `json:"required_entities,omitempty"`
	RequiresGraph     bool       `json:"requires_graph"`
	MinLinks          int        `json:"min_links"`
	MinDistinctGroups int        `json:"min_distinct_groups"`
	AllowFollowups    bool       `json:"allow_followups"`
}

// ContractOutcome is the tri-state result of a contract check.
type ContractOutcome string

const (
	OutcomePassFull    ContractOutcome = "PASS_FULL"
	OutcomePassPartial ContractOutcome = "PASS_PARTIAL"
	OutcomeFail        ContractOutcome = "FAIL"
)

// ReasonCode is a machine-readable contract failure reason. The set is
// closed: new reasons are added as constants or via the parameterized
// constructors below, never by ad hoc string concatenation at call
// sites.
type ReasonCode string

const (
	ReasonMissingRequiredEntities ReasonCode = "MISSING_REQUIRED_ENTITIES"
	ReasonMissingUsedGraphEdges   ReasonCode = "MISSING_USED_GRAPH_EDGES"
	ReasonInsufficientGroups      ReasonCode = "INSUFFICIENT_DISTINCT_GROUPS_IN_GRAPH"
	ReasonNoCitations             ReasonCode = "NO_CITATIONS"

	reasonEmptySectionPrefix        = "EMPTY_SECTION:"
	reasonCompareMissingFieldPrefix = "COMPARE_MISSING_FIELD:"
)

// EmptySectionReason builds the reason code for a required section that
// has no bullet content.
func EmptySectionReason(header string) ReasonCode {
	return ReasonCode(reasonEmptySectionPrefix + header)
}

// IsEmptySectionReason reports whether code is an EMPTY_SECTION reason.
func IsEmptySectionReason(code ReasonCode) bool {
	return len(code) > len(reasonEmptySectionPrefix) &&
		string(code[:len(reasonEmptySectionPrefix)]) == reasonEmptySectionPrefix
}

// CompareMissingFieldReason builds the reason code for a compare block
// missing one of its fixed fields.
func CompareMissingFieldReason(concept, field string) ReasonCode {
	return ReasonCode(fmt.Sprintf("%s%s:%s", reasonCompareMissingFieldPrefix, concept, field))
}

// ContractMetrics is the scored outcome of checking an answer against a
// ContractSpec. Violations are data, never errors: callers branch on
// Outcome and Reasons.
type ContractMetrics struct {
	Outcome                       ContractOutcome `json:"outcome"`
	Reasons                       []ReasonCode    `json:"reasons,omitempty"`
	SectionNonemptyRatio          float64         `json:"section_nonempty_ratio"`
	RequiredEntitiesCoverageRatio float64         `json:"required_entities_coverage_ratio"`
	GraphRequiredSatisfied        bool            `json:"graph_required_satisfied"`
}

// HasReason reports whether the metrics contain the exact reason code.
func (m ContractMetrics) HasReason(code ReasonCode) bool {
	for _, r := range m.Reasons {
		if r == code {
			return true
		}
	}
	return false
}

// =============================================================================
// Claims
// =============================================================================

// SupportPolicy states what evidence a claim must carry.
type SupportPolicy string

const (
	// PolicyMustCite requires at least one valid, term-covering span.
	PolicyMustCite SupportPolicy = "MUST_CITE"

	// PolicyMayCite allows but does not require citations (ungrounded
	// baseline mode assigns this uniformly).
	PolicyMayCite SupportPolicy = "MAY_CITE"

	// PolicyNoCiteAllowed marks meta text (refusals, headers) that must
	// not carry citations.
	PolicyNoCiteAllowed SupportPolicy = "NO_CITE_ALLOWED"
)

// ClaimType is a coarse classification of a claim's content.
type ClaimType string

const (
	ClaimDefinition     ClaimType = "definition"
	ClaimFact           ClaimType = "fact"
	ClaimRelationship   ClaimType = "relationship"
	ClaimRecommendation ClaimType = "recommendation"
	ClaimMeta           ClaimType = "meta"
)

// Claim is one sentence-like unit of an answer, with its support policy
// and bound evidence spans. Claims are created by segmentation and
// destroyed or filtered by the pruner; they never outlive one response.
type Claim struct {
	ID               string         `json:"id"`
	Text             string         `json:"text"`
	SupportPolicy    SupportPolicy  `json:"support_policy"`
	SupportStrength  float64        `json:"support_strength"`
	EvidenceSpans    []CitationSpan `json:"evidence_spans,omitempty"`
	RequiresEvidence bool           `json:"requires_evidence"`
	ClaimType        ClaimType      `json:"claim_type"`
}
