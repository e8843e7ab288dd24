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

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Run Modes & Confidence
// =============================================================================

// RunMode selects how strictly answers are held to evidence.
type RunMode string

const (
	// ModeGrounded is the default: factual claims must cite evidence.
	ModeGrounded RunMode = "grounded"

	// ModeBaseline is the ungrounded comparison mode used for evals:
	// claims may cite but are never required to.
	ModeBaseline RunMode = "baseline"
)

// ConfidenceLevel is the coarse confidence attached to a response.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// =============================================================================
// Entities
// =============================================================================

// MatchType describes how a question surface string matched a stored
// entity name.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPartial MatchType = "partial"
)

// ResolvedEntity is an entity mention resolved against the evidence
// store.
type ResolvedEntity struct {
	Name       string    `json:"name"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Confidence float64   `json:"confidence"`
	MatchType  MatchType `json:"match_type"`
}

// =============================================================================
// API Boundary
// =============================================================================

// DatasetHints carries explicit structural requirements attached to a
// question by a dataset or runtime caller. The contract is only
// evaluated when hints are present; ad hoc questions short-circuit the
// contract check entirely.
type DatasetHints struct {
	// EnforceContract turns on contract derivation and checking.
	EnforceContract bool `json:"enforce_contract"`

	// RequiredEntities overrides the derived required-entity set.
	RequiredEntities []string `json:"required_entities,omitempty"`

	// RequiresGraphPath declares that the dataset expects a grounded
	// graph path for this question.
	RequiresGraphPath bool `json:"requires_graph_path"`
}

// AskRequest is the request body for POST /v1/ask.
type AskRequest struct {
	// Id uniquely identifies the request; generated if empty. Decision
	// records are keyed by this id, so retried requests with the same id
	// are recorded at most once.
	Id string `json:"id"`

	Question string  `json:"question" binding:"required"`
	Language string  `json:"language"`
	Mode     RunMode `json:"mode"`

	Hints *DatasetHints `json:"hints,omitempty"`

	// Timestamp is set server-side when missing.
	Timestamp int64 `json:"timestamp"`
}

// EnsureDefaults populates Id, Mode, Language, and Timestamp when unset.
func (r *AskRequest) EnsureDefaults() {
	if r.Id == "" {
		r.Id = uuid.NewString()
	}
	if r.Mode == "" {
		r.Mode = ModeGrounded
	}
	if r.Language == "" {
		r.Language = "ar"
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().Unix()
	}
}

// AskResponse is the response body for POST /v1/ask.
//
// ContractOutcome, ContractReasons, and GraphTrace are diagnostic
// surfaces; UI callers may ignore them. The system never returns
// NotFound=false with an empty citation list.
type AskResponse struct {
	Id         string           `json:"id"`
	Answer     string           `json:"answer"`
	Citations  []Citation       `json:"citations"`
	Entities   []ResolvedEntity `json:"entities,omitempty"`
	NotFound   bool             `json:"not_found"`
	Confidence ConfidenceLevel  `json:"confidence"`

	ContractOutcome ContractOutcome `json:"contract_outcome,omitempty"`
	ContractReasons []ReasonCode    `json:"contract_reasons,omitempty"`
	GraphTrace      *GraphTrace     `json:"graph_trace,omitempty"`
}

// =============================================================================
// Generation Backend Contract
// =============================================================================

// EvidencePacket is one retrieved chunk prepared for the generation
// backend.
type EvidencePacket struct {
	ChunkID      string     `json:"chunk_id"`
	Text         string     `json:"text"`
	SourceAnchor string     `json:"source_anchor"`
	Refs         []ChunkRef `json:"refs,omitempty"`
	Score        float64    `json:"score"`
}

// GenerationResult is what the opaque generation backend returns: a
// candidate answer with the citations and graph edges it relied on.
type GenerationResult struct {
	Answer     string          `json:"answer"`
	Citations  []CitationSpan  `json:"citations"`
	UsedEdges  []UsedEdge      `json:"used_edges,omitempty"`
	NotFound   bool            `json:"not_found"`
	Confidence ConfidenceLevel `json:"confidence"`
}
