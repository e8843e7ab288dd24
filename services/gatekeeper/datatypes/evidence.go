// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared value types for the gatekeeper
// service: evidence records, citations, graph edges, contracts, and
// claims.
//
// All types here are plain immutable value records. Evidence records are
// borrowed references into the evidence store - the gatekeeper never
// mutates or duplicates stored evidence. Discriminator fields use closed
// string-tag enums rather than open strings so that callers can switch
// exhaustively.
package datatypes

import (
	"fmt"
	"strings"
)

// =============================================================================
// Evidence Records
// =============================================================================

// MaxQuoteWords is the maximum number of whitespace-delimited words a
// citation quote may contain. Longer quotes are rejected as invalid.
const MaxQuoteWords = 25

// EvidenceChunk is a stored, citeable unit of source text with a stable
// anchor back to its origin document.
//
// # Description
//
// Chunks are created once at ingestion time and are read-only to this
// service. Identity is ChunkID. The Text field is the authoritative
// content that citation spans index into.
//
// # Thread Safety
//
// Immutable after construction; safe to share across goroutines.
type EvidenceChunk struct {
	ChunkID      string     `json:"chunk_id"`
	EntityType   string     `json:"entity_type"`
	EntityID     string     `json:"entity_id"`
	ChunkType    string     `json:"chunk_type"`
	Text         string     `json:"text"`
	SourceDocID  string     `json:"source_doc_id"`
	SourceAnchor string     `json:"source_anchor"`
	Refs         []ChunkRef `json:"refs,omitempty"`
}

// ChunkRef is a typed reference attached to a chunk (for example a
// scripture reference or an external identifier). Refs participate in
// full-text scoring alongside the chunk body.
type ChunkRef struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// SpanResolutionStatus reports whether a citation span's offsets were
// verified against stored chunk text.
type SpanResolutionStatus string

const (
	// SpanResolved means the offsets were verified against the chunk.
	SpanResolved SpanResolutionStatus = "resolved"

	// SpanUnresolved means the offsets could not be verified. UI layers
	// must render unresolved spans with null offsets, never guessed ones.
	SpanUnresolved SpanResolutionStatus = "unresolved"
)

// CitationSpan points into a stored chunk's text.
//
// # Description
//
// Invariant: 0 <= SpanStart < SpanEnd <= len(chunk.Text), and the
// normalized Quote must be a substring of the normalized text slice
// [SpanStart:SpanEnd]. Quotes are bounded by MaxQuoteWords.
//
// Spans are ephemeral: they are produced per answer and are never
// authoritative independent of the chunk they point into.
type CitationSpan struct {
	ChunkID   string `json:"chunk_id"`
	SpanStart int    `json:"span_start"`
	SpanEnd   int    `json:"span_end"`
	Quote     string `json:"quote"`
}

// Citation is the API-boundary view of an accepted citation.
type Citation struct {
	ChunkID      string `json:"chunk_id"`
	SourceAnchor string `json:"source_anchor"`
	Ref          string `json:"ref,omitempty"`
}

// ResolvedSpan is a citation span decorated with its resolution status
// for diagnostic and UI surfaces. Unresolved spans carry nil offsets.
type ResolvedSpan struct {
	ChunkID   string               `json:"chunk_id"`
	SpanStart *int                 `json:"span_start"`
	SpanEnd   *int                 `json:"span_end"`
	Quote     string               `json:"quote"`
	Status    SpanResolutionStatus `json:"span_resolution_status"`
}

// =============================================================================
// Graph Records
// =============================================================================

// EdgeStatus is the review status of a graph edge. Only approved edges
// are traversable.
type EdgeStatus string

const (
	EdgeApproved EdgeStatus = "approved"
	EdgePending  EdgeStatus = "pending"
	EdgeRejected EdgeStatus = "rejected"
)

// GraphEdge is a typed relationship between two nodes. Nodes are encoded
// as "{type}:{id}". The evidence store owns edges; this service only
// reads them.
type GraphEdge struct {
	EdgeID       string     `json:"edge_id"`
	FromNode     string     `json:"from_node"`
	ToNode       string     `json:"to_node"`
	RelationType string     `json:"relation_type"`
	Status       EdgeStatus `json:"status"`
}

// MakeNode encodes a node identifier from its type and id.
func MakeNode(nodeType, nodeID string) string {
	return fmt.Sprintf("%s:%s", nodeType, nodeID)
}

// ParseNode splits a "{type}:{id}" node identifier. The id portion may
// itself contain colons; only the first separator is significant.
func ParseNode(node string) (nodeType, nodeID string) {
	parts := strings.SplitN(node, ":", 2)
	if len(parts) != 2 {
		return node, ""
	}
	return parts[0], parts[1]
}

// UsedEdge is a graph edge the answer actually relied on, as opposed to
// an edge merely retrieved as a candidate neighbor. Grounded traversal
// and grounded claims require at least one justification span.
type UsedEdge struct {
	Edge               GraphEdge      `json:"edge"`
	JustificationSpans []CitationSpan `json:"justification_spans"`
}

// InferenceType classifies how an argument chain derives its claim from
// evidence.
type InferenceType string

const (
	// InferenceDirectQuote means the claim is carried by a single span.
	InferenceDirectQuote InferenceType = "direct_quote"

	// InferenceMultiSpanEntailment means the claim is entailed by two or
	// more spans taken together.
	InferenceMultiSpanEntailment InferenceType = "multi_span_entailment"
)

// ArgumentChain is the per-response derivation record for one UsedEdge.
//
// Chains are built deterministically from a UsedEdge and live only for
// the duration of one response; they are never stored independently.
type ArgumentChain struct {
	EdgeID            string         `json:"edge_id"`
	RelationType      string         `json:"relation_type"`
	FromNode          string         `json:"from_node"`
	ToNode            string         `json:"to_node"`
	Claim             string         `json:"claim"`
	InferenceType     InferenceType  `json:"inference_type"`
	EvidenceSpans     []CitationSpan `json:"evidence_spans"`
	BoundaryStatement string         `json:"boundary_statement,omitempty"`
	BoundarySpans     []CitationSpan `json:"boundary_spans,omitempty"`
}

// GraphTrace carries the graph-side diagnostics of one response.
type GraphTrace struct {
	UsedEdges      []UsedEdge      `json:"used_edges"`
	ArgumentChains []ArgumentChain `json:"argument_chains"`
}

// =============================================================================
// Retrieval Records
// =============================================================================

// RetrievalBackend names a retrieval source for provenance tracking.
type RetrievalBackend string

const (
	BackendStructured RetrievalBackend = "structured"
	BackendBM25       RetrievalBackend = "bm25"
	BackendGraph      RetrievalBackend = "graph"
)

// RankedEvidence is one entry in the merged retrieval ranking. Backends
// records every backend that contributed this chunk; Score is the
// maximum score across contributing backends.
type RankedEvidence struct {
	ChunkID  string             `json:"chunk_id"`
	Score    float64            `json:"score"`
	Backends []RetrievalBackend `json:"backends"`
}

// RetrievalTrace summarizes retrieval signal strength for the
// eligibility gate.
type RetrievalTrace struct {
	Top1Score   float64 `json:"top1_score"`
	MeanTopK    float64 `json:"mean_topk"`
	ResultCount int     `json:"result_count"`
}
