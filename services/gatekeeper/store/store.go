// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides read access to the pre-ingested evidence
// corpus: chunks, chunk references, entities, and the approved relation
// graph.
//
// The gatekeeper treats the store as the single source of truth. All
// reads are by id or by indexed columns; the store never interprets
// content. Writes exist only for ingestion tooling and for the
// append-only decision records produced at the end of each request.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

// ErrChunkNotFound is returned by GetChunk when no chunk has the id.
var ErrChunkNotFound = errors.New("chunk not found")

// =============================================================================
// Records
// =============================================================================

// EntityRecord is a stored entity the resolver can match question text
// against.
type EntityRecord struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	DisplayName string `json:"display_name"`
}

// EdgeNeighbor is one approved-graph neighbor of a node, produced by a
// lookup that queries both edge directions.
type EdgeNeighbor struct {
	EdgeID       string `json:"edge_id"`
	RelationType string `json:"relation_type"`
	NeighborType string `json:"neighbor_type"`
	NeighborID   string `json:"neighbor_id"`
}

// DecisionRecord is the append-only observability record written at the
// end of a request. Records are keyed by request id; duplicate appends
// for the same id are no-ops.
type DecisionRecord struct {
	RequestID       string `json:"request_id"`
	Question        string `json:"question"`
	Outcome         string `json:"outcome"`
	Reasons         string `json:"reasons"`
	NotFound        bool   `json:"not_found"`
	FailClosed      bool   `json:"fail_closed"`
	RepairAttempted bool   `json:"repair_attempted"`
	RepairSucceeded bool   `json:"repair_succeeded"`
	PartialEmitted  bool   `json:"partial_emitted"`
	CitationCount   int    `json:"citation_count"`
	CreatedAtUnix   int64  `json:"created_at_unix"`
}

// =============================================================================
// Interfaces
// =============================================================================

// EvidenceStore is the read-only contract the gatekeeper core depends
// on.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; retrieval backends
// fan out against the store in parallel within one request.
type EvidenceStore interface {
	// GetChunk fetches one chunk by id. Returns ErrChunkNotFound when no
	// chunk has the id.
	GetChunk(ctx context.Context, chunkID string) (*datatypes.EvidenceChunk, error)

	// GetChunks batch-fetches chunks by id. Missing ids are simply
	// absent from the result map; the call itself only fails on store
	// errors.
	GetChunks(ctx context.Context, chunkIDs []string) (map[string]*datatypes.EvidenceChunk, error)

	// GetChunkRefs batch-fetches the typed references of the given
	// chunks.
	GetChunkRefs(ctx context.Context, chunkIDs []string) (map[string][]datatypes.ChunkRef, error)

	// AllChunks returns the whole corpus. Used once at startup to build
	// the in-process full-text index.
	AllChunks(ctx context.Context) ([]datatypes.EvidenceChunk, error)

	// GetChunksByEntity returns the chunks attached to one entity.
	GetChunksByEntity(ctx context.Context, entityType, entityID string) ([]datatypes.EvidenceChunk, error)

	// ListEntities returns all stored entities for name resolution.
	ListEntities(ctx context.Context) ([]EntityRecord, error)

	// GetApprovedEdgeNeighbors returns the approved-graph neighbors of a
	// node, looking at both edge directions. relTypes filters by
	// relation type when non-empty.
	GetApprovedEdgeNeighbors(ctx context.Context, nodeType, nodeID string, relTypes []string) ([]EdgeNeighbor, error)

	// GetApprovedEdge looks up one approved edge by its endpoints and
	// relation type. The boolean reports whether the edge exists.
	GetApprovedEdge(ctx context.Context, fromType, fromID, relType, toType, toID string) (string, bool, error)

	// GetJustificationSpans returns the citation spans recorded as
	// justification for an edge. An edge with zero spans is ungrounded.
	GetJustificationSpans(ctx context.Context, edgeID string) ([]datatypes.CitationSpan, error)
}

// DecisionRecorder persists decision records. Appends must be idempotent
// per request id.
type DecisionRecorder interface {
	AppendDecision(ctx context.Context, rec DecisionRecord) error
}
