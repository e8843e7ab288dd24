// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// =============================================================================
// GORM Models
// =============================================================================

type chunkRow struct {
	ChunkID      string `gorm:"primaryKey;column:chunk_id"`
	EntityType   string `gorm:"column:entity_type;index:idx_chunks_entity"`
	EntityID     string `gorm:"column:entity_id;index:idx_chunks_entity"`
	ChunkType    string `gorm:"column:chunk_type"`
	Text         string `gorm:"column:text"`
	SourceDocID  string `gorm:"column:source_doc_id"`
	SourceAnchor string `gorm:"column:source_anchor"`
}

func (chunkRow) TableName() string { return "chunks" }

type chunkRefRow struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	ChunkID string `gorm:"column:chunk_id;index"`
	Kind    string `gorm:"column:kind"`
	Value   string `gorm:"column:value"`
}

func (chunkRefRow) TableName() string { return "chunk_refs" }

type entityRow struct {
	EntityType  string `gorm:"primaryKey;column:entity_type"`
	EntityID    string `gorm:"primaryKey;column:entity_id"`
	DisplayName string `gorm:"column:display_name"`
}

func (entityRow) TableName() string { return "entities" }

type edgeRow struct {
	EdgeID       string `gorm:"primaryKey;column:edge_id"`
	FromNode     string `gorm:"column:from_node;index"`
	ToNode       string `gorm:"column:to_node;index"`
	RelationType string `gorm:"column:relation_type"`
	Status       string `gorm:"column:status;index"`
}

func (edgeRow) TableName() string { return "graph_edges" }

type justificationRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EdgeID    string `gorm:"column:edge_id;index"`
	ChunkID   string `gorm:"column:chunk_id"`
	SpanStart int    `gorm:"column:span_start"`
	SpanEnd   int    `gorm:"column:span_end"`
	Quote     string `gorm:"column:quote"`
}

func (justificationRow) TableName() string { return "edge_justifications" }

type decisionRow struct {
	RequestID       string `gorm:"primaryKey;column:request_id"`
	Question        string `gorm:"column:question"`
	Outcome         string `gorm:"column:outcome"`
	Reasons         string `gorm:"column:reasons"`
	NotFound        bool   `gorm:"column:not_found"`
	FailClosed      bool   `gorm:"column:fail_closed"`
	RepairAttempted bool   `gorm:"column:repair_attempted"`
	RepairSucceeded bool   `gorm:"column:repair_succeeded"`
	PartialEmitted  bool   `gorm:"column:partial_emitted"`
	CitationCount   int    `gorm:"column:citation_count"`
	CreatedAtUnix   int64  `gorm:"column:created_at_unix"`
}

func (decisionRow) TableName() string { return "decision_records" }

// =============================================================================
// SQLStore
// =============================================================================

// SQLStore is the relational EvidenceStore implementation, backed by the
// pure-Go SQLite driver. A single *gorm.DB carries the connection pool;
// pool discipline (max connections, queueing) lives here, not in the
// core.
type SQLStore struct {
	db *gorm.DB
}

// Compile-time interface compliance.
var (
	_ EvidenceStore    = (*SQLStore)(nil)
	_ DecisionRecorder = (*SQLStore)(nil)
)

// NewSQLStore opens (or creates) the evidence database at dsn and
// migrates the schema.
//
// # Inputs
//
//   - dsn: SQLite DSN. Use "file::memory:?cache=shared" for tests.
//
// # Outputs
//
//   - *SQLStore: Ready-to-use store.
//   - error: Non-nil if the database cannot be opened or migrated.
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence database: %w", err)
	}
	if err := db.AutoMigrate(
		&chunkRow{}, &chunkRefRow{}, &entityRow{},
		&edgeRow{}, &justificationRow{}, &decisionRow{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate evidence schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// =============================================================================
// EvidenceStore Implementation
// =============================================================================

// GetChunk fetches one chunk by id, including its refs.
func (s *SQLStore) GetChunk(ctx context.Context, chunkID string) (*datatypes.EvidenceChunk, error) {
	var row chunkRow
	err := s.db.WithContext(ctx).First(&row, "chunk_id = ?", chunkID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chunk lookup failed: %w", err)
	}
	refs, err := s.GetChunkRefs(ctx, []string{chunkID})
	if err != nil {
		return nil, err
	}
	chunk := rowToChunk(row)
	chunk.Refs = refs[chunkID]
	return &chunk, nil
}

// GetChunks batch-fetches chunks; missing ids are absent from the map.
func (s *SQLStore) GetChunks(ctx context.Context, chunkIDs []string) (map[string]*datatypes.EvidenceChunk, error) {
	out := make(map[string]*datatypes.EvidenceChunk, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Where("chunk_id IN ?", chunkIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("chunk batch lookup failed: %w", err)
	}
	refs, err := s.GetChunkRefs(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		chunk := rowToChunk(row)
		chunk.Refs = refs[row.ChunkID]
		out[row.ChunkID] = &chunk
	}
	return out, nil
}

// GetChunkRefs batch-fetches typed chunk references.
func (s *SQLStore) GetChunkRefs(ctx context.Context, chunkIDs []string) (map[string][]datatypes.ChunkRef, error) {
	out := make(map[string][]datatypes.ChunkRef, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	var rows []chunkRefRow
	if err := s.db.WithContext(ctx).Where("chunk_id IN ?", chunkIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("chunk ref lookup failed: %w", err)
	}
	for _, row := range rows {
		out[row.ChunkID] = append(out[row.ChunkID], datatypes.ChunkRef{Kind: row.Kind, Value: row.Value})
	}
	return out, nil
}

// AllChunks returns the full corpus with refs attached.
func (s *SQLStore) AllChunks(ctx context.Context) ([]datatypes.EvidenceChunk, error) {
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("corpus scan failed: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ChunkID)
	}
	refs, err := s.GetChunkRefs(ctx, ids)
	if err != nil {
		return nil, err
	}
	chunks := make([]datatypes.EvidenceChunk, 0, len(rows))
	for _, row := range rows {
		chunk := rowToChunk(row)
		chunk.Refs = refs[row.ChunkID]
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// GetChunksByEntity returns the chunks attached to one entity.
func (s *SQLStore) GetChunksByEntity(ctx context.Context, entityType, entityID string) ([]datatypes.EvidenceChunk, error) {
	var rows []chunkRow
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("entity chunk lookup failed: %w", err)
	}
	chunks := make([]datatypes.EvidenceChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, rowToChunk(row))
	}
	return chunks, nil
}

// ListEntities returns all stored entities.
func (s *SQLStore) ListEntities(ctx context.Context) ([]EntityRecord, error) {
	var rows []entityRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("entity scan failed: %w", err)
	}
	out := make([]EntityRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, EntityRecord{
			EntityType:  row.EntityType,
			EntityID:    row.EntityID,
			DisplayName: row.DisplayName,
		})
	}
	return out, nil
}

// GetApprovedEdgeNeighbors queries both edge directions for approved
// edges touching the node.
func (s *SQLStore) GetApprovedEdgeNeighbors(ctx context.Context, nodeType, nodeID string, relTypes []string) ([]EdgeNeighbor, error) {
	node := datatypes.MakeNode(nodeType, nodeID)
	q := s.db.WithContext(ctx).
		Where("status = ?", string(datatypes.EdgeApproved)).
		Where("from_node = ? OR to_node = ?", node, node)
	if len(relTypes) > 0 {
		q = q.Where("relation_type IN ?", relTypes)
	}
	var rows []edgeRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("edge neighbor lookup failed: %w", err)
	}
	out := make([]EdgeNeighbor, 0, len(rows))
	for _, row := range rows {
		other := row.ToNode
		if other == node {
			other = row.FromNode
		}
		nType, nID := datatypes.ParseNode(other)
		out = append(out, EdgeNeighbor{
			EdgeID:       row.EdgeID,
			RelationType: row.RelationType,
			NeighborType: nType,
			NeighborID:   nID,
		})
	}
	return out, nil
}

// GetApprovedEdge looks up one approved edge by endpoints and relation.
func (s *SQLStore) GetApprovedEdge(ctx context.Context, fromType, fromID, relType, toType, toID string) (string, bool, error) {
	var row edgeRow
	err := s.db.WithContext(ctx).
		Where("from_node = ? AND to_node = ? AND relation_type = ? AND status = ?",
			datatypes.MakeNode(fromType, fromID),
			datatypes.MakeNode(toType, toID),
			relType,
			string(datatypes.EdgeApproved)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("edge lookup failed: %w", err)
	}
	return row.EdgeID, true, nil
}

// GetJustificationSpans returns the recorded justification spans of an
// edge.
func (s *SQLStore) GetJustificationSpans(ctx context.Context, edgeID string) ([]datatypes.CitationSpan, error) {
	var rows []justificationRow
	if err := s.db.WithContext(ctx).Where("edge_id = ?", edgeID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("justification lookup failed: %w", err)
	}
	out := make([]datatypes.CitationSpan, 0, len(rows))
	for _, row := range rows {
		out = append(out, datatypes.CitationSpan{
			ChunkID:   row.ChunkID,
			SpanStart: row.SpanStart,
			SpanEnd:   row.SpanEnd,
			Quote:     row.Quote,
		})
	}
	return out, nil
}

// =============================================================================
// DecisionRecorder Implementation
// =============================================================================

// AppendDecision inserts a decision record. Records are keyed by request
// id; a duplicate append for the same id is a no-op, which makes retried
// requests safe to record.
func (s *SQLStore) AppendDecision(ctx context.Context, rec DecisionRecord) error {
	if rec.CreatedAtUnix == 0 {
		rec.CreatedAtUnix = time.Now().Unix()
	}
	row := decisionRow(rec)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("decision record append failed: %w", err)
	}
	return nil
}

// =============================================================================
// Ingestion Helpers
// =============================================================================

// PutChunk inserts or replaces a chunk and its refs. Used by ingestion
// tooling and tests; the gatekeeper core never writes chunks.
func (s *SQLStore) PutChunk(ctx context.Context, chunk datatypes.EvidenceChunk) error {
	row := chunkRow{
		ChunkID:      chunk.ChunkID,
		EntityType:   chunk.EntityType,
		EntityID:     chunk.EntityID,
		ChunkType:    chunk.ChunkType,
		Text:         chunk.Text,
		SourceDocID:  chunk.SourceDocID,
		SourceAnchor: chunk.SourceAnchor,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("chunk_id = ?", chunk.ChunkID).Delete(&chunkRefRow{}).Error; err != nil {
			return err
		}
		for _, ref := range chunk.Refs {
			refRow := chunkRefRow{ChunkID: chunk.ChunkID, Kind: ref.Kind, Value: ref.Value}
			if err := tx.Create(&refRow).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// PutEntity inserts or replaces an entity record.
func (s *SQLStore) PutEntity(ctx context.Context, rec EntityRecord) error {
	row := entityRow{EntityType: rec.EntityType, EntityID: rec.EntityID, DisplayName: rec.DisplayName}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// PutEdge inserts or replaces a graph edge.
func (s *SQLStore) PutEdge(ctx context.Context, edge datatypes.GraphEdge) error {
	row := edgeRow{
		EdgeID:       edge.EdgeID,
		FromNode:     edge.FromNode,
		ToNode:       edge.ToNode,
		RelationType: edge.RelationType,
		Status:       string(edge.Status),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// PutJustification attaches a justification span to an edge.
func (s *SQLStore) PutJustification(ctx context.Context, edgeID string, span datatypes.CitationSpan) error {
	row := justificationRow{
		EdgeID:    edgeID,
		ChunkID:   span.ChunkID,
		SpanStart: span.SpanStart,
		SpanEnd:   span.SpanEnd,
		Quote:     span.Quote,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func rowToChunk(row chunkRow) datatypes.EvidenceChunk {
	return datatypes.EvidenceChunk{
		ChunkID:      row.ChunkID,
		EntityType:   row.EntityType,
		EntityID:     row.EntityID,
		ChunkType:    row.ChunkType,
		Text:         row.Text,
		SourceDocID:  row.SourceDocID,
		SourceAnchor: row.SourceAnchor,
	}
}
