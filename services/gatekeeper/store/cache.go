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
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// =============================================================================
// CachedStore
// =============================================================================

// CachedStore wraps an EvidenceStore with a TTL cache over chunk text
// and justification spans.
//
// # Description
//
// Chunks are immutable after ingestion, so caching is safe; the TTL only
// bounds memory after re-ingestion. Citation validation hits the same
// small set of chunk ids repeatedly within a request, and the same hot
// chunks across requests, which is what this cache absorbs. Entity and
// edge-neighbor queries pass through uncached - they are indexed lookups
// and their result sets vary with the query.
//
// # Thread Safety
//
// Safe for concurrent use; go-cache handles its own locking.
type CachedStore struct {
	EvidenceStore
	chunks *gocache.Cache
	spans  *gocache.Cache
}

// NewCachedStore wraps inner with a chunk/justification cache using the
// given TTL. A TTL of zero keeps entries until eviction.
func NewCachedStore(inner EvidenceStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		EvidenceStore: inner,
		chunks:        gocache.New(ttl, 2*ttl),
		spans:         gocache.New(ttl, 2*ttl),
	}
}

// GetChunk serves from cache when possible. Negative results are not
// cached: a missing chunk is an integrity signal the validator must see
// fresh.
func (c *CachedStore) GetChunk(ctx context.Context, chunkID string) (*datatypes.EvidenceChunk, error) {
	if hit, ok := c.chunks.Get(chunkID); ok {
		return hit.(*datatypes.EvidenceChunk), nil
	}
	chunk, err := c.EvidenceStore.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	c.chunks.SetDefault(chunkID, chunk)
	return chunk, nil
}

// GetChunks serves cached entries and batch-fetches only the misses.
func (c *CachedStore) GetChunks(ctx context.Context, chunkIDs []string) (map[string]*datatypes.EvidenceChunk, error) {
	out := make(map[string]*datatypes.EvidenceChunk, len(chunkIDs))
	var misses []string
	for _, id := range chunkIDs {
		if hit, ok := c.chunks.Get(id); ok {
			out[id] = hit.(*datatypes.EvidenceChunk)
		} else {
			misses = append(misses, id)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}
	fetched, err := c.EvidenceStore.GetChunks(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, chunk := range fetched {
		c.chunks.SetDefault(id, chunk)
		out[id] = chunk
	}
	return out, nil
}

// GetJustificationSpans caches per-edge justification span lists.
func (c *CachedStore) GetJustificationSpans(ctx context.Context, edgeID string) ([]datatypes.CitationSpan, error) {
	if hit, ok := c.spans.Get(edgeID); ok {
		return hit.([]datatypes.CitationSpan), nil
	}
	spans, err := c.EvidenceStore.GetJustificationSpans(ctx, edgeID)
	if err != nil {
		return nil, err
	}
	c.spans.SetDefault(edgeID, spans)
	return spans, nil
}
