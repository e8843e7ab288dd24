// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval supplies evidence candidates for a question.
//
// Three backends run concurrently - structured entity lookup, BM25
// full-text, and graph-neighbor expansion - and a merger folds their
// results into one ranked list with per-backend provenance.
package retrieval

import (
	"math"
	"sort"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

// BM25 parameters. Standard Robertson values; not tunable at runtime.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// =============================================================================
// BM25Index
// =============================================================================

// bm25Doc is one indexed chunk.
type bm25Doc struct {
	chunkID string
	tf      map[string]int
	length  int
}

// BM25Index is an immutable in-process full-text index over the evidence
// corpus.
//
// # Description
//
// Documents are tokenized to normalized content words over both the
// chunk text and its typed references, so a query containing a reference
// string like "[البقرة: 1]" scores the chunk that carries that
// reference. Pure-digit tokens are kept because reference numerals are
// discriminative.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent scoring.
type BM25Index struct {
	docs   []bm25Doc
	df     map[string]int
	avgLen float64
}

// NewBM25Index builds the index from the full corpus. Chunks whose
// text and refs normalize to nothing are skipped.
func NewBM25Index(chunks []datatypes.EvidenceChunk) *BM25Index {
	idx := &BM25Index{df: make(map[string]int)}
	totalLen := 0
	for _, chunk := range chunks {
		text := chunk.Text
		for _, ref := range chunk.Refs {
			text += " " + ref.Value
		}
		tokens := textnorm.ContentTokens(text)
		if len(tokens) == 0 {
			continue
		}
		doc := bm25Doc{chunkID: chunk.ChunkID, tf: make(map[string]int, len(tokens)), length: len(tokens)}
		for _, tok := range tokens {
			doc.tf[tok]++
		}
		for tok := range doc.tf {
			idx.df[tok]++
		}
		idx.docs = append(idx.docs, doc)
		totalLen += doc.length
	}
	if len(idx.docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(idx.docs))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int { return len(idx.docs) }

// Score ranks the corpus against the query.
//
// # Description
//
// Computes idf(t) = ln(1 + (N - df + 0.5)/(df + 0.5)) and the standard
// BM25 term sum with k1=1.2, b=0.75. Documents scoring zero are excluded
// entirely - the ranked list never contains zero or negative entries.
//
// # Inputs
//
//   - query: Raw question text; tokenized and stopword-filtered here.
//   - topK: Maximum entries to return. Non-positive means unlimited.
//
// # Outputs
//
//   - []datatypes.RankedEvidence: Descending by score; ties break on
//     chunk id for determinism. Empty (not an error) when the query has
//     no content tokens.
func (idx *BM25Index) Score(query string, topK int) []datatypes.RankedEvidence {
	queryTokens := textnorm.ContentTokens(query)
	if len(queryTokens) == 0 || len(idx.docs) == 0 {
		return nil
	}

	n := float64(len(idx.docs))
	idf := make(map[string]float64, len(queryTokens))
	for _, tok := range queryTokens {
		if _, done := idf[tok]; done {
			continue
		}
		df := float64(idx.df[tok])
		idf[tok] = math.Log(1 + (n-df+0.5)/(df+0.5))
	}

	var ranked []datatypes.RankedEvidence
	for _, doc := range idx.docs {
		score := 0.0
		for _, tok := range queryTokens {
			tf := float64(doc.tf[tok])
			if tf == 0 {
				continue
			}
			norm := tf + bm25K1*(1-bm25B+bm25B*float64(doc.length)/idx.avgLen)
			score += idf[tok] * (tf * (bm25K1 + 1)) / norm
		}
		if score > 0 {
			ranked = append(ranked, datatypes.RankedEvidence{
				ChunkID:  doc.chunkID,
				Score:    score,
				Backends: []datatypes.RetrievalBackend{datatypes.BackendBM25},
			})
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}
