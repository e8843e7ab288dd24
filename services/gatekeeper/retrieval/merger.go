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
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// retrievalTracer is the OpenTelemetry tracer for retrieval operations.
var retrievalTracer = otel.Tracer("aleutian.gatekeeper.retrieval")

// =============================================================================
// Backend Interface
// =============================================================================

// Backend is one retrieval source.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the merger invokes
// all backends in parallel within one request.
type Backend interface {
	// Name identifies the backend for provenance tracking.
	Name() datatypes.RetrievalBackend

	// Retrieve returns scored chunk candidates for the query. An empty
	// result is not an error. Implementations must respect ctx
	// cancellation.
	Retrieve(ctx context.Context, query string, entities []datatypes.ResolvedEntity, topK int) ([]datatypes.RankedEvidence, error)
}

// =============================================================================
// Merger
// =============================================================================

// Merger fans a query out to all configured backends concurrently and
// folds the results into one ranked evidence list.
type Merger struct {
	backends []Backend
}

// NewMerger creates a merger over the given backends. Order is
// irrelevant; results are merged by chunk id.
func NewMerger(backends ...Backend) *Merger {
	return &Merger{backends: backends}
}

// Retrieve runs every backend concurrently and merges their rankings.
//
// # Description
//
// Backends execute in parallel under an errgroup sharing the request
// context; the first backend error cancels the rest and fails the call
// (store unavailability is fatal for the request, never papered over
// with partial results). Duplicate chunk ids keep the maximum score
// while recording every contributing backend. The merged list is sorted
// descending by score, ties broken by chunk id, and truncated to topK.
//
// # Inputs
//
//   - ctx: Request context; cancellation aborts all in-flight backends.
//   - query: Raw question text.
//   - entities: Entities resolved from the question.
//   - topK: Maximum merged entries to return.
//
// # Outputs
//
//   - []datatypes.RankedEvidence: Merged ranking with provenance.
//   - error: Non-nil if any backend failed.
func (m *Merger) Retrieve(ctx context.Context, query string, entities []datatypes.ResolvedEntity, topK int) ([]datatypes.RankedEvidence, error) {
	ctx, span := retrievalTracer.Start(ctx, "Merger.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("retrieval.backends", len(m.backends)),
		attribute.Int("retrieval.top_k", topK),
	)

	var mu sync.Mutex
	merged := make(map[string]*datatypes.RankedEvidence)

	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range m.backends {
		g.Go(func() error {
			results, err := backend.Retrieve(gctx, query, entities, topK)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				existing, ok := merged[r.ChunkID]
				if !ok {
					entry := r
					entry.Backends = append([]datatypes.RetrievalBackend(nil), r.Backends...)
					if len(entry.Backends) == 0 {
						entry.Backends = []datatypes.RetrievalBackend{backend.Name()}
					}
					merged[r.ChunkID] = &entry
					continue
				}
				if r.Score > existing.Score {
					existing.Score = r.Score
				}
				existing.Backends = appendBackend(existing.Backends, backend.Name())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval backend failed")
		return nil, err
	}

	ranked := make([]datatypes.RankedEvidence, 0, len(merged))
	for _, entry := range merged {
		ranked = append(ranked, *entry)
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

	span.SetAttributes(attribute.Int("retrieval.merged_count", len(ranked)))
	return ranked, nil
}

// Trace summarizes a merged ranking for the eligibility gate: top-1
// score and the mean over the top 10 entries.
func Trace(ranked []datatypes.RankedEvidence) datatypes.RetrievalTrace {
	trace := datatypes.RetrievalTrace{ResultCount: len(ranked)}
	if len(ranked) == 0 {
		return trace
	}
	trace.Top1Score = ranked[0].Score
	n := len(ranked)
	if n > 10 {
		n = 10
	}
	sum := 0.0
	for _, r := range ranked[:n] {
		sum += r.Score
	}
	trace.MeanTopK = sum / float64(n)
	return trace
}

func appendBackend(list []datatypes.RetrievalBackend, b datatypes.RetrievalBackend) []datatypes.RetrievalBackend {
	for _, existing := range list {
		if existing == b {
			return list
		}
	}
	return append(list, b)
}
