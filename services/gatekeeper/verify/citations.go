// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify proves that answer text traces to real, offset-valid
// quotes inside stored evidence: citation-span validation, claim
// extraction and support scoring, and the post-generation pruner that
// fails closed when too little supported text survives.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

var verifyTracer = otel.Tracer("aleutian.gatekeeper.verify")

// =============================================================================
// Errors
// =============================================================================

// CitationErrorCode classifies an evidence integrity failure.
type CitationErrorCode string

const (
	CodeChunkNotFound   CitationErrorCode = "CHUNK_NOT_FOUND"
	CodeSpanOutOfBounds CitationErrorCode = "SPAN_OUT_OF_BOUNDS"
	CodeQuoteTooLong    CitationErrorCode = "QUOTE_TOO_LONG"
	CodeQuoteMismatch   CitationErrorCode = "QUOTE_MISMATCH"
)

// CitationError reports one invalid citation span. It is a verification
// verdict, not a store failure: store unavailability is returned as a
// plain wrapped error instead.
type CitationError struct {
	Code    CitationErrorCode
	ChunkID string
	Detail  string
}

func (e *CitationError) Error() string {
	return fmt.Sprintf("citation invalid (%s) for chunk %s: %s", e.Code, e.ChunkID, e.Detail)
}

// IsCitationError reports whether err is a citation verdict and returns
// it when so.
func IsCitationError(err error) (*CitationError, bool) {
	var ce *CitationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// =============================================================================
// Validator
// =============================================================================

// Validator checks citation spans against stored chunk text.
//
// # Thread Safety
//
// Stateless aside from the store handle; safe for concurrent use.
type Validator struct {
	store store.EvidenceStore
}

// NewValidator creates a validator over the given store.
func NewValidator(s store.EvidenceStore) *Validator {
	return &Validator{store: s}
}

// ValidateSpan verifies one citation span.
//
// # Description
//
// Checks run in order: the chunk must exist (CHUNK_NOT_FOUND), offsets
// must satisfy 0 <= start < end <= len(text) (SPAN_OUT_OF_BOUNDS), the
// quote must not exceed the word bound (QUOTE_TOO_LONG), and the
// normalized quote must be a substring of the normalized text slice
// (QUOTE_MISMATCH).
//
// # Outputs
//
//   - error: Nil when valid; *CitationError for a verification
//     failure; any other error is a store failure and fatal for the
//     request.
func (v *Validator) ValidateSpan(ctx context.Context, span datatypes.CitationSpan) error {
	chunk, err := v.store.GetChunk(ctx, span.ChunkID)
	if errors.Is(err, store.ErrChunkNotFound) {
		return &CitationError{Code: CodeChunkNotFound, ChunkID: span.ChunkID, Detail: "no such chunk"}
	}
	if err != nil {
		return fmt.Errorf("chunk fetch failed during citation validation: %w", err)
	}

	if span.SpanStart < 0 || span.SpanStart >= span.SpanEnd || span.SpanEnd > len(chunk.Text) {
		return &CitationError{
			Code:    CodeSpanOutOfBounds,
			ChunkID: span.ChunkID,
			Detail:  fmt.Sprintf("span [%d:%d) outside text of length %d", span.SpanStart, span.SpanEnd, len(chunk.Text)),
		}
	}
	if words := len(strings.Fields(span.Quote)); words > datatypes.MaxQuoteWords {
		return &CitationError{
			Code:    CodeQuoteTooLong,
			ChunkID: span.ChunkID,
			Detail:  fmt.Sprintf("quote has %d words, limit %d", words, datatypes.MaxQuoteWords),
		}
	}
	if !textnorm.Contains(chunk.Text[span.SpanStart:span.SpanEnd], span.Quote) {
		return &CitationError{Code: CodeQuoteMismatch, ChunkID: span.ChunkID, Detail: "quote not found in span text"}
	}
	return nil
}

// ResolveSpans builds the best-effort UI view of a span set. Invalid
// spans are kept but marked unresolved with nil offsets; they are never
// silently dropped and never given guessed offsets.
func (v *Validator) ResolveSpans(ctx context.Context, spans []datatypes.CitationSpan) ([]datatypes.ResolvedSpan, error) {
	ctx, traceSpan := verifyTracer.Start(ctx, "Validator.ResolveSpans")
	defer traceSpan.End()

	out := make([]datatypes.ResolvedSpan, 0, len(spans))
	for _, span := range spans {
		err := v.ValidateSpan(ctx, span)
		if err != nil {
			if _, ok := IsCitationError(err); !ok {
				return nil, err
			}
			out = append(out, datatypes.ResolvedSpan{
				ChunkID: span.ChunkID,
				Quote:   span.Quote,
				Status:  datatypes.SpanUnresolved,
			})
			continue
		}
		start, end := span.SpanStart, span.SpanEnd
		out = append(out, datatypes.ResolvedSpan{
			ChunkID:   span.ChunkID,
			SpanStart: &start,
			SpanEnd:   &end,
			Quote:     span.Quote,
			Status:    datatypes.SpanResolved,
		})
	}
	return out, nil
}
