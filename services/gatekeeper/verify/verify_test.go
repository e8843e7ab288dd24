// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
)

const salahText = "الصلاة عماد الدين ومن أقامها فقد أقام الدين"

// fakeChunkStore serves canned chunks; graph methods panic since the
// verifier never touches the graph.
type fakeChunkStore struct {
	chunks map[string]*datatypes.EvidenceChunk
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{chunks: map[string]*datatypes.EvidenceChunk{
		"c1": {ChunkID: "c1", Text: salahText, SourceAnchor: "doc#c1"},
	}}
}

func (f *fakeChunkStore) GetChunk(_ context.Context, chunkID string) (*datatypes.EvidenceChunk, error) {
	if c, ok := f.chunks[chunkID]; ok {
		return c, nil
	}
	return nil, store.ErrChunkNotFound
}

func (f *fakeChunkStore) GetChunks(ctx context.Context, ids []string) (map[string]*datatypes.EvidenceChunk, error) {
	out := make(map[string]*datatypes.EvidenceChunk)
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeChunkStore) GetChunkRefs(context.Context, []string) (map[string][]datatypes.ChunkRef, error) {
	return map[string][]datatypes.ChunkRef{}, nil
}
func (f *fakeChunkStore) AllChunks(context.Context) ([]datatypes.EvidenceChunk, error) {
	panic("not implemented")
}
func (f *fakeChunkStore) GetChunksByEntity(context.Context, string, string) ([]datatypes.EvidenceChunk, error) {
	panic("not implemented")
}
func (f *fakeChunkStore) ListEntities(context.Context) ([]store.EntityRecord, error) {
	panic("not implemented")
}
func (f *fakeChunkStore) GetApprovedEdgeNeighbors(context.Context, string, string, []string) ([]store.EdgeNeighbor, error) {
	panic("not implemented")
}
func (f *fakeChunkStore) GetApprovedEdge(context.Context, string, string, string, string, string) (string, bool, error) {
	panic("not implemented")
}
func (f *fakeChunkStore) GetJustificationSpans(context.Context, string) ([]datatypes.CitationSpan, error) {
	panic("not implemented")
}

func fullSpan(quote string) datatypes.CitationSpan {
	return datatypes.CitationSpan{ChunkID: "c1", SpanStart: 0, SpanEnd: len(salahText), Quote: quote}
}

// =============================================================================
// Citation Validation
// =============================================================================

func TestValidateSpan_Valid(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	err := v.ValidateSpan(context.Background(), fullSpan("الصلاة عماد الدين"))
	assert.NoError(t, err)
}

func TestValidateSpan_ChunkNotFound(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	err := v.ValidateSpan(context.Background(), datatypes.CitationSpan{ChunkID: "missing", SpanEnd: 5, Quote: "x"})
	ce, ok := IsCitationError(err)
	require.True(t, ok)
	assert.Equal(t, CodeChunkNotFound, ce.Code)
}

func TestValidateSpan_OutOfBounds(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	cases := []datatypes.CitationSpan{
		{ChunkID: "c1", SpanStart: -1, SpanEnd: 5, Quote: "x"},
		{ChunkID: "c1", SpanStart: 5, SpanEnd: 5, Quote: "x"},
		{ChunkID: "c1", SpanStart: 0, SpanEnd: len(salahText) + 1, Quote: "x"},
	}
	for _, span := range cases {
		ce, ok := IsCitationError(v.ValidateSpan(context.Background(), span))
		require.True(t, ok)
		assert.Equal(t, CodeSpanOutOfBounds, ce.Code)
	}
}

func TestValidateSpan_QuoteTooLong(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	longQuote := strings.Repeat("كلمة ", datatypes.MaxQuoteWords+1)
	ce, ok := IsCitationError(v.ValidateSpan(context.Background(), fullSpan(longQuote)))
	require.True(t, ok)
	assert.Equal(t, CodeQuoteTooLong, ce.Code)
}

func TestValidateSpan_QuoteMismatch(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	ce, ok := IsCitationError(v.ValidateSpan(context.Background(), fullSpan("الزكاة طهرة للمال")))
	require.True(t, ok)
	assert.Equal(t, CodeQuoteMismatch, ce.Code)
}

// TestValidateSpan_DiacriticsInsensitive verifies that a vocalized quote
// still matches the plain stored text.
func TestValidateSpan_DiacriticsInsensitive(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	assert.NoError(t, v.ValidateSpan(context.Background(), fullSpan("الصَّلاةُ عِمَادُ الدِّين")))
}

func TestResolveSpans_MarksInvalidUnresolved(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	spans := []datatypes.CitationSpan{
		fullSpan("الصلاة عماد الدين"),
		{ChunkID: "missing", SpanStart: 0, SpanEnd: 4, Quote: "غائب"},
	}

	resolved, err := v.ResolveSpans(context.Background(), spans)
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	assert.Equal(t, datatypes.SpanResolved, resolved[0].Status)
	require.NotNil(t, resolved[0].SpanStart)
	assert.Equal(t, 0, *resolved[0].SpanStart)

	assert.Equal(t, datatypes.SpanUnresolved, resolved[1].Status)
	assert.Nil(t, resolved[1].SpanStart)
	assert.Nil(t, resolved[1].SpanEnd)
}

// =============================================================================
// Claim Extraction & Support
// =============================================================================

func TestExtractClaims_PoliciesAndBinding(t *testing.T) {
	answer := "ما تدعمه الأدلة:\nالصلاة عماد الدين.\nالحج واجب على المستطيع مرة في العمر.\nأب."
	spans := []datatypes.CitationSpan{fullSpan("الصلاة عماد الدين")}

	claims := ExtractClaims(answer, spans, datatypes.ModeGrounded)
	require.Len(t, claims, 3, "the two-letter fragment is dropped")

	assert.Equal(t, datatypes.PolicyNoCiteAllowed, claims[0].SupportPolicy)
	assert.Equal(t, datatypes.ClaimMeta, claims[0].ClaimType)

	assert.Equal(t, datatypes.PolicyMustCite, claims[1].SupportPolicy)
	assert.True(t, claims[1].RequiresEvidence)
	assert.Len(t, claims[1].EvidenceSpans, 1, "span shares terms with the claim")

	assert.Equal(t, datatypes.PolicyMustCite, claims[2].SupportPolicy)
	assert.Empty(t, claims[2].EvidenceSpans, "no shared terms, nothing bound")
}

func TestExtractClaims_BaselineModeNeverRequiresEvidence(t *testing.T) {
	claims := ExtractClaims("الصلاة عماد الدين.", nil, datatypes.ModeBaseline)
	require.Len(t, claims, 1)
	assert.Equal(t, datatypes.PolicyMayCite, claims[0].SupportPolicy)
	assert.False(t, claims[0].RequiresEvidence)
}

func TestClaimSupported(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	ctx := context.Background()

	supported, err := v.ClaimSupported(ctx, datatypes.Claim{
		Text:          "الصلاة عماد الدين",
		SupportPolicy: datatypes.PolicyMustCite,
		EvidenceSpans: []datatypes.CitationSpan{fullSpan("الصلاة عماد الدين")},
	})
	require.NoError(t, err)
	assert.True(t, supported)

	// Low term coverage: most of the claim is absent from the evidence.
	supported, err = v.ClaimSupported(ctx, datatypes.Claim{
		Text:          "الزكاة طهرة للمال وحق للفقراء وواجبة في الدين",
		SupportPolicy: datatypes.PolicyMustCite,
		EvidenceSpans: []datatypes.CitationSpan{fullSpan("الصلاة عماد الدين")},
	})
	require.NoError(t, err)
	assert.False(t, supported)

	// Invalid spans are excluded, leaving the claim unsupported.
	supported, err = v.ClaimSupported(ctx, datatypes.Claim{
		Text:          "الصلاة عماد الدين",
		SupportPolicy: datatypes.PolicyMustCite,
		EvidenceSpans: []datatypes.CitationSpan{{ChunkID: "missing", SpanStart: 0, SpanEnd: 4, Quote: "الصلاة"}},
	})
	require.NoError(t, err)
	assert.False(t, supported)

	// Non-MUST_CITE policies are always supported.
	supported, err = v.ClaimSupported(ctx, datatypes.Claim{Text: "عنوان:", SupportPolicy: datatypes.PolicyNoCiteAllowed})
	require.NoError(t, err)
	assert.True(t, supported)
}

// =============================================================================
// Pruner
// =============================================================================

// pruneFixture builds five factual claims of which three are unsupported.
func pruneFixture() []datatypes.Claim {
	supportedSpan := fullSpan("الصلاة عماد الدين")
	continuationSpan := fullSpan("ومن أقامها فقد أقام الدين")
	mustCite := func(id, text string, spans ...datatypes.CitationSpan) datatypes.Claim {
		return datatypes.Claim{
			ID: id, Text: text,
			SupportPolicy: datatypes.PolicyMustCite, RequiresEvidence: true,
			EvidenceSpans: spans, ClaimType: datatypes.ClaimFact,
		}
	}
	return []datatypes.Claim{
		mustCite("s1", "الصلاة عماد الدين", supportedSpan),
		mustCite("s2", "من أقامها فقد أقام الدين", continuationSpan),
		mustCite("s3", "الحج واجب على المستطيع مرة في العمر"),
		mustCite("s4", "الزكاة تطهر المال وتزكي النفوس"),
		mustCite("s5", "الصوم جنة من النار"),
	}
}

// TestPrune_KeepsSupportedOnly covers the canonical prune: of five
// sentences, three unsupported ones drop and two survive.
func TestPrune_KeepsSupportedOnly(t *testing.T) {
	v := NewValidator(newFakeChunkStore())

	result, err := v.PruneAndFailClosed(context.Background(), pruneFixture(), PruneOptions{MinSentences: 2})
	require.NoError(t, err)

	assert.False(t, result.Abstained)
	require.Len(t, result.Claims, 2)
	assert.Equal(t, "s1", result.Claims[0].ID)
	assert.Equal(t, "s2", result.Claims[1].ID)
	assert.ElementsMatch(t, []string{"s3", "s4", "s5"}, result.DroppedIDs)
	assert.Contains(t, result.Answer, "الصلاة عماد الدين")
	assert.NotContains(t, result.Answer, "الحج")
	assert.Len(t, result.Citations, 2)
}

func TestPrune_AbstainsWhenTooLittleSurvives(t *testing.T) {
	v := NewValidator(newFakeChunkStore())

	result, err := v.PruneAndFailClosed(context.Background(), pruneFixture(), PruneOptions{MinSentences: 3})
	require.NoError(t, err)
	assert.True(t, result.Abstained)
	assert.Equal(t, ReasonPrunedTooMuch, result.Reason)
}

// TestPrune_Idempotent verifies that pruning is a pure function of its
// inputs: two runs produce identical output.
func TestPrune_Idempotent(t *testing.T) {
	v := NewValidator(newFakeChunkStore())

	first, err := v.PruneAndFailClosed(context.Background(), pruneFixture(), PruneOptions{})
	require.NoError(t, err)
	second, err := v.PruneAndFailClosed(context.Background(), pruneFixture(), PruneOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Re-pruning the kept claims changes nothing either.
	third, err := v.PruneAndFailClosed(context.Background(), first.Claims, PruneOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.Answer, third.Answer)
	assert.Equal(t, first.Claims, third.Claims)
}

func TestPrune_RelationshipIncomplete(t *testing.T) {
	v := NewValidator(newFakeChunkStore())
	opts := PruneOptions{
		MinSentences:       1,
		RelationshipShaped: true,
		ResolvedEntities: []datatypes.ResolvedEntity{
			{Name: "الصلاة", EntityID: "salah"},
			{Name: "الحج", EntityID: "hajj"},
		},
	}

	result, err := v.PruneAndFailClosed(context.Background(), pruneFixture(), opts)
	require.NoError(t, err)
	assert.True(t, result.Abstained, "only one endpoint survives the prune")
	assert.Equal(t, ReasonRelationshipIncomplete, result.Reason)

	// A dataset-declared graph path disables the check.
	opts.HasDeclaredGraphPath = true
	result, err = v.PruneAndFailClosed(context.Background(), pruneFixture(), opts)
	require.NoError(t, err)
	assert.False(t, result.Abstained)
}
