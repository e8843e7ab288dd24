// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the deterministic quoting backend

package generation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

func TestStaticGenerator_QuotesEvidenceWithValidSpans(t *testing.T) {
	gen := NewStaticGenerator()

	text := "الصلاة عماد الدين ومن أقامها فقد أقام الدين"
	result, err := gen.Generate(context.Background(), Input{
		Question: "ما حكم الصلاة؟",
		Evidence: []datatypes.EvidencePacket{{ChunkID: "c1", Text: text}},
	})
	require.NoError(t, err)
	require.False(t, result.NotFound)
	require.Len(t, result.Citations, 1)

	span := result.Citations[0]
	assert.Equal(t, "c1", span.ChunkID)
	assert.Equal(t, 0, span.SpanStart)
	// Span must cover the quote within the original text.
	assert.Equal(t, span.Quote, strings.Join(strings.Fields(text[:span.SpanEnd]), " "))
	assert.Contains(t, result.Answer, span.Quote)
}

func TestStaticGenerator_BoundsQuoteLengthAndBullets(t *testing.T) {
	gen := NewStaticGenerator()

	long := strings.Repeat("كلمة ", 60)
	var evidence []datatypes.EvidencePacket
	for i := 0; i < 5; i++ {
		evidence = append(evidence, datatypes.EvidencePacket{ChunkID: "c", Text: long})
	}

	result, err := gen.Generate(context.Background(), Input{Evidence: evidence})
	require.NoError(t, err)
	require.Len(t, result.Citations, staticMaxBullets)
	for _, span := range result.Citations {
		assert.LessOrEqual(t, len(strings.Fields(span.Quote)), datatypes.MaxQuoteWords)
	}
}

func TestStaticGenerator_NoEvidenceIsNotFound(t *testing.T) {
	gen := NewStaticGenerator()

	result, err := gen.Generate(context.Background(), Input{})
	require.NoError(t, err)
	assert.True(t, result.NotFound)
	assert.Empty(t, result.Answer)
}
