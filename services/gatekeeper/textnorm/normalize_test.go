// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalize_StripsArabicDiacritics verifies that harakat and shadda
// are removed while base letters survive.
func TestNormalize_StripsArabicDiacritics(t *testing.T) {
	assert.Equal(t, "الصلاه", Normalize("الصَّلَاةُ"))
	assert.Equal(t, "محمد", Normalize("مُحَمَّدٌ"))
}

// TestNormalize_FoldsHamzaForms verifies that hamza carrier letters fold
// onto their base letters.
func TestNormalize_FoldsHamzaForms(t *testing.T) {
	assert.Equal(t, Normalize("الإيمان"), Normalize("الايمان"))
	assert.Equal(t, "امن", Normalize("آمن"))
	assert.Equal(t, "سوال", Normalize("سؤال"))
}

// TestNormalize_RemovesTatweel verifies elongation removal.
func TestNormalize_RemovesTatweel(t *testing.T) {
	assert.Equal(t, "صبر", Normalize("صـــبر"))
}

// TestNormalize_FoldsWhitespaceAndPunctuation verifies that punctuation
// becomes a single space and whitespace runs collapse.
func TestNormalize_FoldsWhitespaceAndPunctuation(t *testing.T) {
	assert.Equal(t, "البقره 1", Normalize("[البقرة: 1]"))
	assert.Equal(t, "a b c", Normalize("  A,  b ... C!  "))
}

// TestNormalize_Idempotent verifies Normalize(Normalize(x)) == Normalize(x).
func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"الصَّلَاةُ عِمَادُ الدِّينِ",
		"[البقرة: 1] — quote",
		"Mixed العَرَبِيَّة and English, too.",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

// TestTerms_KeepsDigitsDropsShortTokens verifies the term filter keeps
// pure-digit tokens and drops sub-minimum fragments.
func TestTerms_KeepsDigitsDropsShortTokens(t *testing.T) {
	terms := Terms("aya 1 of إن the text", 3)
	assert.Contains(t, terms, "aya")
	assert.Contains(t, terms, "1")
	assert.Contains(t, terms, "text")
	assert.NotContains(t, terms, "of")
}

// TestContentTokens_DropsStopwords verifies stopword removal in both
// languages.
func TestContentTokens_DropsStopwords(t *testing.T) {
	toks := ContentTokens("الفرق بين الصبر والشكر in the book")
	assert.NotContains(t, toks, "بين")
	assert.NotContains(t, toks, "the")
	assert.Contains(t, toks, "الفرق")
	assert.Contains(t, toks, "book")
}

// TestContains_NormalizedSubstring verifies diacritic-insensitive
// containment and that an empty needle never matches.
func TestContains_NormalizedSubstring(t *testing.T) {
	assert.True(t, Contains("إنما الأعمال بالنيات", "الاعمال بالنيات"))
	assert.False(t, Contains("anything", ""))
}

// TestTokenOverlap verifies the asymmetric overlap ratio.
func TestTokenOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, TokenOverlap("صلاة الجماعة", "فضل صلاة الجماعة في المسجد"), 1e-9)
	assert.InDelta(t, 0.5, TokenOverlap("صلاة الوتر", "فضل صلاة الجماعة"), 1e-9)
	assert.Zero(t, TokenOverlap("", "something"))
}
