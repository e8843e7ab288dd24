// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textnorm canonicalizes question, answer, and evidence text for
// matching.
//
// Every string containment or equality test in the gatekeeper goes
// through Normalize first. Normalization is a pure, total, idempotent
// function: Normalize(Normalize(x)) == Normalize(x). It is used only for
// matching, never for rendering.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tatweel is the Arabic elongation character, meaningless for matching.
const tatweel = 'ـ'

// stripMarks decomposes to NFD, removes all combining marks, and
// recomposes. This strips Arabic diacritics (fatha, damma, kasra,
// shadda, sukun, tanween) and folds hamza carrier forms onto their base
// letters, since the hamza forms decompose to base letter plus a
// combining hamza mark.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// letterFolds maps residual Arabic letter variants that do not decompose
// canonically onto their matching form.
var letterFolds = map[rune]rune{
	'ة': 'ه', // teh marbuta -> heh
	'ى': 'ي', // alef maksura -> yeh
}

// Normalize canonicalizes text for matching.
//
// # Description
//
// Applies, in order: combining-mark removal (diacritics, hamza folding),
// tatweel removal, Arabic letter-variant folding, lower-casing,
// punctuation folding to spaces, and whitespace collapsing.
//
// # Inputs
//
//   - text: Arbitrary UTF-8 text. Invalid bytes are dropped.
//
// # Outputs
//
//   - string: Canonical form containing only lower-case letters, digits,
//     and single spaces. Empty input yields an empty string.
func Normalize(text string) string {
	stripped, _, err := transform.String(stripMarks, text)
	if err != nil {
		// transform.String only fails on malformed input; fall back to
		// the raw text rather than dropping it.
		stripped = text
	}

	var b strings.Builder
	b.Grow(len(stripped))
	lastSpace := true
	for _, r := range stripped {
		if r == tatweel {
			continue
		}
		if folded, ok := letterFolds[r]; ok {
			r = folded
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokens splits normalized text into whitespace-delimited tokens. The
// input is normalized first, so callers may pass raw text.
func Tokens(text string) []string {
	n := Normalize(text)
	if n == "" {
		return nil
	}
	return strings.Split(n, " ")
}

// Terms returns the matching terms of text: normalized tokens of at
// least minRunes runes. Pure-digit tokens are kept regardless of length,
// since short numeric references are meaningful evidence keys.
func Terms(text string, minRunes int) []string {
	var out []string
	for _, tok := range Tokens(text) {
		if isDigits(tok) || len([]rune(tok)) >= minRunes {
			out = append(out, tok)
		}
	}
	return out
}

// ContentTokens returns normalized tokens with stopwords removed.
// Pure-digit tokens survive stopword removal.
func ContentTokens(text string) []string {
	var out []string
	for _, tok := range Tokens(text) {
		if isDigits(tok) || !stopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// Contains reports whether the normalized needle occurs inside the
// normalized haystack. An empty needle never matches.
func Contains(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}

// TokenOverlap returns |A ∩ B| / |A| over the normalized token sets of a
// and b, where A is the token set of a. Returns 0 when a has no tokens.
func TokenOverlap(a, b string) float64 {
	aToks := Tokens(a)
	if len(aToks) == 0 {
		return 0
	}
	bSet := make(map[string]struct{}, len(aToks))
	for _, t := range Tokens(b) {
		bSet[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(aToks))
	matched, total := 0, 0
	for _, t := range aToks {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		total++
		if _, ok := bSet[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(total)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// stopwords are dropped from content tokenization. The list mixes the
// Arabic function words that dominate the ingested corpus with the
// English ones that show up in eval questions.
var stopwords = map[string]bool{
	// Arabic
	"في": true, "من": true, "الى": true, "إلى": true, "على": true,
	"عن": true, "ان": true, "أن": true, "إن": true, "و": true,
	"او": true, "أو": true, "ثم": true, "ما": true, "لا": true,
	"لم": true, "لن": true, "قد": true, "كل": true, "هو": true,
	"هي": true, "هذا": true, "هذه": true, "ذلك": true, "التي": true,
	"الذي": true, "مع": true, "اذا": true, "إذا": true, "بين": true,
	// English
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "to": true, "is": true,
	"are": true, "was": true, "be": true, "that": true, "this": true,
	"it": true, "as": true, "at": true, "by": true, "for": true,
	"with": true, "what": true, "which": true, "between": true,
}
