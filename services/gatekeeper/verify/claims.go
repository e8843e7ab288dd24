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
	"fmt"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

// supportCoverageThreshold is the minimum fraction of a claim's terms
// that bound evidence must cover. No partial credit below it.
const supportCoverageThreshold = 0.5

// minClaimAlnum is the minimum alphanumeric character count for a
// sentence fragment to become a claim at all.
const minClaimAlnum = 3

// bindTermMinRunes is the minimum term length used when binding spans to
// claims and when scoring coverage.
const bindTermMinRunes = 3

// metaVocabulary marks refusal/limitation sentences that carry no
// factual load and must not cite. Entries are matched against the
// normalized sentence.
var metaVocabulary = []string{
	"لا توجد معلومات كافيه",
	"لا يمكن اثباته",
	"لا توجد روابط موثقه",
	"المصادر المتاحه",
	"ما تدعمه الادله",
	"خارج نطاق",
	"insufficient evidence",
	"cannot be asserted",
	"no grounded links",
	"out of scope",
}

// =============================================================================
// Claim Extraction
// =============================================================================

// ExtractClaims segments an answer into sentence-like units and assigns
// each a support policy.
//
// # Description
//
// Units are bounded by terminal punctuation or newlines. Fragments with
// fewer than three alphanumeric characters are dropped. A unit matching
// the refusal/limitation vocabulary, or shaped like a structural
// header, is meta and must not cite. Every other unit is a factual
// claim: MUST_CITE in grounded mode, MAY_CITE in baseline mode. Each
// MUST_CITE claim is bound to the spans whose quote shares at least one
// normalized term with the claim text.
//
// # Inputs
//
//   - answer: Generated answer text.
//   - spans: Candidate citation spans produced with the answer.
//   - mode: Run mode; baseline mode never requires evidence.
//
// # Outputs
//
//   - []datatypes.Claim: In answer order; never nil for a non-empty
//     answer.
func ExtractClaims(answer string, spans []datatypes.CitationSpan, mode datatypes.RunMode) []datatypes.Claim {
	var claims []datatypes.Claim
	for i, sentence := range splitSentences(answer) {
		if alnumCount(sentence) < minClaimAlnum {
			continue
		}
		claim := datatypes.Claim{
			ID:   fmt.Sprintf("claim-%d", i),
			Text: sentence,
		}
		switch {
		case isMeta(sentence):
			claim.ClaimType = datatypes.ClaimMeta
			claim.SupportPolicy = datatypes.PolicyNoCiteAllowed
		case mode == datatypes.ModeBaseline:
			claim.ClaimType = classifyFactual(sentence)
			claim.SupportPolicy = datatypes.PolicyMayCite
		default:
			claim.ClaimType = classifyFactual(sentence)
			claim.SupportPolicy = datatypes.PolicyMustCite
			claim.RequiresEvidence = true
			claim.EvidenceSpans = bindSpans(sentence, spans)
		}
		claims = append(claims, claim)
	}
	return claims
}

// splitSentences cuts on terminal punctuation and newlines, keeping
// order.
func splitSentences(answer string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range answer {
		switch r {
		case '.', '!', '?', '؟', '…', '\n':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

func alnumCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// isMeta matches the refusal vocabulary or a structural header line.
func isMeta(sentence string) bool {
	trimmed := strings.TrimSpace(sentence)
	if strings.HasSuffix(trimmed, ":") && len(strings.Fields(trimmed)) <= 6 {
		return true
	}
	normalized := textnorm.Normalize(sentence)
	for _, marker := range metaVocabulary {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

func classifyFactual(sentence string) datatypes.ClaimType {
	normalized := textnorm.Normalize(sentence)
	switch {
	case containsAny(normalized, "علاقه", "يرتبط", "ترتبط", "يودي الي", "relationship", "relates to"):
		return datatypes.ClaimRelationship
	case containsAny(normalized, "تعريف", "يعرف بانه", "هو عباده", "هي عباده", "is defined as"):
		return datatypes.ClaimDefinition
	case containsAny(normalized, "ينبغي", "يجب عليك", "يستحب", "should", "recommended"):
		return datatypes.ClaimRecommendation
	default:
		return datatypes.ClaimFact
	}
}

func containsAny(s string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// bindSpans selects the spans whose quote shares at least one term with
// the claim text.
func bindSpans(sentence string, spans []datatypes.CitationSpan) []datatypes.CitationSpan {
	claimTerms := termSet(sentence)
	var bound []datatypes.CitationSpan
	for _, span := range spans {
		for term := range termSet(span.Quote) {
			if claimTerms[term] {
				bound = append(bound, span)
				break
			}
		}
	}
	return bound
}

func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, term := range textnorm.Terms(text, bindTermMinRunes) {
		set[term] = true
	}
	return set
}

// =============================================================================
// Claim Support
// =============================================================================

// ClaimSupported decides whether a claim's bound evidence actually
// carries it.
//
// # Description
//
// Non-MUST_CITE policies are always supported. A MUST_CITE claim needs
// at least one bound span that is independently citation-valid; the
// underlying chunk substrings of all valid spans are concatenated and
// must cover at least half of the claim's normalized terms.
//
// # Outputs
//
//   - bool: Supported verdict.
//   - error: Non-nil only on store failure; citation verdicts on
//     individual spans just exclude those spans.
func (v *Validator) ClaimSupported(ctx context.Context, claim datatypes.Claim) (bool, error) {
	if claim.SupportPolicy != datatypes.PolicyMustCite {
		return true, nil
	}
	if len(claim.EvidenceSpans) == 0 {
		return false, nil
	}

	var evidence strings.Builder
	validSpans := 0
	for _, span := range claim.EvidenceSpans {
		err := v.ValidateSpan(ctx, span)
		if err != nil {
			if _, ok := IsCitationError(err); ok {
				continue
			}
			return false, err
		}
		chunk, err := v.store.GetChunk(ctx, span.ChunkID)
		if err != nil {
			return false, fmt.Errorf("chunk fetch failed during claim support: %w", err)
		}
		evidence.WriteString(chunk.Text[span.SpanStart:span.SpanEnd])
		evidence.WriteString(" ")
		validSpans++
	}
	if validSpans == 0 {
		return false, nil
	}

	claimTerms := termSet(claim.Text)
	if len(claimTerms) == 0 {
		return true, nil
	}
	evidenceTerms := termSet(evidence.String())
	covered := 0
	for term := range claimTerms {
		if evidenceTerms[term] {
			covered++
		}
	}
	return float64(covered)/float64(len(claimTerms)) >= supportCoverageThreshold, nil
}
