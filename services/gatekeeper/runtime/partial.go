// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runtime

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// maxPartialEvidence bounds how many evidence chunks a composed partial
// answer cites.
const maxPartialEvidence = 3

// Fixed refusal sentences, by language.
var refusalTexts = map[string]string{
	"ar": "لا توجد معلومات كافية في المصادر المتاحة للإجابة على هذا السؤال.",
	"en": "There is not enough information in the available sources to answer this question.",
}

// Partial-template strings. These must stay recognizable to the
// contract checker's partial markers.
var partialStrings = map[string]struct {
	supportedHeader   string
	unsupportedHeader string
	unsupportedBody   string
	gapStatement      string
}{
	"ar": {
		supportedHeader:   "ما تدعمه الأدلة:",
		unsupportedHeader: "ما لا يمكن إثباته:",
		unsupportedBody:   "- بقية عناصر السؤال لا تسندها المصادر المتاحة",
		gapStatement:      "- لا توجد روابط موثقة في المصادر بين العناصر المطلوبة",
	},
	"en": {
		supportedHeader:   "What the evidence supports:",
		unsupportedHeader: "What cannot be asserted:",
		unsupportedBody:   "- the remaining parts of the question are not backed by the available sources",
		gapStatement:      "- there are no grounded links between the requested elements in the sources",
	},
}

func refusalText(language string) string {
	if text, ok := refusalTexts[language]; ok {
		return text
	}
	return refusalTexts["ar"]
}

func partialTemplate(language string) struct {
	supportedHeader   string
	unsupportedHeader string
	unsupportedBody   string
	gapStatement      string
} {
	if t, ok := partialStrings[language]; ok {
		return t
	}
	return partialStrings["ar"]
}

// composePartial builds the deterministic two-part honest answer: the
// strongest evidence verbatim under a "supported" header, and an
// explicit statement of what cannot be asserted. Used both for scenario
// partials and for graph-gap partials; the graph gap adds the
// no-grounded-links statement.
//
// Returns nil when there is no evidence to quote - the caller falls
// through to the next state.
func composePartial(evidence []datatypes.EvidencePacket, language string, graphGap bool) *datatypes.GenerationResult {
	var spans []datatypes.CitationSpan
	var bullets []string
	for _, packet := range evidence {
		if len(spans) == maxPartialEvidence {
			break
		}
		quote, end := leadingQuote(packet.Text)
		if quote == "" {
			continue
		}
		spans = append(spans, datatypes.CitationSpan{
			ChunkID:   packet.ChunkID,
			SpanStart: 0,
			SpanEnd:   end,
			Quote:     quote,
		})
		bullets = append(bullets, fmt.Sprintf("- %s", quote))
	}
	if len(spans) == 0 {
		return nil
	}

	t := partialTemplate(language)
	var b strings.Builder
	b.WriteString(t.supportedHeader)
	b.WriteString("\n")
	b.WriteString(strings.Join(bullets, "\n"))
	b.WriteString("\n")
	b.WriteString(t.unsupportedHeader)
	b.WriteString("\n")
	b.WriteString(t.unsupportedBody)
	if graphGap {
		b.WriteString("\n")
		b.WriteString(t.gapStatement)
	}

	return &datatypes.GenerationResult{
		Answer:     b.String(),
		Citations:  spans,
		Confidence: datatypes.ConfidenceMedium,
	}
}

// leadingQuote takes the first MaxQuoteWords words of the text and the
// byte offset just past them, so the span is valid by construction.
func leadingQuote(text string) (string, int) {
	words := 0
	end := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				inWord = false
				words++
				end = i
				if words == datatypes.MaxQuoteWords {
					break
				}
			}
			continue
		}
		inWord = true
	}
	if inWord {
		words++
		end = len(text)
	}
	if words == 0 {
		return "", 0
	}
	return strings.Join(strings.Fields(text[:end]), " "), end
}
