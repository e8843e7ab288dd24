// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// staticMaxBullets bounds how many evidence chunks the static backend
// quotes.
const staticMaxBullets = 3

// StaticGenerator answers by quoting the strongest evidence verbatim,
// one bullet per chunk, each carrying its own citation span. It never
// produces text that is not in the corpus, which makes it useful for
// offline runs and smoke tests where no model endpoint is available.
type StaticGenerator struct{}

// NewStaticGenerator returns the deterministic quoting backend.
func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

// Generate quotes up to staticMaxBullets evidence chunks. With no
// quotable evidence it reports not-found rather than inventing an
// answer.
func (g *StaticGenerator) Generate(_ context.Context, in Input) (*datatypes.GenerationResult, error) {
	var bullets []string
	var spans []datatypes.CitationSpan
	for _, packet := range in.Evidence {
		if len(bullets) == staticMaxBullets {
			break
		}
		quote, end := openingWords(packet.Text, datatypes.MaxQuoteWords)
		if quote == "" {
			continue
		}
		bullets = append(bullets, fmt.Sprintf("- %s", quote))
		spans = append(spans, datatypes.CitationSpan{
			ChunkID:   packet.ChunkID,
			SpanStart: 0,
			SpanEnd:   end,
			Quote:     quote,
		})
	}
	if len(bullets) == 0 {
		return &datatypes.GenerationResult{NotFound: true}, nil
	}
	return &datatypes.GenerationResult{
		Answer:     strings.Join(bullets, "\n"),
		Citations:  spans,
		Confidence: datatypes.ConfidenceMedium,
	}, nil
}

// openingWords returns the first maxWords words of text and the byte
// offset just past them, so the resulting span is valid by
// construction.
func openingWords(text string, maxWords int) (string, int) {
	words := 0
	end := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				inWord = false
				words++
				end = i
				if words == maxWords {
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
