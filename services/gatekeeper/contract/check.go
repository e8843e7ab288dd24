// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contract

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

// maxHeaderRunes bounds how long a non-bulleted line can be and still
// terminate a section's bullet run.
const maxHeaderRunes = 60

// =============================================================================
// Contract Check
// =============================================================================

// Check scores a candidate answer against a contract.
//
// # Description
//
// Five checks run unconditionally: required-entity coverage, section
// non-emptiness, compare-block fields, the graph requirement, and the
// at-least-one-citation rule. Failures accumulate as reason codes. The
// outcome is PASS_FULL only when no reason accumulated. A graph-failing
// answer that carries the honest-partial template (an explicit
// supported/unsupported split plus a statement naming the grounding
// gap) is downgraded to PASS_PARTIAL instead of FAIL, with
// EMPTY_SECTION reasons suppressed since the partial template omits the
// full section set on purpose.
//
// # Inputs
//
//   - ctx: Used only for tracing; the check itself is pure.
//   - spec: The contract derived for the question.
//   - answer: Candidate answer text.
//   - citations: Citations attached to the answer.
//   - usedEdges: Graph edges the answer relied on.
//
// # Outputs
//
//   - datatypes.ContractMetrics: Outcome plus machine reason codes.
//     Never an error; contract violations are data.
func (e *Engine) Check(ctx context.Context, spec datatypes.ContractSpec, answer string, citations []datatypes.Citation, usedEdges []datatypes.UsedEdge) datatypes.ContractMetrics {
	_, span := contractTracer.Start(ctx, "Engine.Check")
	defer span.End()
	span.SetAttributes(attribute.String("contract.intent", string(spec.IntentType)))

	var reasons []datatypes.ReasonCode

	entityCoverage := e.entityCoverage(spec.RequiredEntities, answer)
	if len(spec.RequiredEntities) > 0 && entityCoverage < 1.0 {
		reasons = append(reasons, datatypes.ReasonMissingRequiredEntities)
	}

	sectionRatio := 1.0
	if len(spec.RequiredSections) > 0 {
		nonempty := 0
		for _, header := range spec.RequiredSections {
			if e.sectionNonempty(answer, header) {
				nonempty++
			} else {
				reasons = append(reasons, datatypes.EmptySectionReason(header))
			}
		}
		sectionRatio = float64(nonempty) / float64(len(spec.RequiredSections))
	}

	if spec.IntentType == datatypes.IntentCompare {
		reasons = append(reasons, e.checkCompareBlocks(answer, spec.RequiredEntities)...)
	}

	graphSatisfied := true
	if spec.RequiresGraph {
		graphSatisfied = false
		links, groups := summarizeEdges(usedEdges, e.groupOf)
		switch {
		case links < spec.MinLinks:
			reasons = append(reasons, datatypes.ReasonMissingUsedGraphEdges)
		case groups < spec.MinDistinctGroups:
			reasons = append(reasons, datatypes.ReasonInsufficientGroups)
		default:
			graphSatisfied = true
		}
	}

	if strings.TrimSpace(answer) != "" && len(citations) == 0 {
		reasons = append(reasons, datatypes.ReasonNoCitations)
	}

	metrics := datatypes.ContractMetrics{
		Reasons:                       reasons,
		SectionNonemptyRatio:          sectionRatio,
		RequiredEntitiesCoverageRatio: entityCoverage,
		GraphRequiredSatisfied:        graphSatisfied,
	}
	switch {
	case len(reasons) == 0:
		metrics.Outcome = datatypes.OutcomePassFull
	case spec.RequiresGraph && e.hasPartialTemplate(answer):
		metrics.Outcome = datatypes.OutcomePassPartial
		metrics.Reasons = dropEmptySectionReasons(reasons)
	default:
		metrics.Outcome = datatypes.OutcomeFail
	}
	span.SetAttributes(attribute.String("contract.outcome", string(metrics.Outcome)))
	return metrics
}

// entityCoverage is the fraction of required surface strings present in
// the answer after normalization.
func (e *Engine) entityCoverage(required []string, answer string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	found := 0
	for _, name := range required {
		if textnorm.Contains(answer, name) {
			found++
		}
	}
	return float64(found) / float64(len(required))
}

// sectionNonempty locates the header line and counts bullet lines until
// the next header-like line. One bullet is enough.
func (e *Engine) sectionNonempty(answer, header string) bool {
	lines := strings.Split(answer, "\n")
	headerIdx := -1
	for i, line := range lines {
		if !isBullet(line) && textnorm.Contains(line, header) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return false
	}
	for _, line := range lines[headerIdx+1:] {
		if isBullet(line) {
			return true
		}
		if isHeaderLike(line) {
			break
		}
	}
	return false
}

// checkCompareBlocks parses the answer into per-concept blocks and
// requires every fixed compare field in every required concept block.
//
// A block opens with a bullet of the form "- <concept>:" (nothing after
// the colon) and collects "- <field>: <value>" bullets until the next
// block opener.
func (e *Engine) checkCompareBlocks(answer string, requiredConcepts []string) []datatypes.ReasonCode {
	type block struct {
		name   string
		fields map[string]bool
	}
	var blocks []block
	var current *block
	for _, line := range strings.Split(answer, "\n") {
		if !isBullet(line) {
			continue
		}
		content := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• \t"))
		name, value, hasColon := strings.Cut(content, ":")
		if !hasColon {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if value == "" {
			blocks = append(blocks, block{name: name, fields: make(map[string]bool)})
			current = &blocks[len(blocks)-1]
			continue
		}
		if current == nil {
			continue
		}
		for _, field := range e.rules.CompareFields {
			if textnorm.Normalize(name) == textnorm.Normalize(field) {
				current.fields[field] = true
			}
		}
	}

	var reasons []datatypes.ReasonCode
	for _, concept := range requiredConcepts {
		var match *block
		for i := range blocks {
			if textnorm.Contains(blocks[i].name, concept) || textnorm.Contains(concept, blocks[i].name) {
				match = &blocks[i]
				break
			}
		}
		for _, field := range e.rules.CompareFields {
			if match == nil || !match.fields[field] {
				reasons = append(reasons, datatypes.CompareMissingFieldReason(concept, field))
			}
		}
	}
	return reasons
}

// hasPartialTemplate reports whether the answer carries the explicit
// supported/unsupported split and a statement naming the grounding gap.
func (e *Engine) hasPartialTemplate(answer string) bool {
	normalized := textnorm.Normalize(answer)
	containsAny := func(markers []string) bool {
		for _, m := range markers {
			if strings.Contains(normalized, m) {
				return true
			}
		}
		return false
	}
	return containsAny(e.rules.PartialMarkers.Supported) &&
		containsAny(e.rules.PartialMarkers.Unsupported) &&
		containsAny(e.rules.PartialMarkers.Gap)
}

// summarizeEdges counts distinct edges and the distinct top-level groups
// their endpoints span.
func summarizeEdges(usedEdges []datatypes.UsedEdge, groupOf GroupExtractor) (links, groups int) {
	edgeIDs := make(map[string]bool)
	groupSet := make(map[string]bool)
	for _, used := range usedEdges {
		edgeIDs[used.Edge.EdgeID] = true
		groupSet[groupOf(used.Edge.FromNode)] = true
		groupSet[groupOf(used.Edge.ToNode)] = true
	}
	return len(edgeIDs), len(groupSet)
}

func dropEmptySectionReasons(reasons []datatypes.ReasonCode) []datatypes.ReasonCode {
	kept := make([]datatypes.ReasonCode, 0, len(reasons))
	for _, r := range reasons {
		if !datatypes.IsEmptySectionReason(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

func isBullet(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "- ") ||
		strings.HasPrefix(trimmed, "* ") ||
		strings.HasPrefix(trimmed, "• ")
}

// isHeaderLike marks a short, non-bulleted line containing a space as
// the start of the next section.
func isHeaderLike(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || isBullet(trimmed) {
		return false
	}
	return utf8.RuneCountInString(trimmed) <= maxHeaderRunes && strings.Contains(trimmed, " ")
}
