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
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

var contractTracer = otel.Tracer("aleutian.gatekeeper.contract")

// quotedSpanRe captures concept names enclosed in straight, guillemet,
// or single quotes.
var quotedSpanRe = regexp.MustCompile(`"([^"]+)"|«([^»]+)»|'([^']+)'`)

// =============================================================================
// Intent Classification
// =============================================================================

// classify runs the ordered keyword cascade over the normalized
// question. First hit wins; no hit is generic.
func (e *Engine) classify(normalizedQuestion string) datatypes.IntentType {
	for _, rule := range e.rules.Intents {
		for _, kw := range rule.Keywords {
			if strings.Contains(normalizedQuestion, kw) {
				return datatypes.IntentType(rule.Intent)
			}
		}
	}
	return datatypes.IntentGeneric
}

// DeriveSpec builds the contract a question's intent imposes on an
// acceptable answer.
//
// # Description
//
// Intent comes from the keyword cascade. Required sections and graph
// requirements come from the rule tables. Required entities are taken
// from dataset hints when present; for compare questions they are
// extracted from the question itself (quoted spans, or the operands of
// a "between X and Y" connective); otherwise the resolved entity names
// are used.
//
// # Inputs
//
//   - question: Raw question text; normalization happens internally.
//   - entities: Entities resolved against the corpus catalog.
//   - hints: Optional per-question dataset hints. A declared graph-path
//     hint upgrades a non-graph intent to a one-link graph requirement.
//
// # Outputs
//
//   - datatypes.ContractSpec: Immutable; built exactly once per
//     question.
func (e *Engine) DeriveSpec(question string, entities []datatypes.ResolvedEntity, hints *datatypes.DatasetHints) datatypes.ContractSpec {
	intent := e.classify(textnorm.Normalize(question))

	spec := datatypes.ContractSpec{
		IntentType:       intent,
		RequiredSections: e.rules.Sections[string(intent)],
	}
	if g, ok := e.rules.Graph[string(intent)]; ok {
		spec.RequiresGraph = true
		spec.MinLinks = g.MinLinks
		spec.MinDistinctGroups = g.MinDistinctGroups
	}
	if hints != nil && hints.RequiresGraphPath && !spec.RequiresGraph {
		spec.RequiresGraph = true
		spec.MinLinks = 1
	}

	switch {
	case hints != nil && len(hints.RequiredEntities) > 0:
		spec.RequiredEntities = hints.RequiredEntities
	case intent == datatypes.IntentCompare:
		spec.RequiredEntities = extractCompareConcepts(question)
	default:
		for _, entity := range entities {
			spec.RequiredEntities = append(spec.RequiredEntities, entity.Name)
		}
	}

	spec.AllowFollowups = intent == datatypes.IntentGeneric || intent == datatypes.IntentScenario
	return spec
}

// extractCompareConcepts pulls the concept coverage set out of a compare
// question: quoted spans first, then the operands of a "between X and Y"
// connective split on the coordinating conjunction.
func extractCompareConcepts(question string) []string {
	var concepts []string
	for _, match := range quotedSpanRe.FindAllStringSubmatch(question, -1) {
		for _, group := range match[1:] {
			if group != "" {
				concepts = append(concepts, strings.TrimSpace(group))
			}
		}
	}
	if len(concepts) > 0 {
		return concepts
	}

	for _, connective := range []string{"بين ", "between "} {
		idx := strings.Index(question, connective)
		if idx < 0 {
			continue
		}
		rest := question[idx+len(connective):]
		if cut := strings.IndexAny(rest, "؟?."); cut >= 0 {
			rest = rest[:cut]
		}
		for _, conj := range []string{" و", " and "} {
			if parts := strings.SplitN(rest, conj, 2); len(parts) == 2 {
				left := strings.TrimSpace(parts[0])
				right := strings.TrimSpace(parts[1])
				if left != "" && right != "" {
					return []string{left, right}
				}
			}
		}
	}
	return nil
}
