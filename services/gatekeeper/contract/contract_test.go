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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	require.NoError(t, err)
	return e
}

func someCitations() []datatypes.Citation {
	return []datatypes.Citation{{ChunkID: "c1", SourceAnchor: "doc#1"}}
}

func edge(id, from, to string) datatypes.UsedEdge {
	return datatypes.UsedEdge{Edge: datatypes.GraphEdge{
		EdgeID: id, FromNode: from, ToNode: to, RelationType: "supports", Status: datatypes.EdgeApproved,
	}}
}

// =============================================================================
// DeriveSpec
// =============================================================================

func TestDeriveSpec_CompareExtractsConcepts(t *testing.T) {
	e := newTestEngine(t)
	spec := e.DeriveSpec("ما الفرق بين الصلاة والزكاة؟", nil, nil)

	assert.Equal(t, datatypes.IntentCompare, spec.IntentType)
	assert.False(t, spec.RequiresGraph)
	assert.Equal(t, []string{"الصلاة", "الزكاة"}, spec.RequiredEntities)
}

func TestDeriveSpec_CompareQuotedConceptsWin(t *testing.T) {
	e := newTestEngine(t)
	spec := e.DeriveSpec(`قارن بين "الإيمان" و "الإحسان"`, nil, nil)

	assert.Equal(t, datatypes.IntentCompare, spec.IntentType)
	assert.Equal(t, []string{"الإيمان", "الإحسان"}, spec.RequiredEntities)
}

func TestDeriveSpec_NetworkRequiresGraph(t *testing.T) {
	e := newTestEngine(t)
	spec := e.DeriveSpec("ابن شبكة من العلاقات بين أركان الإسلام", nil, nil)

	assert.Equal(t, datatypes.IntentNetwork, spec.IntentType)
	assert.True(t, spec.RequiresGraph)
	assert.Equal(t, 3, spec.MinLinks)
	assert.Equal(t, 4, spec.MinDistinctGroups)
}

func TestDeriveSpec_CascadeOrderFirstMatchWins(t *testing.T) {
	e := newTestEngine(t)
	// Carries both a compare marker and a relation marker; compare is
	// tested first.
	spec := e.DeriveSpec("قارن العلاقة بين الصبر والشكر", nil, nil)
	assert.Equal(t, datatypes.IntentCompare, spec.IntentType)
}

func TestDeriveSpec_GenericFallback(t *testing.T) {
	e := newTestEngine(t)
	entities := []datatypes.ResolvedEntity{{Name: "الصوم", EntityType: "pillar", EntityID: "sawm"}}
	spec := e.DeriveSpec("ما حكم الصوم في السفر؟", entities, nil)

	assert.Equal(t, datatypes.IntentGeneric, spec.IntentType)
	assert.False(t, spec.RequiresGraph)
	assert.Equal(t, []string{"الصوم"}, spec.RequiredEntities)
	assert.True(t, spec.AllowFollowups)
}

func TestDeriveSpec_HintsOverrideEntitiesAndForceGraph(t *testing.T) {
	e := newTestEngine(t)
	hints := &datatypes.DatasetHints{
		RequiredEntities:  []string{"التوحيد"},
		RequiresGraphPath: true,
	}
	spec := e.DeriveSpec("ما حكم الصوم؟", nil, hints)

	assert.Equal(t, []string{"التوحيد"}, spec.RequiredEntities)
	assert.True(t, spec.RequiresGraph)
	assert.Equal(t, 1, spec.MinLinks)
}

// =============================================================================
// Check
// =============================================================================

func TestCheck_PassFull(t *testing.T) {
	e := newTestEngine(t)
	spec := e.DeriveSpec("ما العلاقة بين الصلاة والزكاة؟", nil, nil)
	require.Equal(t, datatypes.IntentCrossPillar, spec.IntentType)

	answer := "العلاقة:\n- الصلاة والزكاة يقترنان في القرآن\nالدليل العام\n- وأقيموا الصلاة وآتوا الزكاة"
	edges := []datatypes.UsedEdge{edge("e1", "pillar:salah", "pillar:zakah")}

	metrics := e.Check(context.Background(), spec, answer, someCitations(), edges)
	assert.Equal(t, datatypes.OutcomePassFull, metrics.Outcome, "reasons: %v", metrics.Reasons)
	assert.Empty(t, metrics.Reasons)
	assert.True(t, metrics.GraphRequiredSatisfied)
	assert.InDelta(t, 1.0, metrics.SectionNonemptyRatio, 1e-9)
	assert.InDelta(t, 1.0, metrics.RequiredEntitiesCoverageRatio, 1e-9)
}

// TestCheck_NetworkTooFewEdges covers the canonical under-linked network
// answer: two distinct edges against a three-link minimum.
func TestCheck_NetworkTooFewEdges(t *testing.T) {
	e := newTestEngine(t)
	spec := datatypes.ContractSpec{
		IntentType:        datatypes.IntentNetwork,
		RequiresGraph:     true,
		MinLinks:          3,
		MinDistinctGroups: 4,
	}
	edges := []datatypes.UsedEdge{
		edge("e1", "pillar:salah", "pillar:zakah"),
		edge("e2", "pillar:zakah", "pillar:sawm"),
	}

	metrics := e.Check(context.Background(), spec, "شبكة العلاقات...", someCitations(), edges)
	assert.Equal(t, datatypes.OutcomeFail, metrics.Outcome)
	assert.True(t, metrics.HasReason(datatypes.ReasonMissingUsedGraphEdges))
	assert.False(t, metrics.GraphRequiredSatisfied)
}

func TestCheck_NetworkTooFewGroups(t *testing.T) {
	e := newTestEngine(t)
	spec := datatypes.ContractSpec{
		IntentType:        datatypes.IntentNetwork,
		RequiresGraph:     true,
		MinLinks:          3,
		MinDistinctGroups: 4,
	}
	// Three edges but only two node-type groups.
	edges := []datatypes.UsedEdge{
		edge("e1", "pillar:salah", "concept:khushu"),
		edge("e2", "pillar:zakah", "concept:ihsan"),
		edge("e3", "pillar:sawm", "concept:sabr"),
	}

	metrics := e.Check(context.Background(), spec, "شبكة العلاقات...", someCitations(), edges)
	assert.Equal(t, datatypes.OutcomeFail, metrics.Outcome)
	assert.True(t, metrics.HasReason(datatypes.ReasonInsufficientGroups))
}

// TestCheck_CompareMissingField covers a compare block lacking one of
// the three fixed fields.
func TestCheck_CompareMissingField(t *testing.T) {
	e := newTestEngine(t)
	spec := datatypes.ContractSpec{
		IntentType:       datatypes.IntentCompare,
		RequiredEntities: []string{"الصلاة", "الزكاة"},
	}
	answer := "- الصلاة:\n" +
		"  - التعريف: عبادة ذات أقوال وأفعال\n" +
		"  - الدليل: وأقيموا الصلاة\n" +
		"  - الخطأ الشائع: تأخيرها عن وقتها\n" +
		"- الزكاة:\n" +
		"  - التعريف: حق مالي واجب في المال\n" +
		"  - الدليل: وآتوا الزكاة\n"

	metrics := e.Check(context.Background(), spec, answer, someCitations(), nil)
	assert.Equal(t, datatypes.OutcomeFail, metrics.Outcome)
	assert.True(t, metrics.HasReason(datatypes.CompareMissingFieldReason("الزكاة", "الخطأ الشائع")))
	assert.False(t, metrics.HasReason(datatypes.CompareMissingFieldReason("الصلاة", "الخطأ الشائع")))
}

func TestCheck_NoCitationsOnNonemptyAnswer(t *testing.T) {
	e := newTestEngine(t)
	spec := datatypes.ContractSpec{IntentType: datatypes.IntentGeneric}

	metrics := e.Check(context.Background(), spec, "جواب بلا استشهاد", nil, nil)
	assert.Equal(t, datatypes.OutcomeFail, metrics.Outcome)
	assert.True(t, metrics.HasReason(datatypes.ReasonNoCitations))
}

// TestCheck_PartialTemplateDowngradesToPassPartial verifies that a
// graph-failing answer carrying the honest-partial template becomes
// PASS_PARTIAL with EMPTY_SECTION reasons suppressed.
func TestCheck_PartialTemplateDowngradesToPassPartial(t *testing.T) {
	e := newTestEngine(t)
	spec := datatypes.ContractSpec{
		IntentType:       datatypes.IntentCrossPillar,
		RequiredSections: []string{"العلاقة", "الدليل"},
		RequiresGraph:    true,
		MinLinks:         1,
	}
	answer := "ما تدعمه الأدلة:\n- الصلاة مذكورة مع الزكاة\n" +
		"ما لا يمكن إثباته:\n- لا توجد روابط موثقة بين المفهومين في المصادر\n"

	metrics := e.Check(context.Background(), spec, answer, someCitations(), nil)
	assert.Equal(t, datatypes.OutcomePassPartial, metrics.Outcome)
	assert.False(t, metrics.GraphRequiredSatisfied)
	assert.True(t, metrics.HasReason(datatypes.ReasonMissingUsedGraphEdges))
	for _, r := range metrics.Reasons {
		assert.False(t, datatypes.IsEmptySectionReason(r), "EMPTY_SECTION must be suppressed, got %s", r)
	}
}

// TestCheck_Monotonicity verifies that adding a required-but-missing
// section can only move the outcome away from PASS_FULL.
func TestCheck_Monotonicity(t *testing.T) {
	e := newTestEngine(t)
	answer := "العلاقة:\n- الصلاة تقترن بالزكاة"
	edges := []datatypes.UsedEdge{edge("e1", "pillar:salah", "pillar:zakah")}

	base := datatypes.ContractSpec{
		IntentType:       datatypes.IntentCrossPillar,
		RequiredSections: []string{"العلاقة"},
		RequiresGraph:    true,
		MinLinks:         1,
	}
	before := e.Check(context.Background(), base, answer, someCitations(), edges)
	require.Equal(t, datatypes.OutcomePassFull, before.Outcome)

	stricter := base
	stricter.RequiredSections = []string{"العلاقة", "الدليل"}
	after := e.Check(context.Background(), stricter, answer, someCitations(), edges)
	assert.NotEqual(t, datatypes.OutcomePassFull, after.Outcome)
	assert.True(t, after.HasReason(datatypes.EmptySectionReason("الدليل")))
	assert.Less(t, after.SectionNonemptyRatio, 1.0)
}
