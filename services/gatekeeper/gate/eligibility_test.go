// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

func exactEntity(name, id string) datatypes.ResolvedEntity {
	return datatypes.ResolvedEntity{
		Name: name, EntityType: "pillar", EntityID: id,
		Confidence: 1.0, MatchType: datatypes.MatchExact,
	}
}

func strongTrace() datatypes.RetrievalTrace {
	return datatypes.RetrievalTrace{Top1Score: 0.9, MeanTopK: 0.8, ResultCount: 5}
}

func TestDecide_OK(t *testing.T) {
	d := Decide("ما حكم الصلاة في السفر؟", []datatypes.ResolvedEntity{exactEntity("الصلاة", "salah")}, strongTrace())
	assert.True(t, d.ShouldAnswer)
	assert.Equal(t, ReasonOK, d.Reason)
}

func TestDecide_OOSKeywords(t *testing.T) {
	d := Decide("ما هي حالة الطقس غدا؟", []datatypes.ResolvedEntity{exactEntity("الصلاة", "salah")}, strongTrace())
	assert.False(t, d.ShouldAnswer)
	assert.Equal(t, ReasonOOSKeywords, d.Reason)
}

func TestDecide_ShapedQuestionWithoutEntities(t *testing.T) {
	d := Decide("ما هو الإحسان؟", nil, strongTrace())
	assert.False(t, d.ShouldAnswer)
	assert.Equal(t, ReasonNoEntityMatch, d.Reason)
}

func TestDecide_RelationshipRules(t *testing.T) {
	question := "ما العلاقة بين الصلاة والزكاة؟"

	t.Run("too few entities", func(t *testing.T) {
		d := Decide(question, []datatypes.ResolvedEntity{exactEntity("الصلاة", "salah")}, strongTrace())
		assert.Equal(t, ReasonRelationshipTooFew, d.Reason)
	})

	t.Run("low confidence", func(t *testing.T) {
		weak := exactEntity("الزكاة", "zakah")
		weak.Confidence = 0.9
		d := Decide(question, []datatypes.ResolvedEntity{exactEntity("الصلاة", "salah"), weak}, strongTrace())
		assert.Equal(t, ReasonRelationshipLowConfidence, d.Reason)
	})

	t.Run("inexact match", func(t *testing.T) {
		partial := exactEntity("الزكاة", "zakah")
		partial.MatchType = datatypes.MatchPartial
		d := Decide(question, []datatypes.ResolvedEntity{exactEntity("الصلاة", "salah"), partial}, strongTrace())
		assert.Equal(t, ReasonRelationshipInexactMatch, d.Reason)
	})

	t.Run("endpoint mismatch", func(t *testing.T) {
		// Both entities resolved exactly, but neither matches the
		// question's second endpoint.
		d := Decide(question, []datatypes.ResolvedEntity{exactEntity("الصلاة", "salah"), exactEntity("الصوم", "sawm")}, strongTrace())
		assert.Equal(t, ReasonRelationshipEndpointMiss, d.Reason)
	})

	t.Run("ok", func(t *testing.T) {
		d := Decide(question, []datatypes.ResolvedEntity{exactEntity("الصلاة", "salah"), exactEntity("الزكاة", "zakah")}, strongTrace())
		assert.True(t, d.ShouldAnswer)
	})
}

// TestDecide_WeakSignalsRefuseOnlyWhenAllThreeWeak verifies the
// conjunction: one strong signal keeps the question answerable.
func TestDecide_WeakSignalsRefuseOnlyWhenAllThreeWeak(t *testing.T) {
	weakEntity := exactEntity("الصلاة", "salah")
	weakEntity.Confidence = 0.5
	weakTrace := datatypes.RetrievalTrace{Top1Score: 0.3, MeanTopK: 0.2, ResultCount: 3}

	d := Decide("سؤال عام", []datatypes.ResolvedEntity{weakEntity}, weakTrace)
	assert.Equal(t, ReasonLowRetrievalLowEntity, d.Reason)

	strongEntity := exactEntity("الصلاة", "salah")
	d = Decide("سؤال عام", []datatypes.ResolvedEntity{strongEntity}, weakTrace)
	assert.True(t, d.ShouldAnswer, "strong entity confidence overrides weak retrieval")

	okTrace := weakTrace
	okTrace.Top1Score = 0.8
	d = Decide("سؤال عام", []datatypes.ResolvedEntity{weakEntity}, okTrace)
	assert.True(t, d.ShouldAnswer, "strong top1 overrides weak entity")
}

func TestDecide_NoRetrieval(t *testing.T) {
	empty := datatypes.RetrievalTrace{}
	d := Decide("سؤال عام", []datatypes.ResolvedEntity{exactEntity("الصلاة", "salah")}, empty)
	assert.False(t, d.ShouldAnswer)
	assert.Equal(t, ReasonNoRetrieval, d.Reason)
}
