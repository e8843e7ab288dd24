// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generation wraps the opaque answer-generation backend. The
// gatekeeper core treats generators as untrusted: whatever comes back
// is verified, pruned, and possibly discarded downstream.
package generation

import (
	"context"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// Input is everything a generator may condition on for one attempt.
// Repair attempts pass the same Input with expanded Evidence and the
// FailureReasons of the first attempt.
type Input struct {
	Question string
	Language string
	Mode     datatypes.RunMode

	Evidence []datatypes.EvidencePacket
	Entities []datatypes.ResolvedEntity

	// UsedEdges and ArgumentChains from a prior attempt, when repairing.
	UsedEdges      []datatypes.UsedEdge
	ArgumentChains []datatypes.ArgumentChain

	// FailureReasons carries the contract reasons a repair attempt must
	// address. Empty on the first attempt.
	FailureReasons []datatypes.ReasonCode
}

// Generator produces a candidate answer from evidence.
type Generator interface {
	// Generate returns a candidate answer. A nil error with
	// NotFound=true is a legitimate "the evidence does not cover this"
	// result, not a failure.
	Generate(ctx context.Context, in Input) (*datatypes.GenerationResult, error)
}
