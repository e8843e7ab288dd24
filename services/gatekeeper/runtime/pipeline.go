// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runtime sequences one ask request end to end: resolve,
// retrieve, gate, generate, verify, contract-check, repair or partial
// or fail closed, prune, respond.
//
// The repair bound is structural: a boolean on the per-request state,
// set exactly once, never a loop or recursion. Fail-closed means the
// visible result is a fixed refusal with not_found=true and no
// citations - the system never returns an uncited answer while
// claiming it found something.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/contract"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/gate"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/generation"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/graph"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/observability"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/retrieval"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/verify"
)

var runtimeTracer = otel.Tracer("aleutian.gatekeeper.runtime")

// repairEvidenceMultiplier widens retrieval for the one-shot repair
// attempt.
const repairEvidenceMultiplier = 2

// Config tunes one pipeline instance.
type Config struct {
	// TopK is the merged retrieval depth; zero means 10.
	TopK int

	// RepairEnabled allows the single repair generation attempt.
	RepairEnabled bool

	// MinSentences is the pruner's abstention floor; zero means the
	// pruner default.
	MinSentences int
}

// GateTrace records what the state machine did with one request.
type GateTrace struct {
	Applied         bool `json:"applied"`
	RepairAttempted bool `json:"repair_attempted"`
	RepairSucceeded bool `json:"repair_succeeded"`
	PartialEmitted  bool `json:"partial_emitted"`
	FailClosed      bool `json:"fail_closed"`
}

// Pipeline is the per-process orchestrator. All per-request state lives
// on the stack of Ask; the pipeline itself is immutable and safe for
// concurrent use.
type Pipeline struct {
	store     store.EvidenceStore
	recorder  store.DecisionRecorder
	resolver  *retrieval.Resolver
	merger    *retrieval.Merger
	engine    *contract.Engine
	validator *verify.Validator
	generator generation.Generator
	cfg       Config
}

// NewPipeline wires the pipeline from its collaborators. recorder may
// be nil; decision records are then skipped.
func NewPipeline(
	evidenceStore store.EvidenceStore,
	recorder store.DecisionRecorder,
	resolver *retrieval.Resolver,
	merger *retrieval.Merger,
	engine *contract.Engine,
	validator *verify.Validator,
	generator generation.Generator,
	cfg Config,
) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	return &Pipeline{
		store:     evidenceStore,
		recorder:  recorder,
		resolver:  resolver,
		merger:    merger,
		engine:    engine,
		validator: validator,
		generator: generator,
		cfg:       cfg,
	}
}

// askState is the mutable per-request state the state machine operates
// on.
type askState struct {
	answer    string
	spans     []datatypes.CitationSpan
	usedEdges []datatypes.UsedEdge
	metrics   datatypes.ContractMetrics
	trace     GateTrace
	gateCode  string
	conf      datatypes.ConfidenceLevel
}

// Ask runs the full pipeline for one request.
//
// # Description
//
// Store or generation-backend unavailability is fatal for the request
// and returned as an error. Everything else - refusals, partials,
// fail-closed abstentions - is a successful response with the
// appropriate NotFound flag and confidence.
func (p *Pipeline) Ask(ctx context.Context, req *datatypes.AskRequest) (*datatypes.AskResponse, error) {
	ctx, span := runtimeTracer.Start(ctx, "Pipeline.Ask")
	defer span.End()
	req.EnsureDefaults()
	span.SetAttributes(attribute.String("request.id", req.Id), attribute.String("request.mode", string(req.Mode)))

	state := &askState{conf: datatypes.ConfidenceMedium, gateCode: gate.ReasonOK}

	entities := p.resolver.Resolve(req.Question)

	retrieveStart := time.Now()
	ranked, err := p.merger.Retrieve(ctx, req.Question, entities, p.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	observability.StageDuration.WithLabelValues("retrieve").Observe(time.Since(retrieveStart).Seconds())
	retrievalTrace := retrieval.Trace(ranked)

	decision := gate.Decide(req.Question, entities, retrievalTrace)
	if !decision.ShouldAnswer {
		state.gateCode = decision.Reason
		state.trace.FailClosed = true
		return p.respond(ctx, req, entities, state), nil
	}

	evidence, err := p.evidencePackets(ctx, ranked)
	if err != nil {
		return nil, err
	}

	generateStart := time.Now()
	result, err := p.generator.Generate(ctx, generation.Input{
		Question: req.Question,
		Language: req.Language,
		Mode:     req.Mode,
		Evidence: evidence,
		Entities: entities,
	})
	observability.StageDuration.WithLabelValues("generate").Observe(time.Since(generateStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	if result.NotFound || strings.TrimSpace(result.Answer) == "" {
		state.trace.FailClosed = true
		return p.respond(ctx, req, entities, state), nil
	}

	state.answer = result.Answer
	state.spans = result.Citations
	state.conf = result.Confidence
	state.usedEdges, err = p.verifyUsedEdges(ctx, result.UsedEdges)
	if err != nil {
		return nil, err
	}

	if err := p.runContract(ctx, req, entities, evidence, state); err != nil {
		return nil, err
	}
	if state.trace.FailClosed {
		return p.respond(ctx, req, entities, state), nil
	}

	if err := p.prune(ctx, req, entities, state); err != nil {
		return nil, err
	}
	return p.respond(ctx, req, entities, state), nil
}

// =============================================================================
// Contract State Machine
// =============================================================================

// runContract implements the decision state machine. The contract only
// applies when the request carries explicit structural hints; ad hoc
// questions skip straight through with Applied=false.
func (p *Pipeline) runContract(ctx context.Context, req *datatypes.AskRequest, entities []datatypes.ResolvedEntity, evidence []datatypes.EvidencePacket, state *askState) error {
	if req.Hints == nil || !req.Hints.EnforceContract {
		return nil
	}
	state.trace.Applied = true

	spec := p.engine.DeriveSpec(req.Question, entities, req.Hints)
	state.metrics = p.checkContract(ctx, spec, state)
	if state.metrics.Outcome != datatypes.OutcomeFail {
		return nil
	}

	// Scenario questions get the natural partial first; a composer with
	// no evidence to quote falls through to repair.
	if spec.IntentType == datatypes.IntentScenario {
		if partial := composePartial(evidence, req.Language, false); partial != nil {
			p.adoptPartial(ctx, spec, partial, state)
			return nil
		}
	}

	if p.cfg.RepairEnabled && !state.trace.RepairAttempted {
		state.trace.RepairAttempted = true
		if err := p.attemptRepair(ctx, req, entities, spec, state); err != nil {
			return err
		}
		if state.trace.RepairSucceeded {
			observability.RepairAttemptsTotal.WithLabelValues("succeeded").Inc()
			return nil
		}
		observability.RepairAttemptsTotal.WithLabelValues("failed").Inc()
	}

	// The second FAIL is terminal for the repair branch. A residual
	// failure that is purely missing graph grounding still earns the
	// honest graph-gap partial.
	if graphGapOnly(state.metrics.Reasons) {
		if partial := composePartial(evidence, req.Language, true); partial != nil {
			p.adoptPartial(ctx, spec, partial, state)
			return nil
		}
	}

	state.trace.FailClosed = true
	return nil
}

// attemptRepair performs the single additional generation pass with
// expanded evidence and re-checks the contract.
func (p *Pipeline) attemptRepair(ctx context.Context, req *datatypes.AskRequest, entities []datatypes.ResolvedEntity, spec datatypes.ContractSpec, state *askState) error {
	expandedRanked, err := p.merger.Retrieve(ctx, req.Question, entities, p.cfg.TopK*repairEvidenceMultiplier)
	if err != nil {
		return fmt.Errorf("repair retrieval failed: %w", err)
	}
	expanded, err := p.evidencePackets(ctx, expandedRanked)
	if err != nil {
		return err
	}

	repairStart := time.Now()
	result, err := p.generator.Generate(ctx, generation.Input{
		Question:       req.Question,
		Language:       req.Language,
		Mode:           req.Mode,
		Evidence:       expanded,
		Entities:       entities,
		UsedEdges:      state.usedEdges,
		FailureReasons: state.metrics.Reasons,
	})
	observability.StageDuration.WithLabelValues("repair").Observe(time.Since(repairStart).Seconds())
	if err != nil {
		return fmt.Errorf("repair generation failed: %w", err)
	}
	if result.NotFound || strings.TrimSpace(result.Answer) == "" {
		return nil
	}

	usedEdges, err := p.verifyUsedEdges(ctx, result.UsedEdges)
	if err != nil {
		return err
	}
	candidate := &askState{answer: result.Answer, spans: result.Citations, usedEdges: usedEdges}
	candidate.metrics = p.checkContract(ctx, spec, candidate)
	// Adopt the repair's metrics either way; its reasons are the
	// residual failure.
	state.metrics = candidate.metrics
	if candidate.metrics.Outcome != datatypes.OutcomeFail {
		state.answer = candidate.answer
		state.spans = candidate.spans
		state.usedEdges = candidate.usedEdges
		state.conf = result.Confidence
		state.trace.RepairSucceeded = true
	}
	return nil
}

// adoptPartial swaps in a composed partial answer and re-checks it so
// the reported metrics describe what is actually returned.
func (p *Pipeline) adoptPartial(ctx context.Context, spec datatypes.ContractSpec, partial *datatypes.GenerationResult, state *askState) {
	state.answer = partial.Answer
	state.spans = partial.Citations
	state.usedEdges = nil
	state.conf = partial.Confidence
	state.trace.PartialEmitted = true
	state.metrics = p.checkContract(ctx, spec, state)
}

func (p *Pipeline) checkContract(ctx context.Context, spec datatypes.ContractSpec, state *askState) datatypes.ContractMetrics {
	metrics := p.engine.Check(ctx, spec, state.answer, spansToAPICitationsShallow(state.spans), state.usedEdges)
	for _, reason := range metrics.Reasons {
		observability.ContractFailuresTotal.WithLabelValues(string(reason)).Inc()
	}
	return metrics
}

// graphGapOnly reports whether every residual reason is graph
// grounding (empty-section reasons aside, since partials omit sections
// by design).
func graphGapOnly(reasons []datatypes.ReasonCode) bool {
	sawGraph := false
	for _, r := range reasons {
		switch {
		case r == datatypes.ReasonMissingUsedGraphEdges, r == datatypes.ReasonInsufficientGroups:
			sawGraph = true
		case datatypes.IsEmptySectionReason(r):
		default:
			return false
		}
	}
	return sawGraph
}

// =============================================================================
// Prune & Respond
// =============================================================================

func (p *Pipeline) prune(ctx context.Context, req *datatypes.AskRequest, entities []datatypes.ResolvedEntity, state *askState) error {
	pruneStart := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("prune").Observe(time.Since(pruneStart).Seconds())
	}()

	claims := verify.ExtractClaims(state.answer, state.spans, req.Mode)
	opts := verify.PruneOptions{
		MinSentences:       p.cfg.MinSentences,
		RelationshipShaped: gate.IsRelationshipShaped(req.Question),
		ResolvedEntities:   entities,
	}
	if req.Hints != nil {
		opts.HasDeclaredGraphPath = req.Hints.RequiresGraphPath
	}

	result, err := p.validator.PruneAndFailClosed(ctx, claims, opts)
	if err != nil {
		return err
	}
	if result.Abstained {
		slog.Info("Pruner abstained", "request_id", req.Id, "reason", result.Reason)
		state.trace.FailClosed = true
		return nil
	}
	state.answer = result.Answer
	state.spans = result.Citations
	return nil
}

// respond builds the final response, enforcing the fail-closed
// invariant, and appends the decision record without blocking.
func (p *Pipeline) respond(ctx context.Context, req *datatypes.AskRequest, entities []datatypes.ResolvedEntity, state *askState) *datatypes.AskResponse {
	resp := &datatypes.AskResponse{
		Id:       req.Id,
		Entities: entities,
	}

	if !state.trace.FailClosed {
		citations, err := p.apiCitations(ctx, state.spans)
		if err != nil {
			slog.Error("Citation materialization failed, failing closed", "request_id", req.Id, "error", err)
			state.trace.FailClosed = true
		} else if len(citations) == 0 && req.Mode != datatypes.ModeBaseline {
			// Never an uncited answer with not_found=false.
			state.trace.FailClosed = true
		} else {
			resp.Answer = state.answer
			resp.Citations = citations
			resp.Confidence = state.conf
		}
	}
	if state.trace.FailClosed {
		resp.Answer = refusalText(req.Language)
		resp.Citations = nil
		resp.NotFound = true
		resp.Confidence = datatypes.ConfidenceLow
	}
	if state.trace.PartialEmitted && !state.trace.FailClosed {
		resp.Confidence = datatypes.ConfidenceMedium
	}

	if state.trace.Applied {
		resp.ContractOutcome = state.metrics.Outcome
		resp.ContractReasons = state.metrics.Reasons
	}
	if len(state.usedEdges) > 0 && !state.trace.FailClosed {
		resp.GraphTrace = &datatypes.GraphTrace{
			UsedEdges:      state.usedEdges,
			ArgumentChains: graph.BuildChains(state.usedEdges),
		}
	}

	outcome := string(state.metrics.Outcome)
	if outcome == "" {
		outcome = state.gateCode
	}
	observability.DecisionsTotal.WithLabelValues(outcome, state.gateCode).Inc()
	go observability.TryRecord(p.recorder, store.DecisionRecord{
		RequestID:       req.Id,
		Question:        req.Question,
		Outcome:         outcome,
		Reasons:         joinReasons(state.metrics.Reasons),
		NotFound:        resp.NotFound,
		FailClosed:      state.trace.FailClosed,
		RepairAttempted: state.trace.RepairAttempted,
		RepairSucceeded: state.trace.RepairSucceeded,
		PartialEmitted:  state.trace.PartialEmitted,
		CitationCount:   len(resp.Citations),
		CreatedAtUnix:   time.Now().Unix(),
	})
	return resp
}

// =============================================================================
// Evidence & Citation Materialization
// =============================================================================

// evidencePackets batch-fetches chunk bodies and refs for the ranked
// ids.
func (p *Pipeline) evidencePackets(ctx context.Context, ranked []datatypes.RankedEvidence) ([]datatypes.EvidencePacket, error) {
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.ChunkID)
	}
	chunks, err := p.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("evidence fetch failed: %w", err)
	}
	refs, err := p.store.GetChunkRefs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("evidence refs fetch failed: %w", err)
	}

	packets := make([]datatypes.EvidencePacket, 0, len(ranked))
	for _, r := range ranked {
		chunk, ok := chunks[r.ChunkID]
		if !ok {
			continue
		}
		packets = append(packets, datatypes.EvidencePacket{
			ChunkID:      chunk.ChunkID,
			Text:         chunk.Text,
			SourceAnchor: chunk.SourceAnchor,
			Refs:         refs[chunk.ChunkID],
			Score:        r.Score,
		})
	}
	return packets, nil
}

// verifyUsedEdges keeps only edges that exist as approved edges in the
// store, attaching stored justification spans when the generator
// supplied none.
func (p *Pipeline) verifyUsedEdges(ctx context.Context, usedEdges []datatypes.UsedEdge) ([]datatypes.UsedEdge, error) {
	var verified []datatypes.UsedEdge
	for _, used := range usedEdges {
		fromType, fromID := datatypes.ParseNode(used.Edge.FromNode)
		toType, toID := datatypes.ParseNode(used.Edge.ToNode)
		edgeID, exists, err := p.store.GetApprovedEdge(ctx, fromType, fromID, used.Edge.RelationType, toType, toID)
		if err != nil {
			return nil, fmt.Errorf("edge verification failed: %w", err)
		}
		if !exists {
			continue
		}
		used.Edge.EdgeID = edgeID
		used.Edge.Status = datatypes.EdgeApproved
		if len(used.JustificationSpans) == 0 {
			spans, err := p.store.GetJustificationSpans(ctx, edgeID)
			if err != nil {
				return nil, fmt.Errorf("justification fetch failed: %w", err)
			}
			used.JustificationSpans = spans
		}
		verified = append(verified, used)
	}
	return verified, nil
}

// apiCitations validates spans and materializes the API-boundary
// citation list. Invalid spans are counted and excluded.
func (p *Pipeline) apiCitations(ctx context.Context, spans []datatypes.CitationSpan) ([]datatypes.Citation, error) {
	var citations []datatypes.Citation
	seen := make(map[string]bool)
	for _, span := range spans {
		if err := p.validator.ValidateSpan(ctx, span); err != nil {
			if ce, ok := verify.IsCitationError(err); ok {
				observability.CitationValidityErrorsTotal.WithLabelValues(string(ce.Code)).Inc()
				continue
			}
			return nil, err
		}
		if seen[span.ChunkID] {
			continue
		}
		seen[span.ChunkID] = true
		chunk, err := p.store.GetChunk(ctx, span.ChunkID)
		if err != nil {
			return nil, fmt.Errorf("citation chunk fetch failed: %w", err)
		}
		citation := datatypes.Citation{ChunkID: chunk.ChunkID, SourceAnchor: chunk.SourceAnchor}
		if len(chunk.Refs) > 0 {
			citation.Ref = chunk.Refs[0].Value
		}
		citations = append(citations, citation)
	}
	return citations, nil
}

// spansToAPICitationsShallow converts spans to the citation shape the
// contract checker counts, without store round-trips.
func spansToAPICitationsShallow(spans []datatypes.CitationSpan) []datatypes.Citation {
	citations := make([]datatypes.Citation, 0, len(spans))
	for _, span := range spans {
		citations = append(citations, datatypes.Citation{ChunkID: span.ChunkID})
	}
	return citations
}

func joinReasons(reasons []datatypes.ReasonCode) string {
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}
