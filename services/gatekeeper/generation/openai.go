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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
)

// groundedSystemPrompt instructs the model to answer only from the
// supplied evidence and to emit machine-readable citations. The
// downstream verifier rejects anything that does not check out, so the
// prompt is a soft constraint, not the enforcement mechanism.
const groundedSystemPrompt = `You answer questions strictly from the evidence chunks provided.
Respond with a single JSON object:
{"answer": "...", "citations": [{"chunk_id": "...", "span_start": 0, "span_end": 0, "quote": "..."}],
 "used_edges": [], "not_found": false, "confidence": "high|medium|low"}
Every factual sentence must be backed by a citation whose quote is copied
verbatim from a chunk. Quotes must be at most 25 words. If the evidence
does not cover the question, set not_found to true and leave the answer empty.`

const baselineSystemPrompt = `Answer the question from your own knowledge.
Respond with a single JSON object:
{"answer": "...", "citations": [], "used_edges": [], "not_found": false, "confidence": "high|medium|low"}`

// OpenAIGenerator calls the OpenAI chat-completion API and parses the
// structured result.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIGenerator builds a generator from the environment. The API
// key comes from OPENAI_API_KEY or the Podman secret file; the model
// from OPENAI_MODEL.
func NewOpenAIGenerator(requestsPerSecond float64) (*OpenAIGenerator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	slog.Info("Initializing OpenAI generation backend", "model", model, "rps", requestsPerSecond)
	return &OpenAIGenerator{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}, nil
}

// Generate implements the Generator interface.
func (g *OpenAIGenerator) Generate(ctx context.Context, in Input) (*datatypes.GenerationResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	systemPrompt := groundedSystemPrompt
	if in.Mode == datatypes.ModeBaseline {
		systemPrompt = baselineSystemPrompt
	}
	userPrompt, err := buildUserPrompt(in)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	var result datatypes.GenerationResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("generation backend returned unparseable JSON: %w", err)
	}
	return &result, nil
}

// buildUserPrompt serializes the question and its evidence packets.
func buildUserPrompt(in Input) (string, error) {
	payload := map[string]any{
		"question": in.Question,
		"language": in.Language,
		"evidence": in.Evidence,
		"entities": in.Entities,
	}
	if len(in.UsedEdges) > 0 {
		payload["used_edges"] = in.UsedEdges
	}
	if len(in.FailureReasons) > 0 {
		payload["previous_failure_reasons"] = in.FailureReasons
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode generation prompt: %w", err)
	}
	return string(encoded), nil
}
