// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contract derives machine-checkable answer contracts from
// question intent and scores candidate answers against them.
//
// The rule tables (intent keywords, section headers, compare fields,
// graph requirements, partial-template markers) are pure data embedded
// at build time and compiled once at engine construction. Violations
// are returned as reason codes in ContractMetrics, never as errors.
package contract

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/textnorm"
)

//go:embed rules.yaml
var rulesYAML []byte

// =============================================================================
// Rule Tables
// =============================================================================

type intentRule struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
}

type graphRule struct {
	MinLinks          int `yaml:"min_links"`
	MinDistinctGroups int `yaml:"min_distinct_groups"`
}

type partialMarkers struct {
	Supported   []string `yaml:"supported"`
	Unsupported []string `yaml:"unsupported"`
	Gap         []string `yaml:"gap"`
}

// ruleTables is the parsed and normalized rule set. Keyword and marker
// lists are pre-normalized so classification is a plain substring test.
type ruleTables struct {
	Intents        []intentRule         `yaml:"intents"`
	Sections       map[string][]string  `yaml:"sections"`
	CompareFields  []string             `yaml:"compare_fields"`
	Graph          map[string]graphRule `yaml:"graph"`
	PartialMarkers partialMarkers       `yaml:"partial_markers"`
}

// loadRules parses the embedded YAML and normalizes every matchable
// string in place.
func loadRules() (*ruleTables, error) {
	var tables ruleTables
	if err := yaml.Unmarshal(rulesYAML, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse embedded contract rules: %w", err)
	}
	for i := range tables.Intents {
		for j, kw := range tables.Intents[i].Keywords {
			tables.Intents[i].Keywords[j] = textnorm.Normalize(kw)
		}
	}
	normalizeAll := func(items []string) {
		for i, s := range items {
			items[i] = textnorm.Normalize(s)
		}
	}
	normalizeAll(tables.PartialMarkers.Supported)
	normalizeAll(tables.PartialMarkers.Unsupported)
	normalizeAll(tables.PartialMarkers.Gap)
	return &tables, nil
}

// =============================================================================
// Engine
// =============================================================================

// GroupExtractor maps a "{type}:{id}" graph node to its top-level group
// for the distinct-groups check.
type GroupExtractor func(node string) string

// DefaultGroupExtractor groups nodes by their type prefix.
func DefaultGroupExtractor(node string) string {
	nodeType, _ := datatypes.ParseNode(node)
	return nodeType
}

// Engine holds the compiled rule tables.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Engine struct {
	rules   *ruleTables
	groupOf GroupExtractor
}

// Option configures an Engine.
type Option func(*Engine)

// WithGroupExtractor overrides the node-grouping function used by the
// distinct-groups graph check.
func WithGroupExtractor(fn GroupExtractor) Option {
	return func(e *Engine) { e.groupOf = fn }
}

// NewEngine compiles the embedded rule tables.
func NewEngine(opts ...Option) (*Engine, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}
	e := &Engine{rules: rules, groupOf: DefaultGroupExtractor}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}
