// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability carries the gatekeeper's Prometheus metrics and
// the best-effort decision-record writer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts finished requests by contract outcome and
	// gate reason.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "gatekeeper",
			Name:      "decisions_total",
			Help:      "Finished requests by contract outcome and gate reason.",
		},
		[]string{"outcome", "gate_reason"},
	)

	// ContractFailuresTotal counts contract reason codes across all
	// checks, including repair re-checks.
	ContractFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "gatekeeper",
			Name:      "contract_failures_total",
			Help:      "Contract failure reason codes observed.",
		},
		[]string{"reason"},
	)

	// CitationValidityErrorsTotal counts invalid citation spans by
	// verdict code.
	CitationValidityErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "gatekeeper",
			Name:      "citation_validity_errors_total",
			Help:      "Citation spans that failed validation, by code.",
		},
		[]string{"code"},
	)

	// RepairAttemptsTotal counts one-shot repair attempts and whether
	// they succeeded.
	RepairAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aleutian",
			Subsystem: "gatekeeper",
			Name:      "repair_attempts_total",
			Help:      "Repair generation attempts by result.",
		},
		[]string{"result"},
	)

	// StageDuration observes per-stage latency of the ask pipeline.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aleutian",
			Subsystem: "gatekeeper",
			Name:      "stage_duration_seconds",
			Help:      "Latency of ask-pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)
