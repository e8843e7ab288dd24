// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// The gatekeeper server entrypoint. Configuration comes from
// environment variables so the binary runs unchanged under
// podman-compose and in local development.
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianGround/pkg/logging"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper"
)

func main() {
	logging.Setup(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("GATEKEEPER_LOG_LEVEL")),
		JSON:    os.Getenv("GATEKEEPER_LOG_FORMAT") == "json",
		Service: "gatekeeper",
	})

	cfg := gatekeeper.Config{
		Port:              envInt("GATEKEEPER_PORT", 0),
		DBPath:            os.Getenv("GATEKEEPER_DB"),
		OTelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GinMode:           os.Getenv("GIN_MODE"),
		GenerationBackend: os.Getenv("GATEKEEPER_GENERATION_BACKEND"),
		TopK:              envInt("GATEKEEPER_TOPK", 0),
		DisableRepair:     os.Getenv("GATEKEEPER_DISABLE_REPAIR") == "true",
		MinSentences:      envInt("GATEKEEPER_MIN_SENTENCES", 0),
	}

	svc, err := gatekeeper.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize gatekeeper: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// envInt reads an integer environment variable, falling back on the
// default when unset or malformed.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring malformed integer environment variable", "name", name, "value", raw)
		return fallback
	}
	return value
}
