// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/verify"
)

// ValidateCitationsRequest is the request body for
// POST /v1/citations/validate.
type ValidateCitationsRequest struct {
	Citations []datatypes.CitationSpan `json:"citations" binding:"required"`
}

// ValidateCitations resolves a batch of citation spans against stored
// chunk text.
//
// # Description
//
// Diagnostic endpoint: each span comes back with its resolution status
// and, when resolved, verified offsets. Spans are never dropped, so
// the response lines up index-for-index with the request. A 500 means
// the store was unavailable, not that a span failed to resolve.
func ValidateCitations(validator *verify.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateCitationsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		resolved, err := validator.ResolveSpans(c.Request.Context(), req.Citations)
		if err != nil {
			slog.Error("Citation resolution failed", "spans", len(req.Citations), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve citations"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"resolved": resolved})
	}
}
