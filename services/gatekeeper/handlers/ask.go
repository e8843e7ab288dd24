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
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/middleware"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/runtime"
)

// HandleAsk answers a question from the closed corpus.
//
// # Description
//
// Binds the ask request and runs the full pipeline. Refusals, partials,
// and fail-closed abstentions are 200 responses with not_found set; a
// 500 means the store or generation backend was unavailable. When the
// caller supplies no request id the middleware request id is used, so
// decision records line up with access logs.
//
// # Inputs
//
//   - pipeline: The configured ask pipeline.
//
// # Outputs
//
//   - gin.HandlerFunc: POST /v1/ask handler.
func HandleAsk(pipeline *runtime.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.Id == "" {
			req.Id = middleware.GetRequestID(c)
		}

		resp, err := pipeline.Ask(c.Request.Context(), &req)
		if err != nil {
			slog.Error("Ask pipeline failed", "request_id", req.Id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process question"})
			return
		}

		slog.Info("Answered ask request",
			"request_id", resp.Id,
			"not_found", resp.NotFound,
			"citations", len(resp.Citations),
			"confidence", resp.Confidence)
		c.JSON(http.StatusOK, resp)
	}
}
