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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
)

// GetChunk serves one evidence chunk with its refs, so UI callers can
// render the full source text behind a citation.
func GetChunk(evidenceStore store.EvidenceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		chunkID := c.Param("chunkId")

		chunk, err := evidenceStore.GetChunk(c.Request.Context(), chunkID)
		if errors.Is(err, store.ErrChunkNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chunk not found"})
			return
		}
		if err != nil {
			slog.Error("Chunk fetch failed", "chunk_id", chunkID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chunk"})
			return
		}

		c.JSON(http.StatusOK, chunk)
	}
}
