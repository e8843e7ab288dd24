// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the gatekeeper API handlers

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/datatypes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/verify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Fakes
// =============================================================================

// fakeChunkStore serves a fixed chunk map; the graph and entity methods
// are unused by these handlers.
type fakeChunkStore struct {
	chunks map[string]*datatypes.EvidenceChunk
}

func (f *fakeChunkStore) GetChunk(_ context.Context, chunkID string) (*datatypes.EvidenceChunk, error) {
	if chunk, ok := f.chunks[chunkID]; ok {
		return chunk, nil
	}
	return nil, store.ErrChunkNotFound
}

func (f *fakeChunkStore) GetChunks(_ context.Context, chunkIDs []string) (map[string]*datatypes.EvidenceChunk, error) {
	out := make(map[string]*datatypes.EvidenceChunk)
	for _, id := range chunkIDs {
		if chunk, ok := f.chunks[id]; ok {
			out[id] = chunk
		}
	}
	return out, nil
}

func (f *fakeChunkStore) GetChunkRefs(_ context.Context, _ []string) (map[string][]datatypes.ChunkRef, error) {
	return map[string][]datatypes.ChunkRef{}, nil
}

func (f *fakeChunkStore) AllChunks(_ context.Context) ([]datatypes.EvidenceChunk, error) {
	return nil, nil
}

func (f *fakeChunkStore) GetChunksByEntity(_ context.Context, _, _ string) ([]datatypes.EvidenceChunk, error) {
	return nil, nil
}

func (f *fakeChunkStore) ListEntities(_ context.Context) ([]store.EntityRecord, error) {
	return nil, nil
}

func (f *fakeChunkStore) GetApprovedEdgeNeighbors(_ context.Context, _, _ string, _ []string) ([]store.EdgeNeighbor, error) {
	return nil, nil
}

func (f *fakeChunkStore) GetApprovedEdge(_ context.Context, _, _, _, _, _ string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeChunkStore) GetJustificationSpans(_ context.Context, _ string) ([]datatypes.CitationSpan, error) {
	return nil, nil
}

func testStore() *fakeChunkStore {
	return &fakeChunkStore{chunks: map[string]*datatypes.EvidenceChunk{
		"c1": {
			ChunkID:      "c1",
			EntityType:   "pillar",
			EntityID:     "salah",
			Text:         "الصلاة عماد الدين",
			SourceAnchor: "doc1#p1",
		},
	}}
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

// =============================================================================
// HandleAsk Tests
// =============================================================================

func TestHandleAsk_RejectsMissingQuestion(t *testing.T) {
	router := gin.New()
	router.POST("/v1/ask", HandleAsk(nil))

	body := bytes.NewBufferString(`{"language": "ar"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/ask", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAsk_RejectsMalformedJSON(t *testing.T) {
	router := gin.New()
	router.POST("/v1/ask", HandleAsk(nil))

	body := bytes.NewBufferString(`{"question": `)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/ask", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// GetChunk Tests
// =============================================================================

func TestGetChunk_ReturnsChunk(t *testing.T) {
	router := gin.New()
	router.GET("/v1/chunks/:chunkId", GetChunk(testStore()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/chunks/c1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var chunk datatypes.EvidenceChunk
	err := json.Unmarshal(w.Body.Bytes(), &chunk)
	require.NoError(t, err)
	assert.Equal(t, "c1", chunk.ChunkID)
	assert.Equal(t, "doc1#p1", chunk.SourceAnchor)
}

func TestGetChunk_UnknownIdReturns404(t *testing.T) {
	router := gin.New()
	router.GET("/v1/chunks/:chunkId", GetChunk(testStore()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/chunks/missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// ValidateCitations Tests
// =============================================================================

func TestValidateCitations_ResolvesSpans(t *testing.T) {
	router := gin.New()
	router.POST("/v1/citations/validate", ValidateCitations(verify.NewValidator(testStore())))

	payload := ValidateCitationsRequest{Citations: []datatypes.CitationSpan{
		{ChunkID: "c1", SpanStart: 0, SpanEnd: len("الصلاة عماد الدين"), Quote: "الصلاة عماد الدين"},
		{ChunkID: "missing", SpanStart: 0, SpanEnd: 4, Quote: "نص"},
	}}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/citations/validate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Resolved []datatypes.ResolvedSpan `json:"resolved"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Resolved, 2)
	assert.Equal(t, datatypes.SpanResolved, response.Resolved[0].Status)
	assert.NotEqual(t, datatypes.SpanResolved, response.Resolved[1].Status)
}

func TestValidateCitations_RejectsMissingBody(t *testing.T) {
	router := gin.New()
	router.POST("/v1/citations/validate", ValidateCitations(verify.NewValidator(testStore())))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/citations/validate", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
