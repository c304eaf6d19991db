package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ephemera/internal/core/domain"
)

func TestExtractDocumentID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{
			name:     "valid document URI",
			uri:      "ephemera://documents/doc-456",
			expected: "doc-456",
		},
		{
			name:     "invalid prefix",
			uri:      "file://documents/doc-456",
			expected: "",
		},
		{
			name:     "nested path",
			uri:      "ephemera://documents/doc-456/chunks",
			expected: "",
		},
		{
			name:     "empty URI",
			uri:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractDocumentID(tt.uri)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// Helper to create a ReadResourceRequest with the given URI.
func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestServer_handleDocumentResource(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	store := &mockStore{docs: map[string]*domain.Document{
		"doc-123": {
			ID:         "doc-123",
			Filename:   "plan.pdf",
			SourceType: domain.SourceTypePDF,
			Status:     domain.StatusProcessing,
			CreatedAt:  created,
			ExpiresAt:  created.Add(time.Hour),
		},
	}}
	ports := validPorts()
	ports.Store = store
	server, err := NewServer(ports)
	require.NoError(t, err)

	t.Run("invalid URI returns not found", func(t *testing.T) {
		req := makeReadResourceRequest("ephemera://invalid/uri")
		_, err := server.handleDocumentResource(ctx, req)

		require.Error(t, err)
	})

	t.Run("unknown document returns not found", func(t *testing.T) {
		req := makeReadResourceRequest("ephemera://documents/missing")
		_, err := server.handleDocumentResource(ctx, req)

		require.Error(t, err)
		assert.NotContains(t, err.Error(), "getting document")
	})

	t.Run("returns status as JSON", func(t *testing.T) {
		req := makeReadResourceRequest("ephemera://documents/doc-123")
		result, err := server.handleDocumentResource(ctx, req)

		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)
		assert.Contains(t, result.Contents[0].Text, `"status": "processing"`)
		assert.Contains(t, result.Contents[0].Text, `"filename": "plan.pdf"`)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		failing := validPorts()
		failing.Store = &mockStore{err: errors.New("database is locked")}
		s, err := NewServer(failing)
		require.NoError(t, err)

		_, err = s.handleDocumentResource(ctx, makeReadResourceRequest("ephemera://documents/doc-123"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "getting document")
	})
}
