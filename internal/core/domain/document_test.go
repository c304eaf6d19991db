package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSourceType_IsValid(t *testing.T) {
	assert.True(t, SourceTypePDF.IsValid())
	assert.True(t, SourceTypeText.IsValid())
	assert.True(t, SourceTypePaste.IsValid())
	assert.False(t, SourceType("docx").IsValid())
	assert.False(t, SourceType("").IsValid())
}

func TestDocumentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     DocumentStatus
		to       DocumentStatus
		expected bool
	}{
		{StatusProcessing, StatusReady, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusProcessing, false},
		{StatusReady, StatusProcessing, false},
		{StatusReady, StatusError, false},
		{StatusError, StatusReady, false},
		{StatusError, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestDocument_IsExpired(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := &Document{CreatedAt: created, ExpiresAt: created.Add(time.Hour)}

	assert.False(t, doc.IsExpired(created))
	assert.False(t, doc.IsExpired(created.Add(59*time.Minute)))
	assert.True(t, doc.IsExpired(created.Add(time.Hour)))
	assert.True(t, doc.IsExpired(created.Add(2*time.Hour)))
}
