package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docanalyzer/internal/model"
)

func TestHistoryRoundTripKeepsSources(t *testing.T) {
	assistant := model.ChatMessage{
		ID:           2,
		SessionID:    1,
		Role:         "assistant",
		Content:      "the deployment runs through the pipeline",
		CreatedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		ResponseTime: 1.25,
	}
	assistant.SetSources([]model.Source{
		{VectorID: "doc1-chunk0", Source: "guide.txt", ChunkIndex: 0, Similarity: 0.91, ContentPreview: "the deployment"},
	})
	user := model.ChatMessage{ID: 1, SessionID: 1, Role: "user", Content: "how does deployment work?"}

	raw, err := encodeHistory([]model.ChatMessage{user, assistant})
	require.NoError(t, err)

	decoded, err := decodeHistory(raw)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	assert.Equal(t, "how does deployment work?", decoded[0].Content)
	assert.Empty(t, decoded[0].SourceList())

	got := decoded[1]
	assert.Equal(t, assistant.Content, got.Content)
	assert.Equal(t, assistant.ResponseTime, got.ResponseTime)
	sources := got.SourceList()
	require.Len(t, sources, 1)
	assert.Equal(t, "doc1-chunk0", sources[0].VectorID)
	assert.Equal(t, 0.91, sources[0].Similarity)
}

func TestDecodeHistoryRejectsGarbage(t *testing.T) {
	_, err := decodeHistory([]byte("not json"))
	assert.Error(t, err)
}
